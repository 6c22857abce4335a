package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates the completer named by config.Provider.
func NewProvider(config Config) (Completer, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, fmt.Errorf("no LLM provider configured (set llm.provider to openai, anthropic or ollama)")
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}
