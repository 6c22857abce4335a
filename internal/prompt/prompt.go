// Package prompt builds the stage instructions and payloads sent to a model,
// either directly or pasted by hand into an external tool.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/ancestra/internal/model"
)

// Prompt is a system/user message pair for one stage.
type Prompt struct {
	Stage  model.Stage
	System string
	User   string
}

// Build builds the prompt for stage. input must be the stage's payload type:
// []model.Source for normalize, []model.NormalizedSource for cluster and
// model.SynthesisInput for synthesize.
func Build(stage model.Stage, input any) (Prompt, error) {
	switch stage {
	case model.StageNormalize:
		sources, ok := input.([]model.Source)
		if !ok {
			return Prompt{}, fmt.Errorf("normalize input must be []model.Source, got %T", input)
		}
		return Normalize(sources)
	case model.StageCluster:
		normalized, ok := input.([]model.NormalizedSource)
		if !ok {
			return Prompt{}, fmt.Errorf("cluster input must be []model.NormalizedSource, got %T", input)
		}
		return Cluster(normalized)
	case model.StageSynthesize:
		in, ok := input.(model.SynthesisInput)
		if !ok {
			return Prompt{}, fmt.Errorf("synthesize input must be model.SynthesisInput, got %T", input)
		}
		return Synthesize(in)
	default:
		return Prompt{}, fmt.Errorf("unknown stage %q", stage)
	}
}

// Normalize builds the Stage A prompt over the pack's sources.
func Normalize(sources []model.Source) (Prompt, error) {
	payload, err := marshal(sources)
	if err != nil {
		return Prompt{}, err
	}
	user := fmt.Sprintf(`Normalize each of the %d genealogical sources below.
Return exactly one entry per source, in the same order, using each source's "id" as "sourceId".

SOURCES:
%s`, len(sources), payload)
	return Prompt{Stage: model.StageNormalize, System: normalizeSystem, User: user}, nil
}

// Cluster builds the Stage B prompt over the Stage A output.
func Cluster(normalized []model.NormalizedSource) (Prompt, error) {
	payload, err := marshal(normalized)
	if err != nil {
		return Prompt{}, err
	}
	ids := make([]string, len(normalized))
	for i, n := range normalized {
		ids[i] = n.SourceID
	}
	user := fmt.Sprintf(`Group the normalized sources below.
Every one of these sourceIds must appear exactly once, either in one cluster or in "standalone":
%s

NORMALIZED SOURCES:
%s`, strings.Join(ids, ", "), payload)
	return Prompt{Stage: model.StageCluster, System: clusterSystem, User: user}, nil
}

// Synthesize builds the Stage C prompt.
func Synthesize(in model.SynthesisInput) (Prompt, error) {
	payload, err := marshal(in)
	if err != nil {
		return Prompt{}, err
	}
	ids := make([]string, len(in.NormalizedSources))
	for i, n := range in.NormalizedSources {
		ids[i] = n.SourceID
	}
	user := fmt.Sprintf(`Write the research synthesis for this person.
The only sourceIds you may cite are: %s

INPUT:
%s`, strings.Join(ids, ", "), payload)
	return Prompt{Stage: model.StageSynthesize, System: synthesizeSystem, User: user}, nil
}

// Export renders the prompt as one self-contained text for pasting into any
// external tool.
func (p Prompt) Export() string {
	shape := "object"
	if p.Stage.OutputIsArray() {
		shape = "array"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "=== ANCESTRA %s STAGE ===\n\n", strings.ToUpper(string(p.Stage)))
	b.WriteString("Paste everything in this message into your AI tool. Save its complete reply and import it with:\n")
	fmt.Fprintf(&b, "  ancestra stage import %s --file reply.txt\n\n", p.Stage)
	b.WriteString("--- INSTRUCTIONS ---\n\n")
	b.WriteString(p.System)
	b.WriteString("\n\n--- TASK ---\n\n")
	b.WriteString(p.User)
	fmt.Fprintf(&b, "\n\n--- REMINDER ---\n\nReply with a single JSON %s matching the schema above and nothing else.\n", shape)
	return b.String()
}

// marshal pretty-prints v without HTML escaping so record text stays readable.
func marshal(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode stage input: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}
