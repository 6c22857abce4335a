package validate

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Shape is the top-level JSON kind a stage expects.
type Shape int

const (
	ShapeAny Shape = iota
	ShapeArray
	ShapeObject
)

var fencedBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*[ \t]*\r?\n?(.*?)```")

// ExtractJSON recovers a JSON value from free-form model output. Strategies,
// first success wins:
//  1. the whole trimmed response
//  2. the contents of a fenced code block
//  3. the substring from the first '[' to the last ']'
//  4. the substring from the first '{' to the last '}'
//
// When none parse it returns a *FormatError.
func ExtractJSON(text string) (json.RawMessage, error) {
	return ExtractJSONShape(text, ShapeAny)
}

// ExtractJSONShape is ExtractJSON with the bracket-substring steps ordered by
// the expected shape, so an object answer that embeds an array is not
// mistaken for the array.
func ExtractJSONShape(text string, shape Shape) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed), nil
	}

	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		body := strings.TrimSpace(m[1])
		if body != "" && json.Valid([]byte(body)) {
			return json.RawMessage(body), nil
		}
	}

	pairs := [][2]byte{{'[', ']'}, {'{', '}'}}
	if shape == ShapeObject {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, p := range pairs {
		if sub, ok := between(text, p[0], p[1]); ok && json.Valid([]byte(sub)) {
			return json.RawMessage(sub), nil
		}
	}

	return nil, &FormatError{}
}

func between(text string, open, close byte) (string, bool) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// shapeOf reports the top-level kind of a valid JSON value.
func shapeOf(raw json.RawMessage) Shape {
	s := strings.TrimSpace(string(raw))
	switch {
	case strings.HasPrefix(s, "["):
		return ShapeArray
	case strings.HasPrefix(s, "{"):
		return ShapeObject
	default:
		return ShapeAny
	}
}
