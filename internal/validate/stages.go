// Package validate is the single gate every stage artifact passes through,
// whether it came from a direct model call or a pasted import: JSON recovery,
// struct-level schema checks, then cross-checks against upstream artifacts.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/ancestra/internal/model"
)

// Upstream is what a stage's output is checked against.
type Upstream struct {
	// SourceIDs are the ids of the sources given to normalize, in order.
	SourceIDs []string
	// Normalized is the complete normalize output, for cluster and synthesize.
	Normalized []model.NormalizedSource
	// StrictClusters rejects cluster output that drops or duplicates a source
	// instead of only warning.
	StrictClusters bool
}

// Artifact is a validated stage output. Exactly one payload field is set.
type Artifact struct {
	Stage      model.Stage
	Normalized []model.NormalizedSource
	Clusters   *model.ClusterResult
	Synthesis  *model.Synthesis
	// Warnings are accepted deviations, such as incomplete cluster coverage
	// when strict checking is off.
	Warnings []string
}

// Value returns the payload for persisting.
func (a *Artifact) Value() any {
	switch a.Stage {
	case model.StageNormalize:
		return a.Normalized
	case model.StageCluster:
		return a.Clusters
	default:
		return a.Synthesis
	}
}

// Gate validates a candidate response for stage.
func Gate(stage model.Stage, text string, up Upstream) (*Artifact, error) {
	switch stage {
	case model.StageNormalize:
		n, err := ParseNormalized(text, up.SourceIDs)
		if err != nil {
			return nil, err
		}
		return &Artifact{Stage: stage, Normalized: n}, nil
	case model.StageCluster:
		c, warnings, err := ParseClusters(text, up.Normalized, up.StrictClusters)
		if err != nil {
			return nil, err
		}
		return &Artifact{Stage: stage, Clusters: c, Warnings: warnings}, nil
	case model.StageSynthesize:
		s, err := ParseSynthesis(text, up.Normalized)
		if err != nil {
			return nil, err
		}
		return &Artifact{Stage: stage, Synthesis: s}, nil
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// decode extracts JSON of the wanted shape from text and decodes it into v.
func decode(stage model.Stage, text string, want Shape, v any) error {
	raw, err := ExtractJSONShape(text, want)
	if err != nil {
		return &FormatError{Stage: stage}
	}
	if got := shapeOf(raw); got != want {
		return &SchemaError{Stage: stage, Problems: []string{
			fmt.Sprintf("expected a JSON %s, got a JSON %s", shapeName(want), shapeName(got)),
		}}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return &SchemaError{Stage: stage, Problems: []string{decodeProblem(err)}}
	}
	return nil
}

// ParseNormalized validates normalize output. Every entry must be well formed
// and there must be exactly one entry per input source. The result is
// returned in input order.
func ParseNormalized(text string, sourceIDs []string) ([]model.NormalizedSource, error) {
	var entries []model.NormalizedSource
	if err := decode(model.StageNormalize, text, ShapeArray, &entries); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(sourceIDs))
	for _, id := range sourceIDs {
		known[id] = true
	}

	var problems []string
	byID := make(map[string]model.NormalizedSource, len(entries))
	for i, e := range entries {
		prefix := fmt.Sprintf("[%d]", i)
		problems = append(problems, checkStruct(prefix, e)...)
		if e.SourceID == "" {
			continue
		}
		if !known[e.SourceID] {
			problems = append(problems, fmt.Sprintf("%s.sourceId: %q is not an input source", prefix, e.SourceID))
			continue
		}
		if _, dup := byID[e.SourceID]; dup {
			problems = append(problems, fmt.Sprintf("%s.sourceId: %q appears more than once", prefix, e.SourceID))
			continue
		}
		byID[e.SourceID] = e
	}
	for _, id := range sourceIDs {
		if _, ok := byID[id]; !ok {
			problems = append(problems, fmt.Sprintf("missing entry for source %s", id))
		}
	}
	if len(problems) > 0 {
		return nil, &SchemaError{Stage: model.StageNormalize, Problems: problems}
	}

	ordered := make([]model.NormalizedSource, 0, len(sourceIDs))
	for _, id := range sourceIDs {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

// ParseClusters validates cluster output against the normalize output.
// Unknown source ids and a primarySourceId outside its cluster are always
// rejected. A source that is dropped or placed more than once is rejected
// when strict, otherwise reported as a warning.
func ParseClusters(text string, normalized []model.NormalizedSource, strict bool) (*model.ClusterResult, []string, error) {
	var result model.ClusterResult
	if err := decode(model.StageCluster, text, ShapeObject, &result); err != nil {
		return nil, nil, err
	}

	problems := checkStruct("", result)
	known := normalizedIDs(normalized)
	seen := make(map[string]int, len(known))
	clusterIDs := make(map[string]bool, len(result.Clusters))

	for i, c := range result.Clusters {
		if c.ID != "" {
			if clusterIDs[c.ID] {
				problems = append(problems, fmt.Sprintf("clusters[%d].id: %q appears more than once", i, c.ID))
			}
			clusterIDs[c.ID] = true
		}
		inCluster := false
		for j, id := range c.SourceIDs {
			if id == "" {
				continue
			}
			if !known[id] {
				problems = append(problems, fmt.Sprintf("clusters[%d].sourceIds[%d]: %q is not a normalized source", i, j, id))
				continue
			}
			seen[id]++
			if id == c.PrimarySourceID {
				inCluster = true
			}
		}
		if c.PrimarySourceID != "" && !inCluster {
			problems = append(problems, fmt.Sprintf("clusters[%d].primarySourceId: %q is not one of the cluster's sourceIds", i, c.PrimarySourceID))
		}
	}
	for i, id := range result.Standalone {
		if id == "" {
			continue
		}
		if !known[id] {
			problems = append(problems, fmt.Sprintf("standalone[%d]: %q is not a normalized source", i, id))
			continue
		}
		seen[id]++
	}

	var coverage []string
	for _, n := range normalized {
		switch count := seen[n.SourceID]; {
		case count == 0:
			coverage = append(coverage, fmt.Sprintf("source %s is in no cluster and not standalone", n.SourceID))
		case count > 1:
			coverage = append(coverage, fmt.Sprintf("source %s appears %d times across clusters and standalone", n.SourceID, count))
		}
	}
	if strict {
		problems = append(problems, coverage...)
		coverage = nil
	}

	if len(problems) > 0 {
		return nil, nil, &SchemaError{Stage: model.StageCluster, Problems: problems}
	}
	return &result, coverage, nil
}

// ParseSynthesis validates synthesize output. Every cited source id must be
// one of the normalized sources.
func ParseSynthesis(text string, normalized []model.NormalizedSource) (*model.Synthesis, error) {
	var s model.Synthesis
	if err := decode(model.StageSynthesize, text, ShapeObject, &s); err != nil {
		return nil, err
	}

	problems := checkStruct("", s)
	known := normalizedIDs(normalized)
	check := func(path string, ids []string) {
		for j, id := range ids {
			if id != "" && !known[id] {
				problems = append(problems, fmt.Sprintf("%s.sourceIds[%d]: %q is not a normalized source", path, j, id))
			}
		}
	}
	for i, f := range s.VerifiedFacts {
		check(fmt.Sprintf("verifiedFacts[%d]", i), f.SourceIDs)
	}
	for i, c := range s.Conflicts {
		for k, p := range c.Positions {
			check(fmt.Sprintf("conflicts[%d].positions[%d]", i, k), p.SourceIDs)
		}
	}
	for i, t := range s.Timeline {
		check(fmt.Sprintf("timeline[%d]", i), t.SourceIDs)
	}

	if len(problems) > 0 {
		return nil, &SchemaError{Stage: model.StageSynthesize, Problems: problems}
	}
	return &s, nil
}

func normalizedIDs(normalized []model.NormalizedSource) map[string]bool {
	ids := make(map[string]bool, len(normalized))
	for _, n := range normalized {
		ids[n.SourceID] = true
	}
	return ids
}
