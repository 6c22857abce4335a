package model

import "fmt"

// Stage is one step of the AI pipeline.
type Stage string

const (
	StageNormalize  Stage = "normalize"
	StageCluster    Stage = "cluster"
	StageSynthesize Stage = "synthesize"
)

// Stages lists the pipeline in execution order.
var Stages = []Stage{StageNormalize, StageCluster, StageSynthesize}

// ParseStage resolves a stage name, accepting a few common aliases.
func ParseStage(name string) (Stage, error) {
	switch name {
	case "normalize", "normalized", "a":
		return StageNormalize, nil
	case "cluster", "clustered", "b":
		return StageCluster, nil
	case "synthesize", "synthesis", "c":
		return StageSynthesize, nil
	default:
		return "", fmt.Errorf("unknown stage %q (expected normalize, cluster or synthesize)", name)
	}
}

// Prerequisites returns the stages that must be complete before s may run.
func (s Stage) Prerequisites() []Stage {
	switch s {
	case StageCluster:
		return []Stage{StageNormalize}
	case StageSynthesize:
		return []Stage{StageNormalize, StageCluster}
	default:
		return nil
	}
}

// Downstream returns the stages whose input depends on s.
func (s Stage) Downstream() []Stage {
	switch s {
	case StageNormalize:
		return []Stage{StageCluster, StageSynthesize}
	case StageCluster:
		return []Stage{StageSynthesize}
	default:
		return nil
	}
}

// OutputIsArray reports whether the stage answers with a JSON array rather
// than an object.
func (s Stage) OutputIsArray() bool { return s == StageNormalize }

// StageStatus is the lifecycle state of one stage of one run.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusProcessing StageStatus = "processing"
	StatusComplete   StageStatus = "complete"
	StatusError      StageStatus = "error"
)

// CanTransition reports whether moving from one status to another is allowed.
// error and complete may re-enter processing for a retry or regeneration.
func CanTransition(from, to StageStatus) bool {
	switch from {
	case StatusPending, StatusError, StatusComplete:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusComplete || to == StatusError
	default:
		return false
	}
}

// Confidence values accepted from the model.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// NormalizedSource is the Stage A output for one input source.
type NormalizedSource struct {
	SourceID      string         `json:"sourceId" validate:"required"`
	Summary       string         `json:"summary" validate:"required"`
	Entities      []Entity       `json:"entities" validate:"required,dive"`
	Dates         []DateMention  `json:"dates" validate:"required,dive"`
	Places        []PlaceMention `json:"places" validate:"required,dive"`
	Relationships []Relationship `json:"relationships" validate:"required,dive"`
	Claims        []string       `json:"claims" validate:"required,dive,required"`
	Confidence    string         `json:"confidence" validate:"required,oneof=high medium low"`
}

// Entity is a named person or organisation mentioned by a source.
type Entity struct {
	Name string `json:"name" validate:"required"`
	Role string `json:"role,omitempty"`
}

// DateMention is a date a source attaches to an event.
type DateMention struct {
	Date  string `json:"date" validate:"required"`
	Event string `json:"event,omitempty"`
}

// PlaceMention is a place a source attaches to an event.
type PlaceMention struct {
	Name  string `json:"name" validate:"required"`
	Event string `json:"event,omitempty"`
}

// Relationship is a stated relation between two named entities.
type Relationship struct {
	Subject  string `json:"subject" validate:"required"`
	Relation string `json:"relation" validate:"required"`
	Object   string `json:"object" validate:"required"`
}

// ClusterResult is the Stage B output.
type ClusterResult struct {
	Clusters   []Cluster `json:"clusters" validate:"required,dive"`
	Standalone []string  `json:"standalone" validate:"required,dive,required"`
}

// Cluster groups sources judged to describe the same record or event.
type Cluster struct {
	ID              string   `json:"id" validate:"required"`
	Type            string   `json:"type" validate:"required"`
	SourceIDs       []string `json:"sourceIds" validate:"required,min=1,dive,required"`
	Reason          string   `json:"reason" validate:"required"`
	PrimarySourceID string   `json:"primarySourceId" validate:"required"`
}

// Synthesis is the Stage C output.
type Synthesis struct {
	Summary             string          `json:"summary" validate:"required"`
	VerifiedFacts       []VerifiedFact  `json:"verifiedFacts" validate:"required,dive"`
	Conflicts           []Conflict      `json:"conflicts" validate:"required,dive"`
	Timeline            []TimelineEntry `json:"timeline" validate:"required,dive"`
	ResearchSuggestions []string        `json:"researchSuggestions" validate:"required,dive,required"`
}

// VerifiedFact is a fact backed by at least one source.
type VerifiedFact struct {
	Fact       string   `json:"fact" validate:"required"`
	SourceIDs  []string `json:"sourceIds" validate:"required,min=1,dive,required"`
	Confidence string   `json:"confidence" validate:"required,oneof=high medium low"`
}

// Conflict is a disagreement between sources.
type Conflict struct {
	Description string             `json:"description" validate:"required"`
	Positions   []ConflictPosition `json:"positions" validate:"required,min=1,dive"`
}

// ConflictPosition is one side of a conflict.
type ConflictPosition struct {
	Claim     string   `json:"claim" validate:"required"`
	SourceIDs []string `json:"sourceIds" validate:"required,min=1,dive,required"`
}

// TimelineEntry is one dated event.
type TimelineEntry struct {
	Date      string   `json:"date" validate:"required"`
	Event     string   `json:"event" validate:"required"`
	SourceIDs []string `json:"sourceIds" validate:"required,min=1,dive,required"`
}

// SynthesisInput is the payload handed to Stage C.
type SynthesisInput struct {
	Person            Person             `json:"person"`
	NormalizedSources []NormalizedSource `json:"normalizedSources"`
	Clusters          ClusterResult      `json:"clusters"`
}

// ReferencedSourceIDs lists every source id cited anywhere in the synthesis,
// in document order, with duplicates.
func (s *Synthesis) ReferencedSourceIDs() []string {
	var ids []string
	for _, f := range s.VerifiedFacts {
		ids = append(ids, f.SourceIDs...)
	}
	for _, c := range s.Conflicts {
		for _, p := range c.Positions {
			ids = append(ids, p.SourceIDs...)
		}
	}
	for _, t := range s.Timeline {
		ids = append(ids, t.SourceIDs...)
	}
	return ids
}
