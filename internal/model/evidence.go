package model

import (
	"fmt"
	"time"
)

// SchemaVersion tags every Evidence Pack written by this extractor.
const SchemaVersion = "evidence-pack/v1"

// EvidencePack is the immutable snapshot of one capture ("run").
type EvidencePack struct {
	SchemaVersion        string      `json:"schemaVersion"`
	RunID                string      `json:"runId"`
	CapturedAt           time.Time   `json:"capturedAt"`
	ExtractorVersion     string      `json:"extractorVersion"`
	ExtractionDurationMs int64       `json:"extractionDurationMs"`
	SourceURL            string      `json:"sourceUrl"`
	PageTitle            string      `json:"pageTitle"`
	UILocale             string      `json:"uiLocale,omitempty"`
	Person               Person      `json:"person"`
	Sources              []Source    `json:"sources"`
	Diagnostics          Diagnostics `json:"diagnostics"`
	// Redacted marks a pack produced by the redactor. Source keys keep the
	// values computed from the original text.
	Redacted bool `json:"redacted,omitempty"`
}

// Person is a snapshot of the subject identity at capture time.
type Person struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
	BirthDate  string `json:"birthDate,omitempty"`
	DeathDate  string `json:"deathDate,omitempty"`
}

// Source is one citable record captured from the page.
type Source struct {
	ID                 string   `json:"id"`
	OrderIndex         int      `json:"orderIndex"`
	SourceKey          string   `json:"sourceKey"`
	SourceType         string   `json:"sourceType"`
	Title              string   `json:"title"`
	Date               string   `json:"date,omitempty"`
	Citation           string   `json:"citation,omitempty"`
	WebPageURL         string   `json:"webPageUrl,omitempty"`
	AttachedBy         string   `json:"attachedBy,omitempty"`
	AttachedAt         string   `json:"attachedAt,omitempty"`
	ReasonAttached     string   `json:"reasonAttached,omitempty"`
	Tags               []string `json:"tags"`
	Indexed            Indexed  `json:"indexed"`
	RawText            string   `json:"rawText"`
	Expanded           bool     `json:"expanded"`
	ExpansionAttempts  int      `json:"expansionAttempts"`
	ExpansionSucceeded bool     `json:"expansionSucceeded"`
}

// Indexed separates structured label/value pairs from free text blocks.
type Indexed struct {
	Fields     []IndexedField `json:"fields"`
	TextBlocks []string       `json:"textBlocks"`
}

// IndexedField is one label/value pair from a record's indexed information.
type IndexedField struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// CaptureMode identifies how the document was accessed.
type CaptureMode string

const (
	CaptureModeStatic CaptureMode = "static" // saved or fetched HTML
	CaptureModeLive   CaptureMode = "live"   // browser-driven page
)

// Diagnostics records how well the capture went.
type Diagnostics struct {
	Mode                CaptureMode `json:"mode"`
	Profile             string      `json:"profile,omitempty"`
	SourcesDiscovered   int         `json:"sourcesDiscovered"`
	SourcesExtracted    int         `json:"sourcesExtracted"`
	ExpansionsAttempted int         `json:"expansionsAttempted"`
	ExpansionsSucceeded int         `json:"expansionsSucceeded"`
	ExpansionCapReached bool        `json:"expansionCapReached"`
	Cancelled           bool        `json:"cancelled"`
	Complete            bool        `json:"complete"`
	Warnings            []string    `json:"warnings"`
	Errors              []string    `json:"errors"`
}

// SourceIDs returns the local ids in page order.
func (p *EvidencePack) SourceIDs() []string {
	ids := make([]string, len(p.Sources))
	for i, s := range p.Sources {
		ids[i] = s.ID
	}
	return ids
}

// SourceByID finds a source by its local id.
func (p *EvidencePack) SourceByID(id string) (Source, bool) {
	for _, s := range p.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// Validate checks the structural invariants of a pack read from disk or
// produced by a capture.
func (p *EvidencePack) Validate() error {
	if p.SchemaVersion != SchemaVersion {
		return fmt.Errorf("unsupported schema version %q (want %q)", p.SchemaVersion, SchemaVersion)
	}
	if p.RunID == "" {
		return fmt.Errorf("runId is empty")
	}
	seen := make(map[string]bool, len(p.Sources))
	for i, s := range p.Sources {
		if s.OrderIndex != i {
			return fmt.Errorf("sources[%d]: orderIndex is %d", i, s.OrderIndex)
		}
		if s.ID == "" {
			return fmt.Errorf("sources[%d]: id is empty", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = true
		if p.Redacted {
			continue
		}
		if want := SourceKey(s.Citation, s.WebPageURL, s.Title); s.SourceKey != want {
			return fmt.Errorf("sources[%d]: sourceKey %q does not match content (want %q)", i, s.SourceKey, want)
		}
	}
	return nil
}

// Clone returns a deep copy of the pack.
func (p *EvidencePack) Clone() *EvidencePack {
	out := *p
	out.Sources = make([]Source, len(p.Sources))
	for i, s := range p.Sources {
		out.Sources[i] = s.clone()
	}
	out.Diagnostics.Warnings = cloneStrings(p.Diagnostics.Warnings)
	out.Diagnostics.Errors = cloneStrings(p.Diagnostics.Errors)
	return &out
}

func (s Source) clone() Source {
	out := s
	out.Tags = cloneStrings(s.Tags)
	if s.Indexed.Fields != nil {
		out.Indexed.Fields = make([]IndexedField, len(s.Indexed.Fields))
		copy(out.Indexed.Fields, s.Indexed.Fields)
	}
	out.Indexed.TextBlocks = cloneStrings(s.Indexed.TextBlocks)
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
