package model

import (
	"fmt"
	"strings"
)

// RedactionKind classifies what a redaction removed.
type RedactionKind string

const (
	RedactionEmail         RedactionKind = "email"
	RedactionPhone         RedactionKind = "phone"
	RedactionStreetAddress RedactionKind = "street_address"
	RedactionLivingMarker  RedactionKind = "living_marker"
	RedactionContributor   RedactionKind = "contributor"
)

// RedactionRecord describes one replacement. The original text is never kept.
type RedactionRecord struct {
	Kind      RedactionKind `json:"kind"`
	FieldPath string        `json:"fieldPath"`
	SourceID  string        `json:"sourceId,omitempty"`
}

// RedactionResult is the output of redacting a pack.
type RedactionResult struct {
	RedactedPack        *EvidencePack     `json:"redactedPack"`
	Redactions          []RedactionRecord `json:"redactions"`
	HasLivingIndicators bool              `json:"hasLivingIndicators"`
	LivingSignals       []string          `json:"livingSignals,omitempty"`
}

// redactionKinds fixes the order kinds are listed in summaries.
var redactionKinds = []RedactionKind{
	RedactionEmail, RedactionPhone, RedactionStreetAddress, RedactionLivingMarker, RedactionContributor,
}

// Summary describes the redaction in a few human-readable lines.
func (r RedactionResult) Summary() string {
	var b strings.Builder
	if len(r.Redactions) == 0 {
		b.WriteString("No redactions applied.\n")
	} else {
		counts := make(map[RedactionKind]int)
		sources := make(map[string]bool)
		for _, rec := range r.Redactions {
			counts[rec.Kind]++
			if rec.SourceID != "" {
				sources[rec.SourceID] = true
			}
		}
		var parts []string
		for _, k := range redactionKinds {
			if n := counts[k]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, strings.ReplaceAll(string(k), "_", " ")))
			}
		}
		fmt.Fprintf(&b, "Redacted %d item(s) across %d source(s): %s.\n",
			len(r.Redactions), len(sources), strings.Join(parts, ", "))
	}

	if r.HasLivingIndicators {
		b.WriteString("Living indicators: yes. Review before sharing.\n")
		for _, s := range r.LivingSignals {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	} else {
		b.WriteString("Living indicators: none found.\n")
	}
	return b.String()
}
