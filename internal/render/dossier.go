package render

import (
	"fmt"
	"strings"

	"github.com/ppiankov/ancestra/internal/model"
)

// Sentences used for empty dossier sections. An empty section means the
// model found nothing, so it is stated rather than left out.
const (
	NoSummary     = "No summary was produced."
	NoFacts       = "No verified facts were found."
	NoConflicts   = "No conflicts were found."
	NoTimeline    = "No timeline events were found."
	NoSuggestions = "No research suggestions were made."
)

// RenderDossier renders a validated synthesis as a citation-traceable
// document. Every fact, conflict position and timeline line carries its
// source ids inline.
func RenderDossier(person model.Person, s *model.Synthesis) string {
	var b strings.Builder

	name := person.Name
	if name == "" {
		name = "Unknown person"
	}
	fmt.Fprintf(&b, "# Research Dossier: %s\n\n", inline(name))
	if person.ExternalID != "" {
		fmt.Fprintf(&b, "- **Person ID:** %s\n", inline(person.ExternalID))
	}
	if person.BirthDate != "" {
		fmt.Fprintf(&b, "- **Born:** %s\n", inline(person.BirthDate))
	}
	if person.DeathDate != "" {
		fmt.Fprintf(&b, "- **Died:** %s\n", inline(person.DeathDate))
	}
	b.WriteString("\n_AI-assisted interpretation. Each statement lists the captured sources it rests on._\n\n")

	b.WriteString("## Summary\n\n")
	if strings.TrimSpace(s.Summary) == "" {
		b.WriteString(NoSummary + "\n\n")
	} else {
		b.WriteString(strings.TrimSpace(s.Summary) + "\n\n")
	}

	b.WriteString("## Verified Facts\n\n")
	if len(s.VerifiedFacts) == 0 {
		b.WriteString(NoFacts + "\n")
	}
	for _, f := range s.VerifiedFacts {
		fmt.Fprintf(&b, "- %s _(confidence: %s)_ %s\n", inline(f.Fact), inline(f.Confidence), sources(f.SourceIDs))
	}
	b.WriteString("\n")

	b.WriteString("## Conflicts\n\n")
	if len(s.Conflicts) == 0 {
		b.WriteString(NoConflicts + "\n\n")
	}
	for i, c := range s.Conflicts {
		var all []string
		for _, p := range c.Positions {
			all = append(all, p.SourceIDs...)
		}
		fmt.Fprintf(&b, "### Conflict %d: %s %s\n\n", i+1, inline(c.Description), sources(all))
		for _, p := range c.Positions {
			fmt.Fprintf(&b, "- %s %s\n", inline(p.Claim), sources(p.SourceIDs))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Timeline\n\n")
	if len(s.Timeline) == 0 {
		b.WriteString(NoTimeline + "\n")
	}
	for _, t := range s.Timeline {
		fmt.Fprintf(&b, "- **%s**: %s %s\n", inline(t.Date), inline(t.Event), sources(t.SourceIDs))
	}
	b.WriteString("\n")

	b.WriteString("## Research Suggestions\n\n")
	if len(s.ResearchSuggestions) == 0 {
		b.WriteString(NoSuggestions + "\n")
	}
	for _, r := range s.ResearchSuggestions {
		fmt.Fprintf(&b, "- %s\n", inline(r))
	}
	return b.String()
}

// sources formats ids as "[Sources: S1, S3]", deduplicated in order.
func sources(ids []string) string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if len(out) == 0 {
		return "[Sources: none]"
	}
	return "[Sources: " + strings.Join(out, ", ") + "]"
}
