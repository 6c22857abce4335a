package render

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/ancestra/internal/model"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// AnchorID returns the anchor name used for a source section.
func AnchorID(sourceID string) string {
	var b strings.Builder
	b.WriteString("source-")
	for _, r := range strings.ToLower(sourceID) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// RenderRaw renders every field of the pack, in page order, as markdown.
// generatedAt is the only input not taken from the pack.
func RenderRaw(pack *model.EvidencePack, generatedAt time.Time) string {
	var b strings.Builder

	name := pack.Person.Name
	if name == "" {
		name = "Unknown person"
	}
	fmt.Fprintf(&b, "# Evidence Pack: %s\n\n", inline(name))
	fmt.Fprintf(&b, "_Raw capture of run `%s`, generated %s. Nothing here is summarized or interpreted._\n\n",
		pack.RunID, generatedAt.UTC().Format(timestampLayout))

	b.WriteString("## Capture\n\n")
	table(&b, [2]string{"Field", "Value"}, []row{
		{"Schema version", pack.SchemaVersion},
		{"Run ID", pack.RunID},
		{"Captured at", pack.CapturedAt.UTC().Format(timestampLayout)},
		{"Extractor version", pack.ExtractorVersion},
		{"Extraction duration (ms)", strconv.FormatInt(pack.ExtractionDurationMs, 10)},
		{"Source URL", pack.SourceURL},
		{"Page title", pack.PageTitle},
		{"UI locale", pack.UILocale},
		{"Redacted", yesNo(pack.Redacted)},
	})

	b.WriteString("## Person\n\n")
	table(&b, [2]string{"Field", "Value"}, []row{
		{"External ID", pack.Person.ExternalID},
		{"Name", pack.Person.Name},
		{"Birth date", pack.Person.BirthDate},
		{"Death date", pack.Person.DeathDate},
	})

	anchors := anchorsFor(pack.Sources)

	b.WriteString("## Contents\n\n")
	if len(pack.Sources) == 0 {
		b.WriteString("No sources were captured.\n\n")
	}
	for i, s := range pack.Sources {
		fmt.Fprintf(&b, "%d. [%s: %s](#%s)\n", i+1, inline(s.ID), inline(s.Title), anchors[i])
	}
	if len(pack.Sources) > 0 {
		b.WriteString("\n")
	}

	b.WriteString("## Sources\n\n")
	for i, s := range pack.Sources {
		renderSource(&b, s, anchors[i])
	}

	renderDiagnostics(&b, pack.Diagnostics)
	return b.String()
}

// anchorsFor assigns one anchor per source, suffixing repeats so every anchor
// is unique even in a malformed pack.
func anchorsFor(sources []model.Source) []string {
	seen := make(map[string]int, len(sources))
	out := make([]string, len(sources))
	for i, s := range sources {
		a := AnchorID(s.ID)
		seen[a]++
		if n := seen[a]; n > 1 {
			a = fmt.Sprintf("%s-%d", a, n)
		}
		out[i] = a
	}
	return out
}

func renderSource(b *strings.Builder, s model.Source, anchor string) {
	fmt.Fprintf(b, "<a id=\"%s\"></a>\n\n### %s: %s\n\n", anchor, inline(s.ID), inline(s.Title))
	table(b, [2]string{"Field", "Value"}, []row{
		{"Order index", strconv.Itoa(s.OrderIndex)},
		{"Source key", s.SourceKey},
		{"Source type", s.SourceType},
		{"Title", s.Title},
		{"Date", s.Date},
		{"Citation", s.Citation},
		{"Web page URL", s.WebPageURL},
		{"Attached by", s.AttachedBy},
		{"Attached at", s.AttachedAt},
		{"Reason attached", s.ReasonAttached},
		{"Tags", strings.Join(s.Tags, "; ")},
		{"Expanded", yesNo(s.Expanded)},
		{"Expansion attempts", strconv.Itoa(s.ExpansionAttempts)},
		{"Expansion succeeded", yesNo(s.ExpansionSucceeded)},
	})

	b.WriteString("#### Indexed fields\n\n")
	if len(s.Indexed.Fields) == 0 {
		b.WriteString("No indexed fields were captured.\n\n")
	} else {
		rows := make([]row, len(s.Indexed.Fields))
		for i, f := range s.Indexed.Fields {
			rows[i] = row{f.Label, f.Value}
		}
		table(b, [2]string{"Label", "Value"}, rows)
	}

	b.WriteString("#### Text blocks\n\n")
	if len(s.Indexed.TextBlocks) == 0 {
		b.WriteString("No text blocks were captured.\n\n")
	}
	for _, block := range s.Indexed.TextBlocks {
		fence(b, block)
		b.WriteString("\n")
	}

	b.WriteString("#### Raw text\n\n")
	if s.RawText == "" {
		b.WriteString("No raw text was captured.\n\n")
	} else {
		fence(b, s.RawText)
		b.WriteString("\n")
	}
}

func renderDiagnostics(b *strings.Builder, d model.Diagnostics) {
	b.WriteString("## Diagnostics\n\n")
	table(b, [2]string{"Field", "Value"}, []row{
		{"Mode", string(d.Mode)},
		{"Profile", d.Profile},
		{"Sources discovered", strconv.Itoa(d.SourcesDiscovered)},
		{"Sources extracted", strconv.Itoa(d.SourcesExtracted)},
		{"Expansions attempted", strconv.Itoa(d.ExpansionsAttempted)},
		{"Expansions succeeded", strconv.Itoa(d.ExpansionsSucceeded)},
		{"Expansion cap reached", yesNo(d.ExpansionCapReached)},
		{"Cancelled", yesNo(d.Cancelled)},
		{"Complete", yesNo(d.Complete)},
	})

	list := func(title string, items []string) {
		fmt.Fprintf(b, "### %s\n\n", title)
		if len(items) == 0 {
			b.WriteString("None.\n\n")
			return
		}
		for _, item := range items {
			fmt.Fprintf(b, "- %s\n", inline(item))
		}
		b.WriteString("\n")
	}
	list("Warnings", d.Warnings)
	list("Errors", d.Errors)
}
