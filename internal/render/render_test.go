package render

import (
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/ancestra/internal/model"
)

func testPack() *model.EvidencePack {
	return &model.EvidencePack{
		SchemaVersion: model.SchemaVersion,
		RunID:         "2024-05-01T12-34-56-789Z",
		CapturedAt:    time.Date(2024, 5, 1, 12, 34, 56, 789_000_000, time.UTC),
		SourceURL:     "https://example.org/p",
		Person:        model.Person{ExternalID: "AB12-CDE", Name: "Mary Smith", BirthDate: "1850"},
		Sources: []model.Source{
			{
				ID: "S1", OrderIndex: 0, Title: "England Census | 1881",
				Citation: "Line one\nLine two", Tags: []string{"census", "1881"},
				Indexed: model.Indexed{
					Fields:     []model.IndexedField{{Label: "Name", Value: `a|b\c<script>`}},
					TextBlocks: []string{"block with ``` fence"},
				},
				RawText: "raw ```` text",
			},
			{ID: "S2", OrderIndex: 1, Title: "Burial", Tags: []string{}},
		},
		Diagnostics: model.Diagnostics{Mode: model.CaptureModeStatic, Warnings: []string{"S2: no title element"}},
	}
}

var generated = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

func TestRenderRaw_Deterministic(t *testing.T) {
	pack := testPack()
	a := RenderRaw(pack, generated)
	b := RenderRaw(pack, generated)
	if a != b {
		t.Fatal("RenderRaw is not deterministic")
	}
	if !strings.Contains(a, "2024-06-01T08:00:00.000Z") {
		t.Error("generatedAt stamp missing")
	}
}

func TestRenderRaw_OneAnchorPerSource(t *testing.T) {
	out := RenderRaw(testPack(), generated)
	for _, id := range []string{"S1", "S2"} {
		anchor := `<a id="` + AnchorID(id) + `"></a>`
		if n := strings.Count(out, anchor); n != 1 {
			t.Errorf("anchor for %s appears %d times", id, n)
		}
		if !strings.Contains(out, "](#"+AnchorID(id)+")") {
			t.Errorf("contents entry for %s missing", id)
		}
	}
	if strings.Index(out, `id="source-s1"`) > strings.Index(out, `id="source-s2"`) {
		t.Error("sources out of page order")
	}
}

func TestRenderRaw_EscapesTableCells(t *testing.T) {
	out := RenderRaw(testPack(), generated)
	for _, want := range []string{
		`| Name | a\|b\\c&lt;script> |`,
		`| Citation | Line one<br>Line two |`,
		`| Title | England Census \| 1881 |`,
		`| Tags | census; 1881 |`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing escaped row %q", want)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Error("raw HTML leaked into the document")
	}
}

func TestRenderRaw_FencesOutgrowContent(t *testing.T) {
	out := RenderRaw(testPack(), generated)
	if !strings.Contains(out, "````text\nblock with ``` fence\n````") {
		t.Error("text block fence should be longer than its content's backtick run")
	}
	if !strings.Contains(out, "`````text\nraw ```` text\n`````") {
		t.Error("raw text fence should be longer than its content's backtick run")
	}
}

func TestRenderRaw_EmptySections(t *testing.T) {
	out := RenderRaw(testPack(), generated)
	for _, want := range []string{"No indexed fields were captured.", "No raw text was captured.", "### Errors\n\nNone."} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}

	empty := testPack()
	empty.Sources = nil
	if !strings.Contains(RenderRaw(empty, generated), "No sources were captured.") {
		t.Error("empty pack should say so")
	}
}

func TestAnchorsFor_DuplicateIDs(t *testing.T) {
	got := anchorsFor([]model.Source{{ID: "S1"}, {ID: "S1"}})
	if got[0] != "source-s1" || got[1] != "source-s1-2" {
		t.Errorf("anchors = %v", got)
	}
}

func TestRenderDossier_EmptySectionsAreExplicit(t *testing.T) {
	out := RenderDossier(model.Person{Name: "Mary Smith"}, &model.Synthesis{})
	for _, want := range []string{NoSummary, NoFacts, NoConflicts, NoTimeline, NoSuggestions} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q", want)
		}
	}
	for _, heading := range []string{"## Summary", "## Verified Facts", "## Conflicts", "## Timeline", "## Research Suggestions"} {
		if !strings.Contains(out, heading) {
			t.Errorf("missing heading %q", heading)
		}
	}
}

func TestRenderDossier_InlineSources(t *testing.T) {
	s := &model.Synthesis{
		Summary: "Mary Smith lived in Leeds.",
		VerifiedFacts: []model.VerifiedFact{
			{Fact: "Born 1850", SourceIDs: []string{"S1", "S3", "S1"}, Confidence: "high"},
		},
		Conflicts: []model.Conflict{{
			Description: "Birth year",
			Positions: []model.ConflictPosition{
				{Claim: "1850", SourceIDs: []string{"S1"}},
				{Claim: "1851", SourceIDs: []string{"S2"}},
			},
		}},
		Timeline:            []model.TimelineEntry{{Date: "1881", Event: "Census in Leeds", SourceIDs: []string{"S1"}}},
		ResearchSuggestions: []string{"Search parish registers"},
	}
	out := RenderDossier(model.Person{Name: "Mary Smith", ExternalID: "AB12-CDE"}, s)

	for _, want := range []string{
		"- Born 1850 _(confidence: high)_ [Sources: S1, S3]",
		"### Conflict 1: Birth year [Sources: S1, S2]",
		"- 1850 [Sources: S1]",
		"- 1851 [Sources: S2]",
		"- **1881**: Census in Leeds [Sources: S1]",
		"- Search parish registers",
		"- **Person ID:** AB12-CDE",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing line %q in:\n%s", want, out)
		}
	}
	if out != RenderDossier(model.Person{Name: "Mary Smith", ExternalID: "AB12-CDE"}, s) {
		t.Error("RenderDossier is not deterministic")
	}
}
