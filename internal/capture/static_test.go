package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticElement_HiddenTextExcluded(t *testing.T) {
	page := `<html><body><div id="root">
<p>Visible line</p>
<p hidden>Hidden by attribute</p>
<p aria-hidden="true">Hidden by aria</p>
<p style="display: none">Hidden by style</p>
<script>var secret = 1;</script>
<p>Second <b>visible</b> line</p>
</div></body></html>`
	doc := mustParse(t, page, "")
	els, err := doc.Find(context.Background(), "#root")
	if err != nil || len(els) != 1 {
		t.Fatalf("Find: %v (%d)", err, len(els))
	}

	want := "Visible line\nSecond visible line"
	if got := els[0].InnerText(); got != want {
		t.Errorf("InnerText = %q, want %q", got, want)
	}
	if got := els[0].Text(); got != "Visible line Second visible line" {
		t.Errorf("Text = %q", got)
	}
}

func TestStaticElement_ClickRevealsControlledPanel(t *testing.T) {
	page := `<html><body>
<button id="t" aria-controls="9panel" aria-expanded="false">Show</button>
<div id="9panel" aria-hidden="true"><span>Revealed</span></div>
</body></html>`
	doc := mustParse(t, page, "")
	ctx := context.Background()

	toggles, _ := doc.Find(ctx, "#t")
	panels, _ := doc.Find(ctx, "span")
	if panels[0].Text() != "" {
		t.Fatal("panel content should start hidden")
	}
	if err := toggles[0].Click(ctx); err != nil {
		t.Fatalf("Click: %v", err)
	}
	if got := panels[0].Text(); got != "Revealed" {
		t.Errorf("after click Text = %q", got)
	}
	if toggles[0].Attr("aria-expanded") != "true" {
		t.Error("toggle should be marked expanded")
	}
}

func TestStaticElement_ClickWithoutPanel(t *testing.T) {
	doc := mustParse(t, `<html><body><button id="t">Show</button></body></html>`, "")
	toggles, _ := doc.Find(context.Background(), "#t")
	if err := toggles[0].Click(context.Background()); err == nil {
		t.Error("expected an error for a toggle without a panel")
	}
}

func TestStaticDocument_FindRespectsContext(t *testing.T) {
	doc := mustParse(t, `<html><body></body></html>`, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := doc.Find(ctx, "body"); err == nil {
		t.Error("expected context error")
	}
}

func TestOpenFile_CanonicalURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	page := `<html><head><link rel="canonical" href="https://www.familysearch.org/tree/person/sources/AB12-CDE"></head><body></body></html>`
	if err := os.WriteFile(path, []byte(page), 0o644); err != nil {
		t.Fatal(err)
	}

	doc, err := OpenFile(path, "")
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if doc.URL() != "https://www.familysearch.org/tree/person/sources/AB12-CDE" {
		t.Errorf("URL = %q", doc.URL())
	}

	doc, err = OpenFile(path, "https://override.example/p")
	if err != nil {
		t.Fatal(err)
	}
	if doc.URL() != "https://override.example/p" {
		t.Errorf("explicit URL not kept: %q", doc.URL())
	}
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		title, citation, text string
		want                  string
	}{
		{"England and Wales Census, 1881", "", "", SourceTypeCensus},
		{"Find a Grave Index", "", "", SourceTypeBurial},
		{"Ohio, County Marriages, 1789-2016", "", "", SourceTypeMarriage},
		{"Obituary of John Doe", "", "death notice", SourceTypeObituary},
		{"Record", "New York Passenger Lists", "", SourceTypeImmigration},
		{"Record", "", "John died in 1901", SourceTypeDeath},
		{"Rebirthing ceremony", "", "", SourceTypeOther},
		{"", "", "", SourceTypeOther},
	}
	for _, tt := range tests {
		if got := ClassifySource(tt.title, tt.citation, tt.text); got != tt.want {
			t.Errorf("ClassifySource(%q, %q, %q) = %q, want %q", tt.title, tt.citation, tt.text, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if got := r.ForURL("https://www.familysearch.org/tree/person/sources/X").Name; got != "familysearch" {
		t.Errorf("ForURL(familysearch) = %s", got)
	}
	if got := r.ForURL("https://notfamilysearch.org/p").Name; got != "generic" {
		t.Errorf("host suffix must match on a label boundary, got %s", got)
	}
	if _, ok := r.ByName("generic"); !ok {
		t.Error("generic profile should be addressable by name")
	}
	if _, ok := r.ByName("nope"); ok {
		t.Error("unknown profile should not resolve")
	}
	if names := r.Names(); len(names) != 2 || names[len(names)-1] != "generic" {
		t.Errorf("Names = %v", names)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct{ base, href, want string }{
		{"https://example.org/a/b", "/ark:/1", "https://example.org/ark:/1"},
		{"https://example.org/a/b", "c", "https://example.org/a/c"},
		{"https://example.org/", "https://other.org/x", "https://other.org/x"},
		{"https://example.org/", "#top", ""},
		{"https://example.org/", "javascript:void(0)", ""},
		{"", "/rel", "/rel"},
	}
	for _, tt := range tests {
		if got := resolveURL(tt.base, tt.href); got != tt.want {
			t.Errorf("resolveURL(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
