package capture

import (
	"context"
	"strings"

	"github.com/ppiankov/ancestra/internal/model"
)

// Document is a page the extractor can walk. Implementations exist for saved
// HTML (StaticDocument) and a browser tab (LiveDocument).
type Document interface {
	// URL returns the page address.
	URL() string

	// Title returns the page title.
	Title() string

	// Locale returns the UI language of the page, if known.
	Locale() string

	// Mode identifies how the page is accessed.
	Mode() model.CaptureMode

	// Find returns the elements matching selector. An error means the page
	// itself is unusable, not that nothing matched.
	Find(ctx context.Context, selector string) ([]Element, error)
}

// Element is one node of a Document. Lookups never fail: a missing node
// degrades to an empty result.
type Element interface {
	// Find returns descendants matching selector.
	Find(selector string) []Element

	// Text returns the visible text with whitespace collapsed.
	Text() string

	// InnerText returns the visible text keeping line structure.
	InnerText() string

	// Attr returns an attribute value or "".
	Attr(name string) string

	// Click activates the element.
	Click(ctx context.Context) error
}

// collapseSpace folds runs of whitespace into single spaces.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidyLines trims each line and drops empty ones.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = collapseSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
