package capture

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ppiankov/ancestra/internal/model"
	"golang.org/x/net/html"
)

// StaticDocument is a parsed HTML page. Clicking a disclosure toggle reveals
// the panel it controls, the way the page's own script would.
type StaticDocument struct {
	doc *goquery.Document
	url string
}

// ParseHTML parses page HTML captured from url.
func ParseHTML(htmlContent string, url string) (*StaticDocument, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &StaticDocument{doc: doc, url: url}, nil
}

// OpenFile parses a saved page from disk. url records where it came from.
func OpenFile(path string, url string) (*StaticDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	if url == "" {
		url = canonicalURL(string(data))
	}
	return ParseHTML(string(data), url)
}

// canonicalURL recovers the page address from a saved page, if present.
func canonicalURL(htmlContent string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}
	if href, ok := doc.Find(`link[rel="canonical"]`).Attr("href"); ok {
		return strings.TrimSpace(href)
	}
	if content, ok := doc.Find(`meta[property="og:url"]`).Attr("content"); ok {
		return strings.TrimSpace(content)
	}
	return ""
}

// URL returns the page address.
func (d *StaticDocument) URL() string { return d.url }

// Title returns the <title> text.
func (d *StaticDocument) Title() string {
	return collapseSpace(d.doc.Find("title").First().Text())
}

// Locale returns the lang attribute of <html>.
func (d *StaticDocument) Locale() string {
	lang, _ := d.doc.Find("html").First().Attr("lang")
	return strings.TrimSpace(lang)
}

// Mode reports static capture.
func (d *StaticDocument) Mode() model.CaptureMode { return model.CaptureModeStatic }

// Find returns matching elements in document order.
func (d *StaticDocument) Find(ctx context.Context, selector string) ([]Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.wrap(d.doc.Find(selector)), nil
}

func (d *StaticDocument) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{sel: s, doc: d})
	})
	return out
}

type staticElement struct {
	sel *goquery.Selection
	doc *StaticDocument
}

func (e *staticElement) Find(selector string) []Element {
	return e.doc.wrap(e.sel.Find(selector))
}

func (e *staticElement) Text() string {
	return collapseSpace(e.visibleText())
}

func (e *staticElement) InnerText() string {
	return tidyLines(e.visibleText())
}

func (e *staticElement) Attr(name string) string {
	v, _ := e.sel.Attr(name)
	return strings.TrimSpace(v)
}

// Click reveals the panel named by aria-controls (or data-target).
func (e *staticElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var panel *goquery.Selection
	if id := e.Attr("aria-controls"); id != "" {
		panel = e.doc.doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr("id")
			return v == id
		})
	} else if target := e.Attr("data-target"); target != "" {
		panel = e.doc.doc.Find(target)
	}
	if panel == nil || panel.Length() == 0 {
		return fmt.Errorf("toggle does not control a panel")
	}

	panel.RemoveAttr("hidden")
	panel.RemoveAttr("aria-hidden")
	if style, ok := panel.Attr("style"); ok && hidesElement(style) {
		panel.RemoveAttr("style")
	}
	e.sel.SetAttr("aria-expanded", "true")
	return nil
}

func (e *staticElement) visibleText() string {
	if len(e.sel.Nodes) == 0 {
		return ""
	}
	n := e.sel.Nodes[0]
	for p := n; p != nil; p = p.Parent {
		if isHidden(p) {
			return ""
		}
	}
	var buf strings.Builder
	writeVisible(&buf, n)
	return buf.String()
}

// blockElements start a new line in flattened text.
var blockElements = map[string]bool{
	"p": true, "div": true, "li": true, "tr": true, "br": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "dt": true,
	"dd": true, "section": true, "article": true, "header": true, "footer": true,
	"table": true, "ul": true, "ol": true, "dl": true, "blockquote": true,
}

func writeVisible(buf *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		buf.WriteString(n.Data)
		return
	case html.ElementNode:
		if isHidden(n) {
			return
		}
		switch n.Data {
		case "script", "style", "noscript", "template":
			return
		}
	}

	block := n.Type == html.ElementNode && blockElements[n.Data]
	if block {
		buf.WriteString("\n")
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeVisible(buf, c)
		if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
			buf.WriteString(" ")
		}
	}
	if block {
		buf.WriteString("\n")
	}
}

func isHidden(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	for _, attr := range n.Attr {
		switch attr.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(attr.Val, "true") {
				return true
			}
		case "style":
			if hidesElement(attr.Val) {
				return true
			}
		}
	}
	return false
}

func hidesElement(style string) bool {
	s := strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}
