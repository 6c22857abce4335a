package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ppiankov/ancestra/internal/model"
)

// LiveOptions configures the browser used for live capture.
type LiveOptions struct {
	Headless    bool
	PageTimeout time.Duration
	ControlURL  string // attach to an existing browser instead of launching one
}

// LiveDocument is a page open in a real browser tab driven over CDP.
type LiveDocument struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	url      string
}

// OpenLive launches (or attaches to) a browser and loads url. The caller must
// Close the document.
func OpenLive(ctx context.Context, url string, opts LiveOptions) (*LiveDocument, error) {
	controlURL := opts.ControlURL
	var l *launcher.Launcher
	if controlURL == "" {
		l = launcher.New().Headless(opts.Headless)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Cleanup()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	doc := &LiveDocument{browser: browser, launcher: l, url: url}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		_ = doc.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	doc.page = page

	timeout := opts.PageTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		_ = doc.Close()
		return nil, fmt.Errorf("wait for page load: %w", err)
	}
	return doc, nil
}

// Close closes the tab and browser.
func (d *LiveDocument) Close() error {
	var err error
	if d.page != nil {
		err = d.page.Close()
	}
	if d.launcher != nil {
		if closeErr := d.browser.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		d.launcher.Cleanup()
	}
	return err
}

// URL returns the current page address.
func (d *LiveDocument) URL() string {
	if info, err := d.page.Info(); err == nil && info.URL != "" {
		return info.URL
	}
	return d.url
}

// Title returns the current page title.
func (d *LiveDocument) Title() string {
	if info, err := d.page.Info(); err == nil {
		return collapseSpace(info.Title)
	}
	return ""
}

// Locale returns document.documentElement.lang.
func (d *LiveDocument) Locale() string {
	res, err := d.page.Eval(`() => document.documentElement.lang || ""`)
	if err != nil {
		return ""
	}
	return res.Value.String()
}

// Mode reports live capture.
func (d *LiveDocument) Mode() model.CaptureMode { return model.CaptureModeLive }

// Find returns matching elements. A failure here means the tab is gone.
func (d *LiveDocument) Find(ctx context.Context, selector string) ([]Element, error) {
	els, err := d.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return wrapLive(els), nil
}

func wrapLive(els rod.Elements) []Element {
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &liveElement{el: el})
	}
	return out
}

type liveElement struct {
	el *rod.Element
}

func (e *liveElement) Find(selector string) []Element {
	els, err := e.el.Elements(selector)
	if err != nil {
		return nil
	}
	return wrapLive(els)
}

func (e *liveElement) Text() string {
	return collapseSpace(e.rawText())
}

func (e *liveElement) InnerText() string {
	return tidyLines(e.rawText())
}

func (e *liveElement) rawText() string {
	text, err := e.el.Text()
	if err != nil {
		return ""
	}
	return text
}

func (e *liveElement) Attr(name string) string {
	v, err := e.el.Attribute(name)
	if err != nil || v == nil {
		return ""
	}
	return *v
}

func (e *liveElement) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("scroll into view: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}
