package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/ancestra/internal/fetch"
	"github.com/ppiankov/ancestra/internal/model"
)

// ErrIncomplete reports a capture whose extraction stopped before every
// source was read.
var ErrIncomplete = errors.New("capture stopped before every source was read")

// Incomplete returns an error wrapping ErrIncomplete when pack's extraction
// was cancelled, and nil otherwise.
func Incomplete(pack *model.EvidencePack) error {
	if pack == nil || !pack.Diagnostics.Cancelled {
		return nil
	}
	return fmt.Errorf("%w: %d of %d sources extracted",
		ErrIncomplete, pack.Diagnostics.SourcesExtracted, pack.Diagnostics.SourcesDiscovered)
}

// PageFetcher retrieves page HTML for static capture.
type PageFetcher interface {
	FetchWithRetry(ctx context.Context, rawURL string) (*fetch.Page, error)
}

// Capturer opens documents from a file, a fetched URL or a browser and runs
// the extractor over them.
type Capturer struct {
	registry *Registry
	cfg      model.CaptureConfig
	fetcher  PageFetcher
	opts     []Option
}

// NewCapturer creates a capturer. fetcher is only needed for CaptureURL.
func NewCapturer(cfg model.CaptureConfig, fetcher PageFetcher, opts ...Option) *Capturer {
	return &Capturer{registry: NewRegistry(), cfg: cfg, fetcher: fetcher, opts: opts}
}

// Registry returns the profile registry, for registering extra profiles.
func (c *Capturer) Registry() *Registry { return c.registry }

// profileFor picks the configured profile, or the one registered for the host.
func (c *Capturer) profileFor(rawURL string) (*Profile, error) {
	if c.cfg.Profile != "" {
		p, ok := c.registry.ByName(c.cfg.Profile)
		if !ok {
			return nil, fmt.Errorf("unknown capture profile %q (known: %v)", c.cfg.Profile, c.registry.Names())
		}
		return p, nil
	}
	return c.registry.ForURL(rawURL), nil
}

func (c *Capturer) extract(ctx context.Context, doc Document) (*model.EvidencePack, error) {
	profile, err := c.profileFor(doc.URL())
	if err != nil {
		return nil, err
	}
	return NewExtractor(profile, c.cfg.Pacing, c.opts...).Extract(ctx, doc)
}

// CaptureFile captures a saved page. pageURL overrides the address recorded
// in the file, if any.
func (c *Capturer) CaptureFile(ctx context.Context, path, pageURL string) (*model.EvidencePack, error) {
	doc, err := OpenFile(path, pageURL)
	if err != nil {
		return nil, err
	}
	return c.extract(ctx, doc)
}

// CaptureURL fetches a page politely and captures it statically. The HTTP
// timeout bounds each fetch attempt only; extraction runs under ctx.
func (c *Capturer) CaptureURL(ctx context.Context, rawURL string) (*model.EvidencePack, error) {
	if c.fetcher == nil {
		return nil, fmt.Errorf("capture %s: no fetcher configured", rawURL)
	}
	page, err := c.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return nil, &CaptureError{URL: rawURL, Err: err}
	}
	doc, err := ParseHTML(page.HTML, page.FinalURL)
	if err != nil {
		return nil, &CaptureError{URL: rawURL, Err: err}
	}
	return c.extract(ctx, doc)
}

// CaptureLive opens the page in a browser and captures it, clicking the
// page's own disclosure toggles. PageTimeout bounds the page load only;
// extraction runs under ctx.
func (c *Capturer) CaptureLive(ctx context.Context, rawURL string, controlURL string) (*model.EvidencePack, error) {
	doc, err := OpenLive(ctx, rawURL, LiveOptions{
		Headless:    c.cfg.Headless,
		PageTimeout: c.cfg.PageTimeout,
		ControlURL:  controlURL,
	})
	if err != nil {
		return nil, &CaptureError{URL: rawURL, Err: err}
	}
	defer func() { _ = doc.Close() }()
	return c.extract(ctx, doc)
}
