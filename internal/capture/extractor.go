package capture

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/ancestra/internal/logging"
	"github.com/ppiankov/ancestra/internal/model"
	"go.uber.org/zap"
)

// ExtractorVersion is stamped into every pack.
const ExtractorVersion = "ancestra-extractor/0.3.0"

// ProgressPhase names a point in the per-source cycle.
type ProgressPhase string

const (
	PhaseDiscovered ProgressPhase = "discovered"
	PhaseExpanding  ProgressPhase = "expanding"
	PhaseExtracted  ProgressPhase = "extracted"
)

// ProgressEvent is reported as the extractor works through the page.
type ProgressEvent struct {
	Phase    ProgressPhase
	Index    int // zero-based source position
	Total    int
	SourceID string
}

// ProgressFunc receives progress events. It runs on the extraction goroutine.
type ProgressFunc func(ProgressEvent)

// CaptureError is a fatal capture failure. The partial pack is still returned
// alongside it.
type CaptureError struct {
	URL string
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.URL, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// Option configures an Extractor.
type Option func(*Extractor)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Extractor) { e.logger = logging.OrNop(l) }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Extractor) { e.progress = fn }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// WithSleep overrides the pacing wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Extractor) { e.sleep = sleep }
}

// Extractor turns a page into an Evidence Pack one source at a time, pausing
// between actions. It never processes two sources at once.
type Extractor struct {
	profile  *Profile
	pacing   model.PacingConfig
	logger   *zap.Logger
	progress ProgressFunc
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewExtractor creates an extractor for the given site profile.
func NewExtractor(profile *Profile, pacing model.PacingConfig, opts ...Option) *Extractor {
	if profile == nil {
		profile = GenericProfile()
	}
	e := &Extractor{
		profile: profile,
		pacing:  pacing,
		logger:  zap.NewNop(),
		now:     time.Now,
		sleep:   pause,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// pause waits for d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Extract captures doc. Cancelling ctx stops before the next source and
// returns what was collected with a nil error. A non-nil error is always a
// *CaptureError and comes with the partial pack.
func (e *Extractor) Extract(ctx context.Context, doc Document) (*model.EvidencePack, error) {
	start := e.now().UTC().Truncate(time.Millisecond)
	pack := &model.EvidencePack{
		SchemaVersion:    model.SchemaVersion,
		RunID:            model.RunIDFromTime(start),
		CapturedAt:       start,
		ExtractorVersion: ExtractorVersion,
		SourceURL:        doc.URL(),
		PageTitle:        doc.Title(),
		UILocale:         doc.Locale(),
		Sources:          []model.Source{},
		Diagnostics: model.Diagnostics{
			Mode:     doc.Mode(),
			Profile:  e.profile.Name,
			Warnings: []string{},
			Errors:   []string{},
		},
	}
	diag := &pack.Diagnostics
	defer func() {
		pack.ExtractionDurationMs = e.now().Sub(start).Milliseconds()
	}()

	log := e.logger.With(zap.String("url", pack.SourceURL), zap.String("profile", e.profile.Name))

	pack.Person = e.extractPerson(ctx, doc)

	items, err := e.discover(ctx, doc)
	if err != nil {
		if ctx.Err() != nil {
			diag.Cancelled = true
			return pack, nil
		}
		diag.Errors = append(diag.Errors, err.Error())
		log.Error("capture aborted", zap.Error(err))
		return pack, &CaptureError{URL: pack.SourceURL, Err: err}
	}

	total := len(items)
	diag.SourcesDiscovered = total
	if total == 0 {
		diag.Warnings = append(diag.Warnings, fmt.Sprintf("no source elements matched profile %q", e.profile.Name))
	}
	log.Info("sources discovered", zap.Int("count", total))

	expansions := 0
	for i, item := range items {
		if ctx.Err() != nil {
			diag.Cancelled = true
			break
		}
		id := fmt.Sprintf("S%d", i+1)
		e.report(ProgressEvent{Phase: PhaseDiscovered, Index: i, Total: total, SourceID: id})

		src, ok := e.extractSource(ctx, item, i, id, total, &expansions, diag, pack.SourceURL)
		if !ok {
			diag.Cancelled = true
			break
		}
		pack.Sources = append(pack.Sources, src)
		diag.SourcesExtracted = len(pack.Sources)
		log.Debug("source extracted",
			zap.String("source_id", id),
			zap.String("type", src.SourceType),
			zap.Bool("expanded", src.Expanded))
		e.report(ProgressEvent{Phase: PhaseExtracted, Index: i, Total: total, SourceID: id})

		if i < total-1 {
			if err := e.sleep(ctx, e.pacing.ActionDelay); err != nil {
				diag.Cancelled = true
				break
			}
		}
	}

	diag.Complete = !diag.Cancelled && diag.SourcesExtracted == diag.SourcesDiscovered
	if diag.Cancelled {
		diag.Warnings = append(diag.Warnings,
			fmt.Sprintf("capture cancelled after %d of %d sources", diag.SourcesExtracted, total))
		log.Warn("capture cancelled", zap.Int("extracted", diag.SourcesExtracted), zap.Int("discovered", total))
	}
	return pack, nil
}

func (e *Extractor) report(ev ProgressEvent) {
	if e.progress != nil {
		e.progress(ev)
	}
}

// discover finds the source elements using the first selector that matches.
func (e *Extractor) discover(ctx context.Context, doc Document) ([]Element, error) {
	for _, sel := range e.profile.SourceItem {
		items, err := doc.Find(ctx, sel)
		if err != nil {
			return nil, err
		}
		if len(items) > 0 {
			return items, nil
		}
	}
	return nil, nil
}

func (e *Extractor) extractPerson(ctx context.Context, doc Document) model.Person {
	person := model.Person{
		Name:       docText(ctx, doc, e.profile.PersonName),
		ExternalID: docText(ctx, doc, e.profile.PersonID),
		BirthDate:  docText(ctx, doc, e.profile.Birth),
		DeathDate:  docText(ctx, doc, e.profile.Death),
	}
	if person.ExternalID == "" && e.profile.PersonIDPattern != nil {
		if m := e.profile.PersonIDPattern.FindStringSubmatch(doc.URL()); len(m) > 1 {
			person.ExternalID = m[1]
		}
	}
	return person
}

// docText is firstText at document level. Query failures degrade to "".
func docText(ctx context.Context, doc Document, selectors []string) string {
	for _, sel := range selectors {
		found, err := doc.Find(ctx, sel)
		if err != nil {
			continue
		}
		for _, f := range found {
			if text := f.Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

// extractSource runs the reveal-then-read cycle for one source element. It
// reports false when ctx ended mid-element; the element is then dropped.
func (e *Extractor) extractSource(ctx context.Context, item Element, index int, id string, total int,
	expansions *int, diag *model.Diagnostics, pageURL string) (model.Source, bool) {
	src := model.Source{
		ID:         id,
		OrderIndex: index,
		Tags:       []string{},
		Indexed: model.Indexed{
			Fields:     []model.IndexedField{},
			TextBlocks: []string{},
		},
	}

	src.Expanded = e.panelText(item) != ""
	if toggle := first(item, e.profile.ExpandToggle); toggle != nil && !src.Expanded {
		if *expansions >= e.pacing.MaxExpansions {
			if !diag.ExpansionCapReached {
				diag.ExpansionCapReached = true
				diag.Warnings = append(diag.Warnings, fmt.Sprintf(
					"expansion cap of %d reached at %s; remaining sources captured without revealing indexed information",
					e.pacing.MaxExpansions, id))
			}
		} else {
			*expansions++
			src.ExpansionAttempts++
			diag.ExpansionsAttempted++
			e.report(ProgressEvent{Phase: PhaseExpanding, Index: index, Total: total, SourceID: id})

			clickErr := toggle.Click(ctx)
			if clickErr != nil {
				if ctx.Err() != nil {
					return src, false
				}
				diag.Warnings = append(diag.Warnings, fmt.Sprintf("%s: expand indexed information: %v", id, clickErr))
			}
			if err := e.sleep(ctx, e.pacing.ExpandDelay); err != nil {
				return src, false
			}
			if e.panelText(item) != "" {
				src.Expanded = true
				src.ExpansionSucceeded = true
				diag.ExpansionsSucceeded++
			} else if clickErr == nil {
				diag.Warnings = append(diag.Warnings, fmt.Sprintf("%s: indexed information did not appear", id))
			}
		}
	}

	p := e.profile
	src.Title = firstText(item, p.Title)
	src.Date = firstText(item, p.Date)
	src.Citation = firstText(item, p.Citation)
	src.WebPageURL = resolveURL(pageURL, firstAttr(item, p.WebPageURL, "href"))
	src.AttachedBy = firstText(item, p.AttachedBy)
	src.AttachedAt = firstText(item, p.AttachedAt)
	src.ReasonAttached = firstText(item, p.Reason)
	if tags := allTexts(item, p.Tags); tags != nil {
		src.Tags = tags
	}
	src.Indexed = e.indexed(item)
	src.RawText = item.InnerText()

	if src.Title == "" {
		src.Title = firstLine(src.RawText)
		diag.Warnings = append(diag.Warnings, fmt.Sprintf("%s: no title element; using first text line", id))
	}

	src.SourceKey = model.SourceKey(src.Citation, src.WebPageURL, src.Title)
	src.SourceType = ClassifySource(src.Title, src.Citation, src.RawText)
	return src, true
}

func (e *Extractor) panelText(item Element) string {
	panel := first(item, e.profile.IndexedPanel)
	if panel == nil {
		return ""
	}
	return panel.Text()
}

// indexed reads label/value rows and free text from the visible panel.
func (e *Extractor) indexed(item Element) model.Indexed {
	out := model.Indexed{Fields: []model.IndexedField{}, TextBlocks: []string{}}
	panel := first(item, e.profile.IndexedPanel)
	if panel == nil {
		return out
	}

	for _, sel := range e.profile.FieldRow {
		rows := panel.Find(sel)
		if len(rows) == 0 {
			continue
		}
		for _, row := range rows {
			label := firstText(row, e.profile.FieldLabel)
			value := firstText(row, e.profile.FieldValue)
			if label == "" && value == "" {
				continue
			}
			out.Fields = append(out.Fields, model.IndexedField{Label: label, Value: value})
		}
		break
	}

	// Definition lists without row wrappers pair dt/dd by position.
	if len(out.Fields) == 0 {
		dts, dds := panel.Find("dt"), panel.Find("dd")
		for i := 0; i < len(dts) && i < len(dds); i++ {
			label, value := dts[i].Text(), dds[i].Text()
			if label == "" && value == "" {
				continue
			}
			out.Fields = append(out.Fields, model.IndexedField{Label: label, Value: value})
		}
	}

	if blocks := allTexts(panel, e.profile.TextBlock); blocks != nil {
		out.TextBlocks = blocks
	}
	return out
}

// resolveURL makes href absolute against the page URL. Anchors, javascript:
// and mailto: links are dropped.
func resolveURL(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	base, err := url.Parse(pageURL)
	if err != nil || !base.IsAbs() {
		return href
	}
	return base.ResolveReference(ref).String()
}

// maxFallbackTitle caps a title taken from a source's first text line, in bytes.
const maxFallbackTitle = 200

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if len(line) <= maxFallbackTitle {
		return line
	}
	// Cut on a rune boundary so the title stays valid UTF-8.
	end := maxFallbackTitle
	for end > 0 && !utf8.RuneStart(line[end]) {
		end--
	}
	return line[:end]
}
