// Package fetch retrieves source pages over HTTP for static capture.
package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ppiankov/ancestra/internal/cache"
	"github.com/ppiankov/ancestra/internal/logging"
	"github.com/ppiankov/ancestra/internal/model"
	"go.uber.org/zap"
)

// ErrDisallowed is returned when robots.txt forbids the page.
var ErrDisallowed = errors.New("disallowed by robots.txt")

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the server asked us to come back later.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusServiceUnavailable
}

// Page is a fetched HTML document.
type Page struct {
	HTML        string    `json:"html"`
	FinalURL    string    `json:"finalUrl"`
	StatusCode  int       `json:"statusCode"`
	ContentType string    `json:"contentType"`
	FetchedAt   time.Time `json:"fetchedAt"`
	FromCache   bool      `json:"-"`
}

// Fetcher gets pages politely: robots.txt, per-host pacing and bounded
// retries on 429/503.
type Fetcher struct {
	client   *http.Client
	cfg      model.HTTPConfig
	robots   *RobotsChecker
	limiter  *Limiter
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithCache stores successful fetches in c.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(f *Fetcher) {
		f.cache = c
		f.cacheTTL = ttl
	}
}

// WithLimiter paces requests through l.
func WithLimiter(l *Limiter) Option {
	return func(f *Fetcher) { f.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logging.OrNop(l) }
}

// WithSleep overrides the backoff wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// New creates a Fetcher from HTTP settings.
func New(cfg model.HTTPConfig, opts ...Option) *Fetcher {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = proxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in via config
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5_000_000
	}

	f := &Fetcher{
		client: client,
		cfg:    cfg,
		logger: zap.NewNop(),
		sleep:  wait,
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsChecker(client, cfg.UserAgent)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Fetch makes one request and returns the page or a *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Page{
		HTML:        string(body),
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// FetchWithRetry serves from cache when possible, honours robots.txt and the
// host limiter, and retries 429/503 up to MaxRetries times.
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*Page, error) {
	log := f.logger.With(zap.String("url", rawURL))

	if page, ok := f.cached(rawURL); ok {
		log.Debug("page served from cache")
		return page, nil
	}

	if f.robots != nil {
		allowed, delay, err := f.robots.Check(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		if delay > 0 && f.limiter != nil {
			f.limiter.SlowHost(rawURL, delay)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx, rawURL); err != nil {
				return nil, err
			}
		}

		page, err := f.Fetch(ctx, rawURL)
		if err == nil {
			f.store(rawURL, page)
			return page, nil
		}
		lastErr = err

		var statusErr *StatusError
		if !errors.As(err, &statusErr) || !statusErr.Retryable() || attempt == f.cfg.MaxRetries {
			break
		}

		backoff := statusErr.RetryAfter
		if backoff <= 0 {
			backoff = time.Duration(1<<attempt) * time.Second
		}
		log.Warn("server asked to slow down; retrying",
			zap.Int("status", statusErr.StatusCode),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff))
		if err := f.sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (f *Fetcher) cached(rawURL string) (*Page, bool) {
	if f.cache == nil {
		return nil, false
	}
	raw, ok := f.cache.Get(cache.PageKey(rawURL))
	if !ok {
		return nil, false
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, false
	}
	page.FromCache = true
	return &page, true
}

func (f *Fetcher) store(rawURL string, page *Page) {
	if f.cache == nil {
		return
	}
	raw, err := json.Marshal(page)
	if err != nil {
		return
	}
	if err := f.cache.Set(cache.PageKey(rawURL), raw, f.cacheTTL); err != nil {
		f.logger.Warn("cache write failed", zap.Error(err))
	}
}

// parseRetryAfter reads the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
