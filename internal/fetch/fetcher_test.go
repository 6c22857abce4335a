package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/ancestra/internal/cache"
	"github.com/ppiankov/ancestra/internal/model"
)

func testConfig() model.HTTPConfig {
	return model.HTTPConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "Ancestra/test",
		MaxBodyBytes: 1 << 20,
		MaxRetries:   3,
	}
}

// recordSleep captures backoff waits without sleeping.
func recordSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return ctx.Err()
	}
}

func TestFetchWithRetry_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Ancestra/test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body>OK</body></html>")
	}))
	defer server.Close()

	page, err := New(testConfig()).FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if page.HTML != "<html><body>OK</body></html>" {
		t.Errorf("Unexpected HTML: %s", page.HTML)
	}
	if page.StatusCode != http.StatusOK || page.FromCache {
		t.Errorf("unexpected page metadata: %+v", page)
	}
}

func TestFetchWithRetry_TransientThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if n == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "<html>OK</html>")
	}))
	defer server.Close()

	var waits []time.Duration
	f := New(testConfig(), WithSleep(recordSleep(&waits)))
	page, err := f.FetchWithRetry(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected success after retries, got %v", err)
	}
	if page.HTML != "<html>OK</html>" {
		t.Errorf("Unexpected HTML: %s", page.HTML)
	}
	if attempts.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts.Load())
	}
	want := []time.Duration{7 * time.Second, 2 * time.Second}
	if len(waits) != 2 || waits[0] != want[0] || waits[1] != want[1] {
		t.Errorf("backoff waits = %v, want %v", waits, want)
	}
}

func TestFetchWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var waits []time.Duration
	_, err := New(testConfig(), WithSleep(recordSleep(&waits))).FetchWithRetry(context.Background(), server.URL)

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if attempts.Load() != 4 {
		t.Errorf("expected 1 try + 3 retries, got %d", attempts.Load())
	}
}

func TestFetchWithRetry_NoRetryOnNotFound(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	var waits []time.Duration
	_, err := New(testConfig(), WithSleep(recordSleep(&waits))).FetchWithRetry(context.Background(), server.URL)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 1 || len(waits) != 0 {
		t.Errorf("404 must not be retried (attempts=%d waits=%d)", attempts.Load(), len(waits))
	}
}

func TestFetchWithRetry_RobotsDisallow(t *testing.T) {
	var pageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /private/\n")
			return
		}
		pageHits.Add(1)
		_, _ = fmt.Fprint(w, "<html>ok</html>")
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.RespectRobots = true
	f := New(cfg)

	_, err := f.FetchWithRetry(context.Background(), server.URL+"/private/page")
	if !errors.Is(err, ErrDisallowed) {
		t.Fatalf("expected ErrDisallowed, got %v", err)
	}
	if _, err := f.FetchWithRetry(context.Background(), server.URL+"/public/page"); err != nil {
		t.Fatalf("public page should be allowed: %v", err)
	}
	if pageHits.Load() != 1 {
		t.Errorf("expected exactly one page request, got %d", pageHits.Load())
	}
}

func TestFetchWithRetry_CacheHit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = fmt.Fprint(w, "<html>cached</html>")
	}))
	defer server.Close()

	f := New(testConfig(), WithCache(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute))
	ctx := context.Background()
	if _, err := f.FetchWithRetry(ctx, server.URL); err != nil {
		t.Fatal(err)
	}
	page, err := f.FetchWithRetry(ctx, server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !page.FromCache || page.HTML != "<html>cached</html>" {
		t.Errorf("expected cached page, got %+v", page)
	}
	if hits.Load() != 1 {
		t.Errorf("expected one network request, got %d", hits.Load())
	}
}

func TestFetch_BodyLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 100))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodyBytes = 10
	page, err := New(cfg).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.HTML) != 10 {
		t.Errorf("body not truncated: %d bytes", len(page.HTML))
	}
}

func TestLimiter_SlowHost(t *testing.T) {
	l := NewLimiter(10, 1)
	l.SlowHost("http://example.com/a", 2*time.Second)
	if got := l.forHost("example.com").Limit(); got > 0.5 {
		t.Errorf("limit = %v, want <= 0.5", got)
	}
	l.SlowHost("http://example.com/a", 10*time.Millisecond)
	if got := l.forHost("example.com").Limit(); got > 0.5 {
		t.Errorf("SlowHost must not raise the rate, got %v", got)
	}
}

func TestLimiter_ZeroRateIsUnlimited(t *testing.T) {
	l := NewLimiter(0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 50; i++ {
		if err := l.Wait(ctx, "http://example.com"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}

func TestProxyFunc_NoProxy(t *testing.T) {
	fn := proxyFunc("http://proxy:3128", "", "internal.example, .corp")
	req := httptest.NewRequest(http.MethodGet, "http://svc.internal.example/x", nil)
	if u, err := fn(req); err != nil || u != nil {
		t.Errorf("expected direct connection, got %v %v", u, err)
	}
	req = httptest.NewRequest(http.MethodGet, "http://public.example/x", nil)
	u, err := fn(req)
	if err != nil || u == nil || u.Host != "proxy:3128" {
		t.Errorf("expected proxy, got %v %v", u, err)
	}
}

func TestProductToken(t *testing.T) {
	if got := productToken("Ancestra/0.3 (+https://x)"); got != "Ancestra" {
		t.Errorf("productToken = %q", got)
	}
}
