package capture

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/ancestra/internal/fetch"
	"github.com/ppiankov/ancestra/internal/model"
)

func TestCapturer_CaptureURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(sourcesPage(2, nil)))
	}))
	defer server.Close()

	fetcher := fetch.New(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "ancestra-test"})
	c := NewCapturer(model.CaptureConfig{Pacing: model.PacingConfig{MaxExpansions: 5}}, fetcher,
		WithSleep(noSleep), WithClock(fixedClock()))

	pack, err := c.CaptureURL(context.Background(), server.URL+"/sources")
	if err != nil {
		t.Fatalf("CaptureURL: %v", err)
	}
	if len(pack.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(pack.Sources))
	}
	if pack.SourceURL != server.URL+"/sources" {
		t.Errorf("SourceURL = %q", pack.SourceURL)
	}
	if pack.Diagnostics.Profile != "generic" {
		t.Errorf("profile = %q, want generic", pack.Diagnostics.Profile)
	}
}

func TestCapturer_CaptureURL_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c := NewCapturer(model.CaptureConfig{}, fetch.New(model.HTTPConfig{Timeout: 5 * time.Second}))
	_, err := c.CaptureURL(context.Background(), server.URL)

	var cerr *CaptureError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *CaptureError, got %v", err)
	}
	var serr *fetch.StatusError
	if !errors.As(err, &serr) || serr.StatusCode != http.StatusNotFound {
		t.Errorf("expected wrapped 404 StatusError, got %v", err)
	}
}

func TestCapturer_CaptureURL_FetchTimeoutDoesNotCoverExtraction(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(sourcesPage(5, nil)))
	}))
	defer server.Close()

	// Pacing alone takes several times longer than one fetch may.
	fetcher := fetch.New(model.HTTPConfig{Timeout: 300 * time.Millisecond, UserAgent: "ancestra-test"})
	pacing := model.PacingConfig{ExpandDelay: 100 * time.Millisecond, ActionDelay: 100 * time.Millisecond, MaxExpansions: 10}
	c := NewCapturer(model.CaptureConfig{Pacing: pacing}, fetcher)

	pack, err := c.CaptureURL(context.Background(), server.URL+"/sources")
	if err != nil {
		t.Fatalf("CaptureURL: %v", err)
	}
	if !pack.Diagnostics.Complete || pack.Diagnostics.Cancelled {
		t.Errorf("diagnostics = %+v", pack.Diagnostics)
	}
	if len(pack.Sources) != 5 {
		t.Errorf("expected 5 sources, got %d", len(pack.Sources))
	}
	if err := Incomplete(pack); err != nil {
		t.Errorf("Incomplete = %v, want nil", err)
	}
}

func TestIncomplete(t *testing.T) {
	doc := mustParse(t, sourcesPage(4, nil), "https://example.org/p")
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	progress := func(ev ProgressEvent) {
		if ev.Phase == PhaseExtracted && ev.Index == 0 {
			cancel()
		}
	}
	ex := NewExtractor(GenericProfile(), model.PacingConfig{MaxExpansions: 10},
		WithSleep(noSleep), WithProgress(progress))

	pack, err := ex.Extract(ctx, doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	err = Incomplete(pack)
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Incomplete = %v, want ErrIncomplete", err)
	}
	if want := "capture stopped before every source was read: 1 of 4 sources extracted"; err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
	if Incomplete(nil) != nil {
		t.Error("nil pack must not be reported incomplete")
	}
}

func TestCapturer_CaptureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.html")
	if err := os.WriteFile(path, []byte(sourcesPage(1, nil)), 0o644); err != nil {
		t.Fatal(err)
	}
	c := NewCapturer(model.CaptureConfig{Profile: "generic"}, nil, WithSleep(noSleep))

	pack, err := c.CaptureFile(context.Background(), path, "https://example.org/p/1")
	if err != nil {
		t.Fatalf("CaptureFile: %v", err)
	}
	if len(pack.Sources) != 1 || pack.SourceURL != "https://example.org/p/1" {
		t.Errorf("unexpected pack: %d sources from %q", len(pack.Sources), pack.SourceURL)
	}
}

func TestCapturer_UnknownProfile(t *testing.T) {
	c := NewCapturer(model.CaptureConfig{Profile: "nope"}, nil)
	if _, err := c.profileFor("https://example.org"); err == nil {
		t.Error("expected error for unknown profile")
	}
	if _, err := NewCapturer(model.CaptureConfig{}, nil).CaptureURL(context.Background(), "https://example.org"); err == nil {
		t.Error("expected error without a fetcher")
	}
}
