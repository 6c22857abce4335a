package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/ppiankov/ancestra/internal/cache"
	"github.com/ppiankov/ancestra/internal/capture"
	"github.com/ppiankov/ancestra/internal/fetch"
	"github.com/ppiankov/ancestra/internal/llm"
	"github.com/ppiankov/ancestra/internal/logging"
	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/pipeline"
	"github.com/ppiankov/ancestra/internal/store"
)

// ledgerFile is the stage ledger's name inside the store root.
const ledgerFile = "state.db"

// app holds what a command needs, built once from the resolved config.
type app struct {
	cfg    *model.Config
	logger *zap.Logger
	store  *store.Store
	ledger *store.Ledger
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	st := store.New(cfg.Store.Root)
	ledger, err := store.OpenLedger(filepath.Join(cfg.Store.Root, ledgerFile))
	if err != nil {
		return nil, fmt.Errorf("open stage ledger: %w", err)
	}
	return &app{cfg: cfg, logger: logger, store: st, ledger: ledger}, nil
}

func (a *app) Close() {
	_ = a.ledger.Close()
	_ = a.logger.Sync()
}

// orchestrator builds the pipeline. The direct path is enabled only when
// direct is set, so export and import work without any provider configured.
func (a *app) orchestrator(direct bool) (*pipeline.Orchestrator, error) {
	opts := []pipeline.Option{pipeline.WithLogger(a.logger)}
	if direct {
		completer, err := llm.NewProvider(llm.ConfigFromModel(a.cfg.LLM, a.cfg.HTTP))
		if err != nil {
			return nil, fmt.Errorf("configure LLM provider: %w", err)
		}
		opts = append(opts, pipeline.WithCompleter(completer))
	}
	return pipeline.New(a.store, a.ledger, a.cfg.Pipeline, opts...), nil
}

// capturer builds a capturer with a polite, cached fetcher.
func (a *app) capturer(progress capture.ProgressFunc) *capture.Capturer {
	fetchOpts := []fetch.Option{
		fetch.WithLogger(a.logger),
		fetch.WithLimiter(fetch.NewLimiter(a.cfg.RateLimiting.RequestsPerSecond, a.cfg.RateLimiting.BurstSize)),
	}
	if a.cfg.Cache.Enabled {
		c := cache.New(a.cfg.Cache.MemoryTTL, a.cfg.Cache.Dir, a.cfg.Cache.DiskTTL)
		fetchOpts = append(fetchOpts, fetch.WithCache(c, a.cfg.Cache.DiskTTL))
	}
	fetcher := fetch.New(a.cfg.HTTP, fetchOpts...)

	opts := []capture.Option{capture.WithLogger(a.logger)}
	if progress != nil {
		opts = append(opts, capture.WithProgress(progress))
	}
	return capture.NewCapturer(a.cfg.Capture, fetcher, opts...)
}

// resolveRef turns "<person-id> [run-id]" arguments into a run reference,
// defaulting to the person's latest run.
func (a *app) resolveRef(args []string) (store.RunRef, error) {
	ref := store.RunRef{PersonID: args[0]}
	if len(args) > 1 {
		ref.RunID = args[1]
	}
	return a.store.Resolve(ref)
}

// stderrIsTTY reports whether progress can be redrawn in place.
func stderrIsTTY() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// captureProgress prints extractor progress to stderr: one redrawn line on a
// terminal, one line per source otherwise (and only when verbose).
func captureProgress(isTTY, verbose bool) capture.ProgressFunc {
	return func(ev capture.ProgressEvent) {
		if ev.Phase != capture.PhaseExtracted {
			return
		}
		switch {
		case isTTY:
			fmt.Fprintf(os.Stderr, "\r⚙️  Extracting sources %d/%d", ev.Index+1, ev.Total)
			if ev.Index+1 == ev.Total {
				fmt.Fprintln(os.Stderr)
			}
		case verbose:
			fmt.Fprintf(os.Stderr, "  extracted %s (%d/%d)\n", ev.SourceID, ev.Index+1, ev.Total)
		}
	}
}
