package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/pipeline"
	"github.com/ppiankov/ancestra/internal/store"
	"github.com/ppiankov/ancestra/internal/worker"
)

var (
	concurrency int
	batchAll    bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Capture many pages or run a stage across many runs in parallel",
}

var batchStageCmd = &cobra.Command{
	Use:   "stage <stage> [person-id...]",
	Short: "Run one stage on the latest run of several people",
	Long: `Runs are independent, so one stage can run for many people at once. Each
run keeps its own stage lock and preconditions; a failure in one run does not
stop the others.

Example:
  ancestra batch stage normalize AB12-CDE XY98-ZZZ
  ancestra batch stage synthesize --all --concurrency 2`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatchStage,
}

var batchCaptureCmd = &cobra.Command{
	Use:   "capture <file>",
	Short: "Capture every page address listed in a file (one per line)",
	Long: `Pages are fetched statically with the configured politeness: robots.txt,
per-host rate limits and bounded retries. Blank lines and lines starting with
# are ignored.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatchCapture,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchStageCmd, batchCaptureCmd)

	batchCmd.PersistentFlags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchStageCmd.Flags().BoolVar(&batchAll, "all", false, "every person in the store")
}

func workerCount(cfg *model.Config) int {
	if concurrency > 0 {
		return concurrency
	}
	if cfg.Concurrency.Workers > 0 {
		return cfg.Concurrency.Workers
	}
	return 1
}

func runBatchStage(cmd *cobra.Command, args []string) error {
	stage, err := model.ParseStage(args[0])
	if err != nil {
		return err
	}
	if !batchAll && len(args) < 2 {
		return errors.New("name at least one person id, or use --all")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var refs []store.RunRef
	if batchAll {
		if refs, err = latestRuns(a.store); err != nil {
			return err
		}
	} else {
		for _, id := range args[1:] {
			ref, err := a.resolveRef([]string{id})
			if err != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", id, err)
				continue
			}
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return errors.New("no runs to process")
	}

	orch, err := a.orchestrator(true)
	if err != nil {
		return err
	}
	workers := workerCount(a.cfg)
	fmt.Fprintf(os.Stderr, "⚙️  Running %s for %d runs with %d workers...\n\n", stage, len(refs), workers)

	outcomes := pipeline.NewBatchRunner(orch, workers).Run(cmd.Context(), refs, stage)
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", o.Ref, o.Err)
			continue
		}
		printStageResult(o.Result)
	}
	return batchSummary(len(outcomes), failed)
}

func runBatchCapture(cmd *cobra.Command, args []string) error {
	urls, err := worker.ReadLinesFromFile(args[0])
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no page addresses in %s", args[0])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()
	orch, err := a.orchestrator(false)
	if err != nil {
		return err
	}
	c := a.capturer(nil)
	redact := a.cfg.Capture.Redact

	workers := workerCount(a.cfg)
	fmt.Fprintf(os.Stderr, "⚙️  Capturing %d pages with %d workers...\n\n", len(urls), workers)

	refs := make([]store.RunRef, len(urls))
	tasks := make([]worker.Task, len(urls))
	for i, u := range urls {
		i, u := i, u
		tasks[i] = worker.Task{
			Key: u,
			Run: func(ctx context.Context) error {
				pack, err := c.CaptureURL(ctx, u)
				if err != nil {
					return err
				}
				ref, err := a.store.SaveEvidencePack(pack)
				if err != nil {
					return err
				}
				refs[i] = ref
				if _, err := orch.RenderRaw(ref, false); err != nil {
					return err
				}
				if err := captureOutcome(cmd.Context(), pack); err != nil {
					return err
				}
				if redact {
					_, err = orch.Redact(ctx, ref)
				}
				return err
			},
		}
	}

	failed := 0
	for i, r := range worker.RunTasks(cmd.Context(), workers, tasks) {
		if r.Err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", r.Key, Describe(r.Err))
			continue
		}
		fmt.Fprintf(os.Stderr, "✓ %s → %s\n", r.Key, refs[i])
	}
	return batchSummary(len(urls), failed)
}

func batchSummary(total, failed int) error {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d\n", total)
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", total-failed)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d failed", failed, total)
	}
	return nil
}
