package pipeline

import (
	"context"

	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/store"
	"github.com/ppiankov/ancestra/internal/worker"
)

// BatchOutcome is the result of one run in a batch.
type BatchOutcome struct {
	Ref    store.RunRef
	Result *StageResult
	Err    error
}

// BatchRunner runs one stage across many runs. Runs share no state, so they
// proceed concurrently; each run's own stage lock still applies.
type BatchRunner struct {
	orch    *Orchestrator
	workers int
}

// NewBatchRunner creates a batch runner.
func NewBatchRunner(orch *Orchestrator, workers int) *BatchRunner {
	return &BatchRunner{orch: orch, workers: workers}
}

// Run executes stage for every ref and returns outcomes in input order.
func (b *BatchRunner) Run(ctx context.Context, refs []store.RunRef, stage model.Stage) []BatchOutcome {
	outcomes := make([]BatchOutcome, len(refs))
	tasks := make([]worker.Task, len(refs))
	for i, ref := range refs {
		i, ref := i, ref
		outcomes[i].Ref = ref
		tasks[i] = worker.Task{
			Key: ref.String(),
			Run: func(ctx context.Context) error {
				res, err := b.orch.Run(ctx, ref, stage)
				outcomes[i].Result = res
				return err
			},
		}
	}
	for i, r := range worker.RunTasks(ctx, b.workers, tasks) {
		outcomes[i].Err = r.Err
	}
	return outcomes
}
