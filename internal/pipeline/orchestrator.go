// Package pipeline drives a run through normalize, cluster and synthesize.
// The direct path (completion call) and the import path (pasted reply) both
// end in the same acceptance gate, and nothing downstream can tell which
// one produced an artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/ancestra/internal/llm"
	"github.com/ppiankov/ancestra/internal/logging"
	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/prompt"
	"github.com/ppiankov/ancestra/internal/render"
	"github.com/ppiankov/ancestra/internal/store"
	"github.com/ppiankov/ancestra/internal/validate"
)

// Via names the producer of a stage artifact.
type Via string

const (
	ViaDirect Via = "direct"
	ViaImport Via = "import"
)

// StageResult describes an accepted stage artifact.
type StageResult struct {
	Ref       store.RunRef
	Stage     model.Stage
	Via       Via
	AttemptID string
	// Warnings are deviations accepted by the gate.
	Warnings []string
	// Stale lists downstream stages flagged stale by this result.
	Stale []model.Stage
}

// Orchestrator owns the stage state machine for runs in one store.
type Orchestrator struct {
	store     *store.Store
	ledger    *store.Ledger
	completer llm.Completer
	cfg       model.PipelineConfig
	logger    *zap.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCompleter enables the direct path.
func WithCompleter(c llm.Completer) Option {
	return func(o *Orchestrator) { o.completer = c }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = logging.OrNop(l) }
}

// WithClock sets the clock used for generated-at stamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(st *store.Store, ledger *store.Ledger, cfg model.PipelineConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:  st,
		ledger: ledger,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) log(ref store.RunRef, stage model.Stage) *zap.Logger {
	return o.logger.With(
		zap.String("person_id", ref.PersonID),
		zap.String("run_id", ref.RunID),
		zap.String("stage", string(stage)),
	)
}

// CheckPreconditions reports whether every upstream stage of stage is
// complete, current and stored. It reads only the ledger and the store's
// directory entries.
func (o *Orchestrator) CheckPreconditions(ctx context.Context, ref store.RunRef, stage model.Stage) error {
	if _, err := model.ParseStage(string(stage)); err != nil {
		return err
	}
	var unmet []Unmet
	for _, pre := range stage.Prerequisites() {
		st, err := o.ledger.Get(ctx, ref, pre)
		if err != nil {
			return err
		}
		switch {
		case st.Status != model.StatusComplete:
			unmet = append(unmet, Unmet{Stage: pre, Status: st.Status, Reason: fmt.Sprintf("%s (must be complete)", st.Status)})
		case st.Stale:
			unmet = append(unmet, Unmet{Stage: pre, Status: st.Status, Reason: "stale (its own upstream was redone; run it again first)"})
		case !o.store.HasArtifact(ref, pre):
			unmet = append(unmet, Unmet{Stage: pre, Status: st.Status, Reason: "marked complete but its output is missing"})
		}
	}
	if len(unmet) > 0 {
		return &PreconditionError{Stage: stage, Unmet: unmet}
	}
	return nil
}

// Run executes stage through the configured completion endpoint.
func (o *Orchestrator) Run(ctx context.Context, ref store.RunRef, stage model.Stage) (*StageResult, error) {
	if err := o.CheckPreconditions(ctx, ref, stage); err != nil {
		return nil, err
	}
	if o.completer == nil {
		return nil, ErrNoCompleter
	}

	lock, attemptID, err := o.begin(ctx, ref, stage)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()
	log := o.log(ref, stage).With(zap.String("attempt_id", attemptID), zap.String("provider", o.completer.Name()))

	in, err := o.assemble(ctx, ref, stage)
	if err != nil {
		return nil, o.fail(ctx, ref, stage, err)
	}
	p, err := prompt.Build(stage, in.payload)
	if err != nil {
		return nil, o.fail(ctx, ref, stage, err)
	}

	callCtx := ctx
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}

	log.Info("calling completion endpoint")
	start := time.Now()
	resp, err := o.completer.Complete(callCtx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: p.System},
			{Role: llm.RoleUser, Content: p.User},
		},
	})
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%s timed out after %s: %w", stage, o.cfg.StageTimeout, err)
		}
		return nil, o.fail(ctx, ref, stage, err)
	}
	log.Info("completion received",
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_tokens", resp.PromptTokens),
		zap.Int("completion_tokens", resp.CompletionTokens))

	return o.accept(ctx, ref, stage, attemptID, ViaDirect, resp.Text, in.upstream)
}

// Import admits a reply produced outside the tool for stage. It passes the
// same gate as Run.
func (o *Orchestrator) Import(ctx context.Context, ref store.RunRef, stage model.Stage, text string) (*StageResult, error) {
	if err := o.CheckPreconditions(ctx, ref, stage); err != nil {
		return nil, err
	}

	lock, attemptID, err := o.begin(ctx, ref, stage)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	in, err := o.assemble(ctx, ref, stage)
	if err != nil {
		return nil, o.fail(ctx, ref, stage, err)
	}
	return o.accept(ctx, ref, stage, attemptID, ViaImport, text, in.upstream)
}

// ExportResult is a prompt handed out for the import path.
type ExportResult struct {
	Ref       store.RunRef
	Stage     model.Stage
	Text      string
	Path      string
	AttemptID string
}

// Export builds the self-contained prompt for stage, keeps a copy under the
// run and records that the stage awaits an import.
func (o *Orchestrator) Export(ctx context.Context, ref store.RunRef, stage model.Stage) (*ExportResult, error) {
	if err := o.CheckPreconditions(ctx, ref, stage); err != nil {
		return nil, err
	}
	in, err := o.assemble(ctx, ref, stage)
	if err != nil {
		return nil, err
	}
	p, err := prompt.Build(stage, in.payload)
	if err != nil {
		return nil, err
	}
	text := p.Export()
	path, err := o.store.SaveExport(ref, stage, text)
	if err != nil {
		return nil, err
	}
	attemptID := uuid.NewString()
	if _, err := o.ledger.MarkExported(ctx, ref, stage, attemptID); err != nil {
		return nil, err
	}
	o.log(ref, stage).Info("prompt exported", zap.String("path", path), zap.String("attempt_id", attemptID))
	return &ExportResult{Ref: ref, Stage: stage, Text: text, Path: path, AttemptID: attemptID}, nil
}

// begin takes the stage lock and moves the stage to processing. A stage
// found in processing while the lock is free was abandoned by a process
// that exited; it is closed out as an error first.
func (o *Orchestrator) begin(ctx context.Context, ref store.RunRef, stage model.Stage) (*store.StageLock, string, error) {
	lock, err := o.store.LockStage(ref, stage)
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, "", fmt.Errorf("%s %s: %w", ref, stage, ErrStageBusy)
		}
		return nil, "", err
	}

	// Upstream may have changed while waiting for the lock.
	if err := o.CheckPreconditions(ctx, ref, stage); err != nil {
		_ = lock.Unlock()
		return nil, "", err
	}

	cur, err := o.ledger.Get(ctx, ref, stage)
	if err != nil {
		_ = lock.Unlock()
		return nil, "", err
	}
	if cur.Status == model.StatusProcessing {
		o.log(ref, stage).Warn("closing out abandoned attempt", zap.String("attempt_id", cur.AttemptID))
		if _, err := o.ledger.Transition(ctx, ref, stage, model.StatusError, "", "previous attempt did not finish"); err != nil {
			_ = lock.Unlock()
			return nil, "", err
		}
	}

	attemptID := uuid.NewString()
	if _, err := o.ledger.Transition(ctx, ref, stage, model.StatusProcessing, attemptID, ""); err != nil {
		_ = lock.Unlock()
		return nil, "", err
	}
	return lock, attemptID, nil
}

// accept is the single gate for both producers: validate, persist, then
// mark complete. A rejected candidate never touches the stored artifact.
func (o *Orchestrator) accept(ctx context.Context, ref store.RunRef, stage model.Stage, attemptID string, via Via,
	text string, up validate.Upstream) (*StageResult, error) {
	log := o.log(ref, stage).With(zap.String("attempt_id", attemptID), zap.String("via", string(via)))

	artifact, err := validate.Gate(stage, text, up)
	if err != nil {
		log.Warn("candidate rejected", zap.Error(err))
		return nil, o.fail(ctx, ref, stage, err)
	}
	for _, w := range artifact.Warnings {
		log.Warn("accepted with warning", zap.String("warning", w))
	}

	if err := o.persist(ref, artifact); err != nil {
		return nil, o.fail(ctx, ref, stage, err)
	}
	// The artifact is in place; the ledger must follow it even if ctx ends now.
	wctx := context.WithoutCancel(ctx)
	if _, err := o.ledger.Transition(wctx, ref, stage, model.StatusComplete, attemptID, ""); err != nil {
		return nil, o.fail(ctx, ref, stage, fmt.Errorf("record completion: %w", err))
	}
	stale, err := o.ledger.MarkStale(wctx, ref, stage.Downstream())
	if err != nil {
		return nil, fmt.Errorf("flag downstream stages stale: %w", err)
	}
	if len(stale) > 0 {
		log.Info("downstream stages flagged stale", zap.Any("stages", stale))
	}
	log.Info("stage complete")

	return &StageResult{Ref: ref, Stage: stage, Via: via, AttemptID: attemptID, Warnings: artifact.Warnings, Stale: stale}, nil
}

func (o *Orchestrator) persist(ref store.RunRef, a *validate.Artifact) error {
	switch a.Stage {
	case model.StageNormalize:
		return o.store.SaveNormalized(ref, a.Normalized)
	case model.StageCluster:
		return o.store.SaveClusters(ref, a.Clusters)
	case model.StageSynthesize:
		return o.store.SaveSynthesis(ref, a.Synthesis)
	default:
		return fmt.Errorf("unknown stage %q", a.Stage)
	}
}

// fail records err against the stage and returns it unchanged.
func (o *Orchestrator) fail(ctx context.Context, ref store.RunRef, stage model.Stage, cause error) error {
	// The ledger write must land even when ctx was the reason for failing.
	wctx := context.WithoutCancel(ctx)
	if _, err := o.ledger.Transition(wctx, ref, stage, model.StatusError, "", cause.Error()); err != nil {
		o.log(ref, stage).Error("could not record stage error", zap.Error(err), zap.NamedError("cause", cause))
	}
	return cause
}

// RunStatus is the state of every stage of a run.
type RunStatus struct {
	Ref    store.RunRef
	Stages []StageStatus
}

// StageStatus joins a stage's ledger state with whether output is stored.
type StageStatus struct {
	store.StageState
	HasArtifact bool
	// Ready reports whether the stage's prerequisites are satisfied.
	Ready bool
}

// Status reports every stage of a run.
func (o *Orchestrator) Status(ctx context.Context, ref store.RunRef) (*RunStatus, error) {
	states, err := o.ledger.States(ctx, ref)
	if err != nil {
		return nil, err
	}
	rs := &RunStatus{Ref: ref, Stages: make([]StageStatus, len(states))}
	for i, st := range states {
		rs.Stages[i] = StageStatus{
			StageState:  st,
			HasArtifact: o.store.HasArtifact(ref, st.Stage),
			Ready:       o.CheckPreconditions(ctx, ref, st.Stage) == nil,
		}
	}
	return rs, nil
}

// RenderDossier renders the run's synthesis into contextualized.md and
// returns the document.
func (o *Orchestrator) RenderDossier(ctx context.Context, ref store.RunRef) (string, error) {
	st, err := o.ledger.Get(ctx, ref, model.StageSynthesize)
	if err != nil {
		return "", err
	}
	if st.Status != model.StatusComplete {
		return "", &PreconditionError{Stage: "dossier", Unmet: []Unmet{{
			Stage: model.StageSynthesize, Status: st.Status, Reason: fmt.Sprintf("%s (must be complete)", st.Status),
		}}}
	}
	syn, err := o.store.LoadSynthesis(ref)
	if err != nil {
		return "", err
	}
	pack, err := o.store.LoadEvidencePack(ref)
	if err != nil {
		return "", err
	}
	person := pack.Person
	if o.cfg.UseRedacted {
		if red, err := o.store.LoadRedactedPack(ref); err == nil {
			person = red.Person
		}
	}
	doc := render.RenderDossier(person, syn)
	if err := o.store.SaveDossier(ref, doc); err != nil {
		return "", err
	}
	o.log(ref, model.StageSynthesize).Info("dossier rendered")
	return doc, nil
}

// RenderRaw renders the run's pack (or its redacted copy) into
// raw-document.md and returns the document.
func (o *Orchestrator) RenderRaw(ref store.RunRef, redacted bool) (string, error) {
	load := o.store.LoadEvidencePack
	if redacted {
		load = o.store.LoadRedactedPack
	}
	pack, err := load(ref)
	if err != nil {
		return "", err
	}
	doc := render.RenderRaw(pack, o.now())
	if err := o.store.SaveRawDocument(ref, doc); err != nil {
		return "", err
	}
	return doc, nil
}
