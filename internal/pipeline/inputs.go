package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/ancestra/internal/model"
	"github.com/ppiankov/ancestra/internal/redact"
	"github.com/ppiankov/ancestra/internal/store"
	"github.com/ppiankov/ancestra/internal/validate"
)

// stageInput is what a stage is given and what its output is checked against.
type stageInput struct {
	payload  any
	upstream validate.Upstream
}

// assemble loads the stage's input from the store.
//
//	normalize:  the pack's sources
//	cluster:    the normalize output
//	synthesize: {person, normalizedSources, clusters}
func (o *Orchestrator) assemble(ctx context.Context, ref store.RunRef, stage model.Stage) (*stageInput, error) {
	up := validate.Upstream{StrictClusters: o.cfg.StrictClusters}

	switch stage {
	case model.StageNormalize:
		pack, err := o.PackForModel(ctx, ref)
		if err != nil {
			return nil, err
		}
		sources := pack.Sources
		if sources == nil {
			sources = []model.Source{}
		}
		up.SourceIDs = pack.SourceIDs()
		return &stageInput{payload: sources, upstream: up}, nil

	case model.StageCluster:
		normalized, err := o.store.LoadNormalized(ref)
		if err != nil {
			return nil, fmt.Errorf("load normalize output: %w", err)
		}
		up.Normalized = normalized
		return &stageInput{payload: normalized, upstream: up}, nil

	case model.StageSynthesize:
		pack, err := o.PackForModel(ctx, ref)
		if err != nil {
			return nil, err
		}
		normalized, err := o.store.LoadNormalized(ref)
		if err != nil {
			return nil, fmt.Errorf("load normalize output: %w", err)
		}
		clusters, err := o.store.LoadClusters(ref)
		if err != nil {
			return nil, fmt.Errorf("load cluster output: %w", err)
		}
		up.Normalized = normalized
		in := model.SynthesisInput{Person: pack.Person, NormalizedSources: normalized, Clusters: *clusters}
		return &stageInput{payload: in, upstream: up}, nil

	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
}

// PackForModel returns the pack a model may see. With use_redacted set that
// is the redacted copy, created and stored on first use.
func (o *Orchestrator) PackForModel(ctx context.Context, ref store.RunRef) (*model.EvidencePack, error) {
	if !o.cfg.UseRedacted {
		return o.store.LoadEvidencePack(ref)
	}
	pack, err := o.store.LoadRedactedPack(ref)
	if err == nil {
		return pack, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	result, err := o.Redact(ctx, ref)
	if err != nil {
		return nil, err
	}
	return result.RedactedPack, nil
}

// Redact redacts the run's pack and stores the copy as redacted-pack.json.
// With use_redacted set, a copy that differs from the stored one flags every
// completed stage stale, since they were built from the old copy.
func (o *Orchestrator) Redact(ctx context.Context, ref store.RunRef) (*model.RedactionResult, error) {
	pack, err := o.store.LoadEvidencePack(ref)
	if err != nil {
		return nil, err
	}
	result := redact.Redact(pack)
	changed, err := o.redactedPackChanged(ref, result.RedactedPack)
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveRedactedPack(ref, result.RedactedPack); err != nil {
		return nil, err
	}
	log := o.logger.With(zap.String("person_id", ref.PersonID), zap.String("run_id", ref.RunID))
	log.Info("pack redacted",
		zap.Int("redactions", len(result.Redactions)),
		zap.Bool("living_indicators", result.HasLivingIndicators))

	if changed && o.cfg.UseRedacted {
		stale, err := o.ledger.MarkStale(context.WithoutCancel(ctx), ref, model.Stages)
		if err != nil {
			return nil, fmt.Errorf("flag stages stale: %w", err)
		}
		if len(stale) > 0 {
			log.Info("redacted pack changed, stages flagged stale", zap.Any("stages", stale))
		}
	}
	return &result, nil
}

// redactedPackChanged reports whether next differs from the stored redacted
// pack. A missing copy counts as changed.
func (o *Orchestrator) redactedPackChanged(ref store.RunRef, next *model.EvidencePack) (bool, error) {
	prev, err := o.store.LoadRedactedPack(ref)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	a, err := json.Marshal(prev)
	if err != nil {
		return false, err
	}
	b, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	return !bytes.Equal(a, b), nil
}
