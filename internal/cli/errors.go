package cli

import (
	"errors"
	"fmt"

	"github.com/ppiankov/ancestra/internal/capture"
	"github.com/ppiankov/ancestra/internal/llm"
	"github.com/ppiankov/ancestra/internal/pipeline"
	"github.com/ppiankov/ancestra/internal/store"
	"github.com/ppiankov/ancestra/internal/validate"
)

// Describe formats err as a one-line message followed by what to do next.
func Describe(err error) string {
	var (
		providerErr *llm.ProviderError
		formatErr   *validate.FormatError
		schemaErr   *validate.SchemaError
		preErr      *pipeline.PreconditionError
		captureErr  *capture.CaptureError
	)
	switch {
	case errors.As(err, &formatErr), errors.As(err, &schemaErr):
		return fmt.Sprintf("%v\nFix the response and re-import it with 'ancestra stage import'.", err)
	case errors.As(err, &providerErr):
		return fmt.Sprintf("%v\nThe provider call failed; try again, or use 'ancestra stage export' and import the reply by hand.", err)
	case errors.As(err, &preErr):
		return fmt.Sprintf("%v\nRun the upstream stages first ('ancestra status' shows where each stands).", err)
	case errors.Is(err, pipeline.ErrStageBusy):
		return fmt.Sprintf("%v\nWait for the other attempt to finish, then try again.", err)
	case errors.Is(err, pipeline.ErrNoCompleter):
		return err.Error()
	case errors.Is(err, capture.ErrIncomplete):
		return fmt.Sprintf("%v\nThe partial run was kept but not marked latest; capture the page again.", err)
	case errors.As(err, &captureErr):
		return fmt.Sprintf("%v\nCheck the address and try again; a saved copy of the page can be captured with --file.", err)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Sprintf("%v\nCapture the person first with 'ancestra capture'.", err)
	default:
		return err.Error()
	}
}
