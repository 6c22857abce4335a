package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/ancestra/internal/model"
)

// ErrStageBusy means another attempt of the same stage of the same run is in
// progress.
var ErrStageBusy = errors.New("stage is already being processed")

// ErrNoCompleter means the direct path was requested without a configured
// completion endpoint.
var ErrNoCompleter = errors.New("no LLM provider configured; use stage export and stage import instead")

// Unmet is one unsatisfied prerequisite.
type Unmet struct {
	Stage  model.Stage
	Status model.StageStatus
	Reason string
}

// PreconditionError rejects a stage whose upstream is not complete. It is
// returned before any network or parsing work.
type PreconditionError struct {
	Stage model.Stage
	Unmet []Unmet
}

func (e *PreconditionError) Error() string {
	parts := make([]string, len(e.Unmet))
	for i, u := range e.Unmet {
		parts[i] = fmt.Sprintf("%s is %s", u.Stage, u.Reason)
	}
	return fmt.Sprintf("cannot run %s: %s", e.Stage, strings.Join(parts, "; "))
}
