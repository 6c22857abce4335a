package validate

import (
	"fmt"
	"strings"

	"github.com/ppiankov/ancestra/internal/model"
)

// FormatError means no JSON could be recovered from a response. The fix is
// in the response's formatting, not its content.
type FormatError struct {
	Stage model.Stage
}

func (e *FormatError) Error() string {
	return "response is not valid JSON"
}

// SchemaError means the response parsed as JSON but does not match the
// stage's required shape. Problems names each failing field or entry.
type SchemaError struct {
	Stage    model.Stage
	Problems []string
}

func (e *SchemaError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("%s response does not match the expected schema: %s", e.Stage, e.Problems[0])
	}
	return fmt.Sprintf("%s response does not match the expected schema (%d problems):\n  - %s",
		e.Stage, len(e.Problems), strings.Join(e.Problems, "\n  - "))
}
