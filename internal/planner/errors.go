package planner

import (
	"fmt"

	"github.com/blacktop/blobkeep/internal/record"
)

// ExternalToolFailure is a signing check that exited non-zero or never started
type ExternalToolFailure struct {
	Mode   record.RestoreType
	Status int
	Err    error
}

func (e *ExternalToolFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: signing check failed: %v", e.Mode, e.Err)
	}
	return fmt.Sprintf("%s: signing check exited with status %d", e.Mode, e.Status)
}

func (e *ExternalToolFailure) Unwrap() error {
	return e.Err
}
