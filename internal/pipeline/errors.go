package pipeline

import (
	"github.com/pkg/errors"
)

// The stage a failed invocation stopped at.
var (
	ErrParse        = errors.New("could not parse message")
	ErrPersistence  = errors.New("could not persist email")
	ErrNotification = errors.New("could not notify")
)

// A failure of one pipeline stage. It matches both the stage sentinel
// and the underlying cause with errors.Is.
type StageError struct {
	Stage error
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage.Error() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() []error {
	return []error{e.Stage, e.Err}
}

func stageError(stage error, err error) error {
	return &StageError{Stage: stage, Err: err}
}
