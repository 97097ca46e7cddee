package expr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
)

// CompileError reports an expression whose source could not be loaded.
type CompileError struct {
	Cue  uuid.UUID
	Kind cue.ExpressionKind
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %s expression of cue %s: %v", e.Kind, e.Cue, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// RuntimeError reports an expression that failed while running.
type RuntimeError struct {
	Container string
	Cue       uuid.UUID
	Kind      cue.ExpressionKind
	Err       error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("run %s expression of cue %s in %s: %v", e.Kind, e.Cue, e.Container, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// IsCompileError reports whether err wraps a CompileError.
func IsCompileError(err error) bool {
	var ce *CompileError
	return errors.As(err, &ce)
}
