package show

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorCode categorizes cue store errors.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a missing container, cue, template or folder.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeInvalidRange indicates a cue range or placement the container cannot hold.
	ErrCodeInvalidRange ErrorCode = "INVALID_RANGE"

	// ErrCodeEditorsOpen indicates a deletion vetoed by unsaved expression editors.
	ErrCodeEditorsOpen ErrorCode = "EDITORS_OPEN"

	// ErrCodeDuplicateName indicates a name already in use.
	ErrCodeDuplicateName ErrorCode = "DUPLICATE_NAME"

	// ErrCodeConflict indicates a snapshot swap that kept losing races.
	ErrCodeConflict ErrorCode = "CONFLICT"
)

// Error is returned by cue store operations.
type Error struct {
	Code      ErrorCode
	Message   string
	Container string
	Cue       uuid.UUID
	Template  string

	// Editors lists the unsaved editors behind an EDITORS_OPEN veto.
	Editors []EditorKey
}

func (e *Error) Error() string {
	switch {
	case e.Container != "" && e.Cue != uuid.Nil:
		return fmt.Sprintf("%s: %s (container=%s, cue=%s)", e.Code, e.Message, e.Container, e.Cue)
	case e.Container != "":
		return fmt.Sprintf("%s: %s (container=%s)", e.Code, e.Message, e.Container)
	case e.Template != "":
		return fmt.Sprintf("%s: %s (template=%s)", e.Code, e.Message, e.Template)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsVetoed reports whether err is a deletion vetoed by unsaved editors.
func IsVetoed(err error) bool { return hasCode(err, ErrCodeEditorsOpen) }

// IsDuplicate reports whether err is a DUPLICATE_NAME error.
func IsDuplicate(err error) bool { return hasCode(err, ErrCodeDuplicateName) }

// IsInvalidRange reports whether err is an INVALID_RANGE error.
func IsInvalidRange(err error) bool { return hasCode(err, ErrCodeInvalidRange) }

func cueNotFound(container string, id uuid.UUID) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "no such cue", Container: container, Cue: id}
}

func templateNotFound(name string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: "no such library cue", Template: name}
}
