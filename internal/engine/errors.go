package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RuntimeError is returned when the engine cannot act on a request.
//
// Failures inside cue actions (expressions, MIDI sends) are never returned;
// they are logged and the state machine carries on.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	Container string
	Cue       uuid.UUID
	Player    int
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownContainer indicates a status naming no container of the show.
	ErrCodeUnknownContainer RuntimeErrorCode = "UNKNOWN_CONTAINER"

	// ErrCodeUnknownCue indicates a request for a cue the container lacks.
	ErrCodeUnknownCue RuntimeErrorCode = "UNKNOWN_CUE"

	// ErrCodeUnknownEvent indicates an event name the engine cannot fire.
	ErrCodeUnknownEvent RuntimeErrorCode = "UNKNOWN_EVENT"
)

func (e *RuntimeError) Error() string {
	switch {
	case e.Cue != uuid.Nil:
		return fmt.Sprintf("%s: %s (container=%s, cue=%s)", e.Code, e.Message, e.Container, e.Cue)
	case e.Container != "":
		return fmt.Sprintf("%s: %s (container=%s, player=%d)", e.Code, e.Message, e.Container, e.Player)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnknownContainer reports whether err is an UNKNOWN_CONTAINER error.
// Uses errors.As to handle wrapped errors.
func IsUnknownContainer(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownContainer
	}
	return false
}

// IsUnknownCue reports whether err is an UNKNOWN_CUE error.
func IsUnknownCue(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeUnknownCue
	}
	return false
}
