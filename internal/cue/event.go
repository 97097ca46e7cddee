package cue

import "fmt"

// EventKind names an event that carries its own message configuration.
type EventKind string

const (
	EventEntered       EventKind = "entered"
	EventStartedOnBeat EventKind = "started-on-beat"
	EventStartedLate   EventKind = "started-late"
)

// EventKinds lists configurable events in display order.
var EventKinds = []EventKind{EventEntered, EventStartedOnBeat, EventStartedLate}

// Valid reports whether k is a configurable event kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventEntered, EventStartedOnBeat, EventStartedLate:
		return true
	}
	return false
}

// ExpressionKind names a slot in a cue's expression map.
type ExpressionKind string

const (
	ExprEntered       ExpressionKind = "entered"
	ExprExited        ExpressionKind = "exited"
	ExprStartedOnBeat ExpressionKind = "started-on-beat"
	ExprStartedLate   ExpressionKind = "started-late"
	ExprBeat          ExpressionKind = "beat"
	ExprTracked       ExpressionKind = "tracked"
	ExprEnded         ExpressionKind = "ended"
)

// ExpressionKinds lists every expression slot.
var ExpressionKinds = []ExpressionKind{
	ExprEntered, ExprExited, ExprStartedOnBeat, ExprStartedLate, ExprBeat, ExprTracked, ExprEnded,
}

// Valid reports whether k is a known expression slot.
func (k ExpressionKind) Valid() bool {
	for _, known := range ExpressionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// EntryExpression returns the expression run when kind fires.
func EntryExpression(kind EventKind) ExpressionKind {
	return ExpressionKind(kind)
}

// ExitExpression returns the expression run when the state entered through
// kind is left: exited for entered, ended for either start event.
func ExitExpression(kind EventKind) ExpressionKind {
	if kind == EventEntered {
		return ExprExited
	}
	return ExprEnded
}

// MessageType selects what an event does when it fires.
type MessageType string

const (
	MessageNone   MessageType = "none"
	MessageNote   MessageType = "note"
	MessageCC     MessageType = "cc"
	MessageCustom MessageType = "custom"
	// MessageSame is only legal for started-late and defers to started-on-beat.
	MessageSame MessageType = "same"
)

// Default note and channel for a freshly created event.
const (
	DefaultNote    = 127
	DefaultChannel = 1
)

// EventConfig is the message configuration of one event.
type EventConfig struct {
	Message MessageType `json:"message" yaml:"message"`
	Note    int         `json:"note" yaml:"note"`
	Channel int         `json:"channel" yaml:"channel"`
}

// DefaultEventConfig returns the configuration of an unconfigured event.
func DefaultEventConfig() EventConfig {
	return EventConfig{Message: MessageNone, Note: DefaultNote, Channel: DefaultChannel}
}

// NoteOn returns a Note configuration.
func NoteOn(note, channel int) EventConfig {
	return EventConfig{Message: MessageNote, Note: note, Channel: channel}
}

// Validate checks the configuration for the given event kind.
func (c EventConfig) Validate(kind EventKind) error {
	switch c.Message {
	case MessageNone, MessageNote, MessageCC, MessageCustom:
	case MessageSame:
		if kind != EventStartedLate {
			return fmt.Errorf("%s: message %q is only valid for %s", kind, c.Message, EventStartedLate)
		}
	default:
		return fmt.Errorf("%s: unknown message %q", kind, c.Message)
	}
	if c.Note < 1 || c.Note > 127 {
		return fmt.Errorf("%s: note %d outside 1..127", kind, c.Note)
	}
	if c.Channel < 1 || c.Channel > 16 {
		return fmt.Errorf("%s: channel %d outside 1..16", kind, c.Channel)
	}
	return nil
}
