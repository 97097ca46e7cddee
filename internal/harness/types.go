package harness

import "github.com/roach88/beatcue/internal/midi"

// Trace event types.
const (
	TraceFired = "fired"
	TraceMIDI  = "midi"
)

// TraceEvent is either a fired cue event or a MIDI message sent by one.
type TraceEvent struct {
	Type      string `json:"type"`
	Seq       int64  `json:"seq,omitempty"`
	Event     string `json:"event,omitempty"`
	Cue       string `json:"cue,omitempty"`
	Player    int    `json:"player,omitempty"`
	Config    string `json:"config,omitempty"`
	Message   string `json:"message,omitempty"`
	Simulated bool   `json:"simulated,omitempty"`
	Result    any    `json:"result,omitempty"`

	MIDI *midi.Message `json:"midi,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace lists fired events and MIDI messages in dispatch order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds assertion failure messages.
	Errors []string `json:"errors,omitempty"`

	// Journal is the number of rows the engine journaled.
	Journal int `json:"journal"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddFiredTrace adds a fired event to the trace.
func (r *Result) AddFiredTrace(ev TraceEvent) {
	ev.Type = TraceFired
	r.Trace = append(r.Trace, ev)
}

// AddMIDITrace adds a sent MIDI message to the trace.
func (r *Result) AddMIDITrace(m midi.Message) {
	r.Trace = append(r.Trace, TraceEvent{Type: TraceMIDI, MIDI: &m})
}

// Fired returns the fired events of the trace.
func (r *Result) Fired() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == TraceFired {
			out = append(out, ev)
		}
	}
	return out
}

// MIDI returns the MIDI messages of the trace.
func (r *Result) MIDI() []midi.Message {
	var out []midi.Message
	for _, ev := range r.Trace {
		if ev.Type == TraceMIDI {
			out = append(out, *ev.MIDI)
		}
	}
	return out
}
