package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/beatcue/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, describe(event))
		}
	}
	return buf.String()
}

func describe(ev TraceEvent) string {
	if ev.Type == TraceMIDI && ev.MIDI != nil {
		return "midi " + ev.MIDI.String()
	}
	s := fmt.Sprintf("#%d %s cue=%s player=%d", ev.Seq, ev.Event, ev.Cue, ev.Player)
	if ev.Message != "" {
		s += " message=" + ev.Message
	}
	if ev.Simulated {
		s += " simulated"
	}
	return s
}

// matchFired reports whether ev is a fired event for the assertion's event,
// cue and player. Empty cue and zero player match anything.
func matchFired(ev TraceEvent, a Assertion) bool {
	if ev.Type != TraceFired || ev.Event != a.Event {
		return false
	}
	if a.Cue != "" && !strings.EqualFold(ev.Cue, a.Cue) {
		return false
	}
	return a.Player == 0 || ev.Player == a.Player
}

// assertFiredContains checks that a matching event fired at least once.
func assertFiredContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matchFired(ev, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFiredContains,
		Expected: fmt.Sprintf("event %s (cue %q, player %d)", a.Event, a.Cue, a.Player),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertFiredOrder checks that the first occurrences of the given events
// appear in order. Intervening events are allowed.
func assertFiredOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Type != TraceFired {
			continue
		}
		if _, seen := positions[ev.Event]; !seen {
			positions[ev.Event] = i + 1
		}
	}

	for _, event := range a.Events {
		if positions[event] == 0 {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("all events present: %v", a.Events),
				Actual:   fmt.Sprintf("missing event: %s", event),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Events); i++ {
		prev, curr := a.Events[i-1], a.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("events in order: %v", a.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertFiredCount checks that a matching event fired exactly Count times.
func assertFiredCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if matchFired(ev, a) {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertFiredCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertMIDISent checks that a message matching a.MIDI was sent.
func assertMIDISent(trace []TraceEvent, a Assertion) error {
	want := a.MIDI
	for _, ev := range trace {
		if ev.Type != TraceMIDI || ev.MIDI == nil {
			continue
		}
		m := ev.MIDI
		if string(m.Kind) != want.Kind || m.Value != want.Value {
			continue
		}
		if want.Number != 0 && m.Number != want.Number {
			continue
		}
		if want.Channel != 0 && m.Channel != want.Channel {
			continue
		}
		return nil
	}
	return &AssertionError{
		Type: AssertMIDISent,
		Expected: fmt.Sprintf("%s number=%d value=%d channel=%d",
			want.Kind, want.Number, want.Value, want.Channel),
		Actual: "not sent",
		Trace:  trace,
	}
}

// assertMIDICount checks the total number of MIDI messages sent.
func assertMIDICount(result *Result, a Assertion) error {
	if got := len(result.MIDI()); got != a.Count {
		return &AssertionError{
			Type:     AssertMIDICount,
			Expected: fmt.Sprintf("%d midi messages", a.Count),
			Actual:   fmt.Sprintf("%d midi messages", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertJournalCount checks how many events the engine journaled,
// optionally for one cue.
func assertJournalCount(ctx context.Context, st *store.Store, a Assertion) error {
	events, err := st.ReadFired(ctx, store.FiredFilter{Cue: strings.ToLower(a.Cue)})
	if err != nil {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: "readable journal",
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	if len(events) != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journaled events (cue %q)", a.Count, a.Cue),
			Actual:   fmt.Sprintf("%d journaled events", len(events)),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides journal access for journal_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFiredContains:
			err = assertFiredContains(result.Trace, assertion)
		case AssertFiredOrder:
			err = assertFiredOrder(result.Trace, assertion)
		case AssertFiredCount:
			err = assertFiredCount(result.Trace, assertion)
		case AssertMIDISent:
			if assertion.MIDI == nil {
				err = fmt.Errorf("midi_sent assertion requires midi")
				break
			}
			err = assertMIDISent(result.Trace, assertion)
		case AssertMIDICount:
			err = assertMIDICount(result, assertion)
		case AssertJournalCount:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("journal_count assertion requires store context")
				break
			}
			err = assertJournalCount(actx.Ctx, actx.Store, assertion)
		default:
			err = fmt.Errorf("unknown assertion type: %s", assertion.Type)
		}

		if err != nil {
			errors = append(errors, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}

	return errors
}
