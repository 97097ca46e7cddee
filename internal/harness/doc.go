// Package harness runs YAML cue scenarios against the real engine and
// compares the resulting trace with golden files.
//
// A scenario declares one container, its cues and optional library
// templates, then a flow of steps: status updates, lost players, cue
// deletions and simulated events. Each scenario runs on a fresh show and an
// in-memory journal, with a recording MIDI output named after the
// container's output. The trace interleaves MIDI messages with the fired
// events that produced them, in dispatch order. Tracked events run
// expressions but are left out of the trace, as they are out of the journal.
//
// # Assertions
//
//   - fired_contains: an event fired, optionally for a given cue and player
//   - fired_order: events fired in the given relative order
//   - fired_count: an event fired exactly Count times
//   - midi_sent: a MIDI message with the given fields was sent
//   - midi_count: exactly Count MIDI messages were sent
//   - journal_count: the journal holds Count rows, optionally for one cue
//
// # Golden files
//
// RunWithGolden stores traces under testdata/golden. To regenerate:
//
//	go test ./internal/harness -update
package harness
