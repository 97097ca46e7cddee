// Package engine implements the beatcue event state machine.
//
// The engine receives player status updates, works out which cues each
// player has entered, started, ended or exited, and performs the configured
// action for each transition: a MIDI note or CC message, or a custom
// expression.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Receivers (OSC, the simulator) enqueue status updates from their own
// goroutines. Engine.Run() dequeues them one at a time and applies each
// through Process, which holds the engine lock for the whole update. This
// ensures:
// - Transitions of one update are dispatched before the next is applied
// - Cross-player runtime state is swapped in whole, never partially
// - The fired journal reproduces dispatch order
//
// Event Processing Flow:
// 1. Status update enqueued (or passed straight to Process)
// 2. Runtime state of the container swapped in via compare-and-swap
// 3. Transitions ordered: exits (ended, exited), entries (entered,
// started-on-beat or started-late), then beat and tracked
// 4. Each transition resolved (Same defers to started-on-beat) and dispatched
// 5. Fired events stamped by the Clock, journaled and published to subscribers
//
// Ended pairing:
// The start event that actually fired for a cue is remembered in the
// container runtime, so the ended message mirrors it even when started-on-beat
// and started-late are configured differently.
//
// Failures in expressions and MIDI sends are logged and never abort an update.
package engine
