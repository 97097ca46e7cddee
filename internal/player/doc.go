// Package player tracks the position and playback state of players.
//
// Updates arrive from an OSC receiver fed by an external protocol bridge, or
// from the Simulator's virtual players. A Tracker keeps the latest status per
// player for pull-based queries and forwards every update to registered
// listeners, the cue engine among them.
package player
