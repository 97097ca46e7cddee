// Package cue defines the cue data model shared by every other beatcue package.
//
// A Cue is a beat range on a track, or within one section of a phrase trigger,
// carrying per-event MIDI configuration and optional Lua expression sources.
// Cue values are treated as immutable once stored in a container snapshot:
// every mutation goes through Clone and produces a new value.
//
// This package imports nothing internal. Persistence uses Record, which holds
// only the show-file fields; runtime-only state never appears in it.
package cue
