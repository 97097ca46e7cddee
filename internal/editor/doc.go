// Package editor holds the logical state of cue editor windows: which cues
// are listed under the current filter, how the list changed since the last
// refresh, the selected beat range, the playheads pushed by the animation
// loop, and the per-cue panels that redraw when a linked edit lands.
//
// Nothing here draws. A renderer reads Rows and Playheads and applies Diffs.
package editor
