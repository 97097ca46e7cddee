// Package show holds the authoritative cue store of a running show.
//
// A Show owns its containers (tracks and phrase triggers), the show-wide
// template library and the registry of open expression editors. Every
// container keeps its data in an immutable State published through an atomic
// pointer; writers build a new State and compare-and-swap it in, so readers
// always see a complete snapshot and concurrent writers never lose updates.
//
// Structural edits recompute the container's lane layout. Edits to a linked
// cue's events or expressions are pushed to the library template and to every
// other cue sharing the link name, in every container.
package show
