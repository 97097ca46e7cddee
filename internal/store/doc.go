// Package store provides SQLite-backed persistence for beatcue shows.
//
// A database holds two kinds of data:
//   - The show: containers, their cues, library templates and folders.
//     SaveShow rewrites these tables in one transaction; LoadShow rebuilds a
//     show.Show from them.
//   - The fired journal: an append-only record of every event the engine
//     dispatched, keyed by the engine's logical seq.
//
// # Ordering
//
// Journal queries always order by seq ASC. Seq comes from the engine's
// logical clock, so reading the journal back reproduces dispatch order
// regardless of wall time. Cue queries order by container, then UUID, so a
// reload inserts cues in a stable order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait up to 5s for locks
//   - foreign_keys=ON: Enforce cue to container references
package store
