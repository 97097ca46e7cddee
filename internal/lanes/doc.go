// Package lanes computes the visual stacking of cues.
//
// Each section's cues are indexed in an augmented interval tree. Lanes are
// assigned greedily in canonical cue order: a cue takes the smallest lane not
// used by any earlier cue it overlaps. Cues connected through the overlap
// relation form a cluster, and every member of a cluster reports the same
// lane count so the renderer can split the cluster's rows evenly.
//
// The greedy assignment is not chromatically optimal. Lane numbers must stay
// stable across unrelated edits, so the order in cue.Compare is preserved
// rather than packing lanes more tightly.
package lanes
