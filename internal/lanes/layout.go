package lanes

import (
	"maps"

	"github.com/google/uuid"

	"github.com/roach88/beatcue/internal/cue"
)

// Position is a cue's lane and the lane count of the cluster it belongs to.
type Position struct {
	Lane         int
	ClusterLanes int
}

// Layout is the derived structure of one container's cue set.
// A Layout is immutable once returned by Compute.
type Layout struct {
	// Sorted lists cue UUIDs in canonical order.
	Sorted []uuid.UUID

	// Positions maps every cue to its lane placement.
	Positions map[uuid.UUID]Position

	// MaxLanes is the largest cluster lane count, at least 1.
	MaxLanes int

	intervals map[cue.SectionTag]*Tree
}

// Empty returns the layout of a container with no cues.
func Empty() *Layout {
	return &Layout{
		Positions: map[uuid.UUID]Position{},
		MaxLanes:  1,
		intervals: map[cue.SectionTag]*Tree{},
	}
}

// Compute sorts the cues, builds a per-section interval index, assigns lanes
// and sizes clusters. Cues in different sections never interact.
func Compute(cues []cue.Cue) *Layout {
	l := Empty()
	sorted := cue.Sorted(cues)
	l.Sorted = make([]uuid.UUID, 0, len(sorted))

	bySection := make(map[cue.SectionTag][]cue.Cue)
	var order []cue.SectionTag
	for _, c := range sorted {
		l.Sorted = append(l.Sorted, c.UUID)
		if _, seen := bySection[c.Section]; !seen {
			order = append(order, c.Section)
		}
		bySection[c.Section] = append(bySection[c.Section], c)
	}

	for _, section := range order {
		tree := NewTree()
		for _, c := range bySection[section] {
			tree.Insert(interval(c))
		}
		l.place(section, bySection[section], tree)
	}
	l.MaxLanes = maxLanes(l.Positions)
	return l
}

// Update returns the layout of cues, which must be this layout's cue set with
// prev replaced by next (same UUID). Only the sections of prev and next are
// touched: the moved interval is deleted from and reinserted into a copy of
// the section index, and that section's lanes are reassigned.
func (l *Layout) Update(cues []cue.Cue, prev, next cue.Cue) *Layout {
	out := &Layout{
		Positions: maps.Clone(l.Positions),
		intervals: maps.Clone(l.intervals),
	}
	sorted := cue.Sorted(cues)
	out.Sorted = make([]uuid.UUID, 0, len(sorted))
	for _, c := range sorted {
		out.Sorted = append(out.Sorted, c.UUID)
	}
	delete(out.Positions, prev.UUID)

	sections := []cue.SectionTag{prev.Section}
	if next.Section != prev.Section {
		sections = append(sections, next.Section)
	}
	for _, section := range sections {
		tree := NewTree()
		if cur, ok := l.intervals[section]; ok {
			tree = cur.Clone()
		}
		if section == prev.Section {
			tree.Delete(interval(prev))
		}
		if section == next.Section {
			tree.Insert(interval(next))
		}
		if tree.Len() == 0 {
			delete(out.intervals, section)
			continue
		}

		var members []cue.Cue
		for _, c := range sorted {
			if c.Section == section {
				members = append(members, c)
			}
		}
		out.place(section, members, tree)
	}
	out.MaxLanes = maxLanes(out.Positions)
	return out
}

func interval(c cue.Cue) Interval {
	return Interval{Start: c.Start, End: c.End, ID: c.UUID}
}

// place records tree as the index of section and positions its cues.
func (l *Layout) place(section cue.SectionTag, sorted []cue.Cue, tree *Tree) {
	l.intervals[section] = tree
	for id, pos := range sizeClusters(sorted, tree, assignLanes(sorted, tree)) {
		l.Positions[id] = pos
	}
}

func maxLanes(positions map[uuid.UUID]Position) int {
	n := 1
	for _, pos := range positions {
		n = max(n, pos.ClusterLanes)
	}
	return n
}

// assignLanes visits cues in canonical order; each takes the smallest lane
// not used by an earlier cue it overlaps.
func assignLanes(sorted []cue.Cue, tree *Tree) map[uuid.UUID]int {
	lanes := make(map[uuid.UUID]int, len(sorted))
	for _, c := range sorted {
		used := make(map[int]bool)
		for _, neighbor := range tree.Overlapping(c.Start, c.End) {
			if lane, ok := lanes[neighbor.ID]; ok {
				used[lane] = true
			}
		}
		lane := 0
		for used[lane] {
			lane++
		}
		lanes[c.UUID] = lane
	}
	return lanes
}

// sizeClusters walks the transitive overlap relation breadth first from each
// unvisited cue and stamps every member with the cluster's lane count.
func sizeClusters(sorted []cue.Cue, tree *Tree, lanes map[uuid.UUID]int) map[uuid.UUID]Position {
	byID := make(map[uuid.UUID]cue.Cue, len(sorted))
	for _, c := range sorted {
		byID[c.UUID] = c
	}

	out := make(map[uuid.UUID]Position, len(sorted))
	visited := make(map[uuid.UUID]bool, len(sorted))
	for _, seed := range sorted {
		if visited[seed.UUID] {
			continue
		}
		visited[seed.UUID] = true
		members := []uuid.UUID{seed.UUID}
		queue := []cue.Cue{seed}
		maxLane := lanes[seed.UUID]
		for len(queue) > 0 {
			c := queue[0]
			queue = queue[1:]
			for _, iv := range tree.Overlapping(c.Start, c.End) {
				if visited[iv.ID] {
					continue
				}
				visited[iv.ID] = true
				members = append(members, iv.ID)
				queue = append(queue, byID[iv.ID])
				maxLane = max(maxLane, lanes[iv.ID])
			}
		}
		for _, id := range members {
			out[id] = Position{Lane: lanes[id], ClusterLanes: maxLane + 1}
		}
	}
	return out
}

// Position returns the placement of id.
func (l *Layout) Position(id uuid.UUID) (Position, bool) {
	pos, ok := l.Positions[id]
	return pos, ok
}

// Overlapping returns the UUIDs of cues in section intersecting [from, to),
// ordered by start, end and UUID.
func (l *Layout) Overlapping(section cue.SectionTag, from, to int) []uuid.UUID {
	tree, ok := l.intervals[section]
	if !ok {
		return nil
	}
	ivs := tree.Overlapping(from, to)
	out := make([]uuid.UUID, len(ivs))
	for i, iv := range ivs {
		out[i] = iv.ID
	}
	return out
}

// At returns the UUIDs of cues in section containing beat.
func (l *Layout) At(section cue.SectionTag, beat int) []uuid.UUID {
	return l.Overlapping(section, beat, beat+1)
}
