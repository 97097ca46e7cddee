package lanes

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/beatcue/internal/cue"
)

func makeCue(comment string, start, end int, section cue.SectionTag) cue.Cue {
	c := cue.New(start, end, section)
	c.Comment = comment
	return c
}

func TestCompute_ScenarioTwoClusters(t *testing.T) {
	a := makeCue("A", 10, 20, cue.SectionNone)
	b := makeCue("B", 15, 25, cue.SectionNone)
	c := makeCue("C", 30, 40, cue.SectionNone)

	l := Compute([]cue.Cue{c, b, a})

	assert.Equal(t, Position{Lane: 0, ClusterLanes: 2}, l.Positions[a.UUID])
	assert.Equal(t, Position{Lane: 1, ClusterLanes: 2}, l.Positions[b.UUID])
	assert.Equal(t, Position{Lane: 0, ClusterLanes: 1}, l.Positions[c.UUID])
	assert.Equal(t, 2, l.MaxLanes)
	assert.Equal(t, []uuid.UUID{a.UUID, b.UUID, c.UUID}, l.Sorted)
}

func TestCompute_EmptyHasOneLane(t *testing.T) {
	l := Compute(nil)
	assert.Equal(t, 1, l.MaxLanes)
	assert.Empty(t, l.Positions)
	assert.Nil(t, l.Overlapping(cue.SectionNone, 1, 100))
}

func TestCompute_SectionsAreIndependent(t *testing.T) {
	a := makeCue("", 1, 9, cue.SectionStart)
	b := makeCue("", 1, 9, cue.SectionLoop)
	c := makeCue("", 2, 4, cue.SectionLoop)

	l := Compute([]cue.Cue{a, b, c})

	assert.Equal(t, Position{Lane: 0, ClusterLanes: 1}, l.Positions[a.UUID])
	assert.Equal(t, Position{Lane: 0, ClusterLanes: 2}, l.Positions[b.UUID])
	assert.Equal(t, Position{Lane: 1, ClusterLanes: 2}, l.Positions[c.UUID])
	assert.Equal(t, 2, l.MaxLanes)
	assert.Len(t, l.At(cue.SectionLoop, 3), 2)
	assert.Len(t, l.At(cue.SectionStart, 3), 1)
	assert.Empty(t, l.At(cue.SectionEnd, 3))
}

func TestCompute_ClusterIsTransitive(t *testing.T) {
	// a and c never touch, but b bridges them.
	a := makeCue("", 1, 5, cue.SectionNone)
	b := makeCue("", 4, 8, cue.SectionNone)
	c := makeCue("", 7, 12, cue.SectionNone)

	l := Compute([]cue.Cue{a, b, c})
	for _, id := range l.Sorted {
		assert.Equal(t, 2, l.Positions[id].ClusterLanes)
	}
	assert.Equal(t, 0, l.Positions[c.UUID].Lane)
}

func randomCues(rng *rand.Rand, n int) []cue.Cue {
	sections := []cue.SectionTag{cue.SectionNone, cue.SectionStart, cue.SectionLoop}
	out := make([]cue.Cue, n)
	for i := range out {
		start := 1 + rng.Intn(64)
		out[i] = makeCue(fmt.Sprintf("c%d", rng.Intn(5)), start, start+1+rng.Intn(12), sections[rng.Intn(len(sections))])
	}
	return out
}

func TestCompute_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		cues := randomCues(rng, 1+rng.Intn(30))
		l := Compute(cues)
		require.Len(t, l.Positions, len(cues))

		maxCluster := 1
		for i, a := range cues {
			pa := l.Positions[a.UUID]
			assert.Less(t, pa.Lane, pa.ClusterLanes)
			maxCluster = max(maxCluster, pa.ClusterLanes)
			for _, b := range cues[i+1:] {
				if !a.Overlaps(b) {
					continue
				}
				pb := l.Positions[b.UUID]
				assert.NotEqual(t, pa.Lane, pb.Lane, "overlapping cues share a lane")
				assert.Equal(t, pa.ClusterLanes, pb.ClusterLanes, "overlapping cues are one cluster")
			}
		}
		assert.Equal(t, maxCluster, l.MaxLanes)

		again := Compute(cue.Sorted(cues))
		assert.Equal(t, l.Positions, again.Positions, "lane assignment is deterministic")
		assert.Equal(t, l.Sorted, again.Sorted)
	}
}

func TestCompute_ClusterLanesIsOnePlusMaxLane(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cues := randomCues(rng, 40)
	l := Compute(cues)

	byID := map[uuid.UUID]cue.Cue{}
	for _, c := range cues {
		byID[c.UUID] = c
	}
	// Recompute clusters by brute-force union of overlaps.
	for _, seed := range cues {
		cluster := map[uuid.UUID]bool{seed.UUID: true}
		for grown := true; grown; {
			grown = false
			for _, c := range cues {
				if cluster[c.UUID] {
					continue
				}
				for id := range cluster {
					if byID[id].Overlaps(c) {
						cluster[c.UUID] = true
						grown = true
						break
					}
				}
			}
		}
		maxLane := 0
		for id := range cluster {
			maxLane = max(maxLane, l.Positions[byID[id].UUID].Lane)
		}
		assert.Equal(t, maxLane+1, l.Positions[seed.UUID].ClusterLanes)
	}
}

func renderLayout(cues []cue.Cue, l *Layout) []byte {
	byID := map[uuid.UUID]cue.Cue{}
	for _, c := range cues {
		byID[c.UUID] = c
	}
	var b strings.Builder
	for _, id := range l.Sorted {
		c := byID[id]
		pos := l.Positions[id]
		fmt.Fprintf(&b, "%s %d-%d lane=%d cluster=%d\n", c.Comment, c.Start, c.End, pos.Lane, pos.ClusterLanes)
	}
	fmt.Fprintf(&b, "max_lanes=%d\n", l.MaxLanes)
	return []byte(b.String())
}

func TestCompute_Golden(t *testing.T) {
	cues := []cue.Cue{
		makeCue("A", 10, 20, cue.SectionNone),
		makeCue("B", 15, 25, cue.SectionNone),
		makeCue("C", 30, 40, cue.SectionNone),
		makeCue("D", 12, 18, cue.SectionNone),
		makeCue("E", 22, 35, cue.SectionNone),
		makeCue("F", 50, 52, cue.SectionNone),
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "layout_track", renderLayout(cues, Compute(cues)))
}

func TestLayout_UpdateMatchesCompute(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	sections := []cue.SectionTag{cue.SectionStart, cue.SectionLoop}
	cues := make([]cue.Cue, 0, 40)
	for i := 0; i < 40; i++ {
		start := 1 + rng.Intn(60)
		cues = append(cues, makeCue(fmt.Sprint(i%3), start, start+1+rng.Intn(12), sections[i%2]))
	}
	l := Compute(cues)

	for step := 0; step < 150; step++ {
		idx := rng.Intn(len(cues))
		prev := cues[idx]
		next := prev.Clone()
		start := 1 + rng.Intn(60)
		next.Start, next.End = start, start+1+rng.Intn(12)
		if rng.Intn(5) == 0 {
			next.Section = sections[rng.Intn(2)]
		}
		cues[idx] = next

		l = l.Update(cues, prev, next)
		want := Compute(cues)
		require.Equal(t, want.Sorted, l.Sorted, "step %d", step)
		require.Equal(t, want.Positions, l.Positions, "step %d", step)
		require.Equal(t, want.MaxLanes, l.MaxLanes, "step %d", step)
		for _, section := range sections {
			assert.Equal(t, want.Overlapping(section, 1, 80), l.Overlapping(section, 1, 80))
		}
	}
}

func TestLayout_UpdateLeavesOriginal(t *testing.T) {
	a := makeCue("A", 10, 20, cue.SectionNone)
	b := makeCue("B", 15, 25, cue.SectionNone)
	before := Compute([]cue.Cue{a, b})

	moved := b.Clone()
	moved.Start, moved.End = 30, 40
	after := before.Update([]cue.Cue{a, moved}, b, moved)

	assert.Equal(t, 1, after.MaxLanes)
	assert.Equal(t, Position{Lane: 0, ClusterLanes: 1}, after.Positions[moved.UUID])
	assert.Equal(t, 2, before.MaxLanes)
	assert.Equal(t, []uuid.UUID{a.UUID, b.UUID}, before.At(cue.SectionNone, 16))
	assert.Equal(t, []uuid.UUID{moved.UUID}, after.At(cue.SectionNone, 31))
}

func TestLayout_UpdateEmptiesSection(t *testing.T) {
	a := makeCue("", 1, 9, cue.SectionStart)
	before := Compute([]cue.Cue{a})

	moved := a.Clone()
	moved.Section = cue.SectionFill
	after := before.Update([]cue.Cue{moved}, a, moved)

	assert.Nil(t, after.At(cue.SectionStart, 2))
	assert.Equal(t, []uuid.UUID{moved.UUID}, after.At(cue.SectionFill, 2))
}
