package lanes

import (
	"cmp"

	"github.com/google/uuid"
)

// Interval is a half-open beat range [Start, End) owned by a cue.
type Interval struct {
	Start int
	End   int
	ID    uuid.UUID
}

// Overlaps reports whether iv intersects [from, to).
func (iv Interval) Overlaps(from, to int) bool {
	return iv.Start < to && from < iv.End
}

func compareIntervals(a, b Interval) int {
	if c := cmp.Compare(a.Start, b.Start); c != 0 {
		return c
	}
	if c := cmp.Compare(a.End, b.End); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}

type node struct {
	iv          Interval
	maxEnd      int
	height      int
	left, right *node
}

// Tree is an AVL tree of intervals ordered by (start, end, id) and augmented
// with the maximum end of each subtree, so overlap queries skip subtrees that
// end before the query begins.
//
// Tree is not safe for concurrent mutation. Trees held by a published layout
// are only read.
type Tree struct {
	root *node
	size int
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{}
}

// Len returns the number of stored intervals.
func (t *Tree) Len() int {
	return t.size
}

// Insert adds iv. Inserting an interval already present is a no-op.
func (t *Tree) Insert(iv Interval) {
	var added bool
	t.root, added = insert(t.root, iv)
	if added {
		t.size++
	}
}

// Delete removes iv, reporting whether it was present.
func (t *Tree) Delete(iv Interval) bool {
	var removed bool
	t.root, removed = remove(t.root, iv)
	if removed {
		t.size--
	}
	return removed
}

// Overlapping returns every interval intersecting [from, to) in tree order.
func (t *Tree) Overlapping(from, to int) []Interval {
	var out []Interval
	collect(t.root, from, to, &out)
	return out
}

// Clone returns an independent copy of t.
func (t *Tree) Clone() *Tree {
	return &Tree{root: cloneNode(t.root), size: t.size}
}

func cloneNode(n *node) *node {
	if n == nil {
		return nil
	}
	out := *n
	out.left = cloneNode(n.left)
	out.right = cloneNode(n.right)
	return &out
}

func collect(n *node, from, to int, out *[]Interval) {
	if n == nil || n.maxEnd <= from {
		return
	}
	collect(n.left, from, to, out)
	if n.iv.Start >= to {
		// Everything to the right starts even later.
		return
	}
	if n.iv.Overlaps(from, to) {
		*out = append(*out, n.iv)
	}
	collect(n.right, from, to, out)
}

func height(n *node) int {
	if n == nil {
		return 0
	}
	return n.height
}

func (n *node) update() {
	n.height = 1 + max(height(n.left), height(n.right))
	n.maxEnd = n.iv.End
	if n.left != nil && n.left.maxEnd > n.maxEnd {
		n.maxEnd = n.left.maxEnd
	}
	if n.right != nil && n.right.maxEnd > n.maxEnd {
		n.maxEnd = n.right.maxEnd
	}
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	n.update()
	l.update()
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	n.update()
	r.update()
	return r
}

func rebalance(n *node) *node {
	n.update()
	switch balance := height(n.left) - height(n.right); {
	case balance > 1:
		if height(n.left.left) < height(n.left.right) {
			n.left = rotateLeft(n.left)
		}
		return rotateRight(n)
	case balance < -1:
		if height(n.right.right) < height(n.right.left) {
			n.right = rotateRight(n.right)
		}
		return rotateLeft(n)
	}
	return n
}

func insert(n *node, iv Interval) (*node, bool) {
	if n == nil {
		return &node{iv: iv, maxEnd: iv.End, height: 1}, true
	}
	var added bool
	switch c := compareIntervals(iv, n.iv); {
	case c < 0:
		n.left, added = insert(n.left, iv)
	case c > 0:
		n.right, added = insert(n.right, iv)
	default:
		return n, false
	}
	return rebalance(n), added
}

func remove(n *node, iv Interval) (*node, bool) {
	if n == nil {
		return nil, false
	}
	var removed bool
	switch c := compareIntervals(iv, n.iv); {
	case c < 0:
		n.left, removed = remove(n.left, iv)
	case c > 0:
		n.right, removed = remove(n.right, iv)
	default:
		if n.left == nil {
			return n.right, true
		}
		if n.right == nil {
			return n.left, true
		}
		succ := n.right
		for succ.left != nil {
			succ = succ.left
		}
		n.iv = succ.iv
		n.right, _ = remove(n.right, succ.iv)
		removed = true
	}
	return rebalance(n), removed
}
