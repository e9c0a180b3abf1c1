package repository

import (
	"math"
	"math/rand/v2"
	"sync"
)

// StandingsIndex is an in-memory treap of contestants ordered for ranking:
// total DESC, then registration seq ASC, then id ASC. In-order traversal
// yields the ranked list.
//
// Totals are stored as fixed point so equal composites compare equal even
// when computed through different float paths.
type StandingsIndex struct {
	mu   sync.RWMutex
	root *node
	byID map[string]key
}

// IndexEntry is one contestant's position key.
type IndexEntry struct {
	ContestantID string
	Seq          int64
	Total        float64
}

// totalScale keeps nine decimal places, far beyond what averages of 0-100
// scores need.
const totalScale = 1_000_000_000

type totalFP int64

func toFixedPoint(x float64) totalFP {
	switch {
	case math.IsNaN(x):
		return 0
	case x*totalScale >= math.MaxInt64:
		return totalFP(math.MaxInt64)
	case x*totalScale <= math.MinInt64:
		return totalFP(math.MinInt64)
	}
	return totalFP(math.Round(x * totalScale))
}

func toFloat(x totalFP) float64 {
	return float64(x) / totalScale
}

type key struct {
	total totalFP
	seq   int64
	id    string
}

// before reports whether a ranks ahead of b.
func (a key) before(b key) bool {
	if a.total != b.total {
		return a.total > b.total
	}
	if a.seq != b.seq {
		return a.seq < b.seq
	}
	return a.id < b.id
}

type node struct {
	key   key
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, k key, prio uint64) *node {
	if n == nil {
		return &node{key: k, prio: prio, size: 1}
	}
	if k.before(n.key) {
		n.left = insert(n.left, k, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, k, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, k key) *node {
	if n == nil {
		return nil
	}
	switch {
	case k == n.key:
		// Rotate the higher priority child up until the node is a leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, k)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, k)
		}
	case k.before(n.key):
		n.left = deleteNode(n.left, k)
	default:
		n.right = deleteNode(n.right, k)
	}
	fix(n)
	return n
}

// collect appends up to limit entries in rank order.
func collect(n *node, limit int, out *[]IndexEntry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collect(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, IndexEntry{ContestantID: n.key.id, Seq: n.key.seq, Total: toFloat(n.key.total)})
	}
	collect(n.right, limit, out)
}

// NewStandingsIndex creates an empty index.
func NewStandingsIndex() *StandingsIndex {
	return &StandingsIndex{byID: make(map[string]key)}
}

// Upsert inserts the contestant or moves it to its new position.
// It reports whether the position key changed.
func (s *StandingsIndex) Upsert(e IndexEntry) bool {
	k := key{total: toFixedPoint(e.Total), seq: e.Seq, id: e.ContestantID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byID[e.ContestantID]; ok {
		if old == k {
			return false
		}
		s.root = deleteNode(s.root, old)
	}
	s.byID[e.ContestantID] = k
	s.root = insert(s.root, k, rand.Uint64())
	return true
}

// Remove drops a contestant. It reports whether it was present.
func (s *StandingsIndex) Remove(contestantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.byID[contestantID]
	if !ok {
		return false
	}
	delete(s.byID, contestantID)
	s.root = deleteNode(s.root, old)
	return true
}

// Reset replaces the whole index.
func (s *StandingsIndex) Reset(entries []IndexEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.root = nil
	s.byID = make(map[string]key, len(entries))
	for _, e := range entries {
		k := key{total: toFixedPoint(e.Total), seq: e.Seq, id: e.ContestantID}
		if old, ok := s.byID[e.ContestantID]; ok {
			s.root = deleteNode(s.root, old)
		}
		s.byID[e.ContestantID] = k
		s.root = insert(s.root, k, rand.Uint64())
	}
}

// All returns every entry in rank order.
func (s *StandingsIndex) All() []IndexEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]IndexEntry, 0, len(s.byID))
	collect(s.root, len(s.byID), &out)
	return out
}

// Len returns the number of indexed contestants.
func (s *StandingsIndex) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
