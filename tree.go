package mtree

import (
	"fmt"
	"log/slog"
	"math/bits"
	"runtime"
	"time"

	"github.com/gordian-engine/mtree/internal/mtpool"
	"github.com/gordian-engine/mtree/mthash"
	"github.com/gordian-engine/mtree/mthash/mtsha256"
)

// LoneNodeRule determines how the final node of a level
// with an odd number of nodes reaches the next level.
//
// The rule changes the root of any tree whose leaf count
// is not a power of two, so trees and verifiers must agree on it.
type LoneNodeRule uint8

const (
	// PromoteLoneNode copies the lone node to the next level unchanged.
	// No proof entry is recorded for a level where the node was promoted.
	PromoteLoneNode LoneNodeRule = iota

	// DuplicateLoneNode pairs the lone node with itself,
	// so the next level holds Node(lone, lone).
	// The proof entry for that level is the node's own digest, on the right.
	//
	// This matches the widespread Bitcoin-style construction.
	// It permits distinct leaf sequences to share a root
	// (e.g. [a b c] and [a b c c]),
	// so prefer PromoteLoneNode unless compatibility requires it.
	DuplicateLoneNode
)

func (r LoneNodeRule) String() string {
	switch r {
	case PromoteLoneNode:
		return "promote"
	case DuplicateLoneNode:
		return "duplicate"
	default:
		return fmt.Sprintf("LoneNodeRule(%d)", uint8(r))
	}
}

func (r LoneNodeRule) mustBeValid() {
	if r > DuplicateLoneNode {
		panic(fmt.Errorf("BUG: unknown lone node rule %d", uint8(r)))
	}
}

const (
	// AutoWorkers, as [TreeConfig.Workers],
	// sizes the worker pool to runtime.GOMAXPROCS(0).
	AutoWorkers = 0

	// DefaultParallelThreshold is the default value for
	// [TreeConfig.ParallelThreshold].
	DefaultParallelThreshold = 256

	// DefaultMaxLeaves is a conservative leaf limit
	// that callers may set as [TreeConfig.MaxLeaves].
	DefaultMaxLeaves = 1 << 20
)

// TreeConfig is the configuration used for [NewTree].
type TreeConfig struct {
	// How to hash leaves and internal nodes.
	// Defaults to SHA256 if nil.
	Hasher mthash.Hasher

	// Number of worker goroutines hashing each level.
	// Use AutoWorkers (the zero value) to match GOMAXPROCS.
	// One worker builds the tree entirely on the calling goroutine.
	// Negative values are invalid.
	Workers int

	// How to handle the lone node of an odd-sized level.
	// The zero value is PromoteLoneNode.
	LoneNode LoneNodeRule

	// If positive, NewTree returns a [TooManyLeavesError]
	// for inputs with more leaves than this.
	MaxLeaves int

	// Levels with fewer nodes to compute than this threshold
	// are hashed on the calling goroutine,
	// avoiding handoff overhead near the root.
	// Zero means DefaultParallelThreshold.
	// The threshold never affects the resulting digests.
	ParallelThreshold int

	// Optional logger. Nil discards log output.
	Log *slog.Logger
}

func (c TreeConfig) hasher() mthash.Hasher {
	if c.Hasher == nil {
		return mtsha256.Hasher{}
	}
	return c.Hasher
}

func (c TreeConfig) workers() int {
	if c.Workers < 0 {
		panic(fmt.Errorf(
			"BUG: Workers must be non-negative (got %d)", c.Workers,
		))
	}
	if c.Workers == AutoWorkers {
		return runtime.GOMAXPROCS(0)
	}
	return c.Workers
}

func (c TreeConfig) parallelThreshold() int {
	if c.ParallelThreshold <= 0 {
		return DefaultParallelThreshold
	}
	return c.ParallelThreshold
}

func (c TreeConfig) log() *slog.Logger {
	if c.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Log
}

// Tree is a fully computed binary Merkle tree.
//
// Level 0 holds the leaf digests, in input order,
// and the final level holds only the root.
// Every level is half the size of the one below, rounded up.
//
// A Tree is immutable once [NewTree] returns,
// so any number of goroutines may read it or generate proofs concurrently.
type Tree struct {
	// levels[0] is the leaves; levels[len(levels)-1] has only the root.
	// Every digest is a view into a single backing slice.
	levels [][][]byte

	hashSize int
	loneNode LoneNodeRule
}

// NewTree hashes every leaf and computes all levels through the root.
//
// The leaves are not retained.
// NewTree returns an [EmptyInputError] if there are no leaves.
func NewTree(leaves [][]byte, cfg TreeConfig) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, EmptyInputError{}
	}
	if cfg.MaxLeaves > 0 && len(leaves) > cfg.MaxLeaves {
		return nil, TooManyLeavesError{Count: len(leaves), Max: cfg.MaxLeaves}
	}
	cfg.LoneNode.mustBeValid()

	h := cfg.hasher()
	hashSize := h.Size()
	if hashSize <= 0 {
		panic(fmt.Errorf(
			"BUG: Hasher size must be positive (got %d)", hashSize,
		))
	}

	nWorkers := cfg.workers()
	threshold := cfg.parallelThreshold()
	log := cfg.log()

	start := time.Now()

	t := newEmptyTree(len(leaves), hashSize, cfg.LoneNode)

	// Only pay for goroutines if at least the leaf level will use them.
	var pool *mtpool.Pool
	if nWorkers > 1 && len(leaves) >= threshold {
		pool = mtpool.New(log, nWorkers)
		defer pool.Stop()
	}

	run := func(n int, fn func(start, end int)) {
		if pool == nil || n < threshold {
			fn(0, n)
			return
		}
		pool.Run(n, fn)
	}

	leafRow := t.levels[0]
	run(len(leafRow), func(start, end int) {
		for i := start; i < end; i++ {
			out := h.Leaf(leaves[i], leafRow[i][:0])
			setDigest(leafRow[i], out)
		}
	})

	for l := 1; l < len(t.levels); l++ {
		below := t.levels[l-1]
		row := t.levels[l]
		run(len(row), func(start, end int) {
			for i := start; i < end; i++ {
				t.computeNode(h, below, row, i)
			}
		})
	}

	log.Debug(
		"Built Merkle tree",
		"leaves", len(leaves),
		"height", t.Height(),
		"workers", nWorkers,
		"parallel", pool != nil,
		"lone_node", cfg.LoneNode,
		"elapsed", time.Since(start),
	)

	return t, nil
}

// newEmptyTree allocates every level for nLeaves leaves
// in a single backing slice.
func newEmptyTree(nLeaves, hashSize int, rule LoneNodeRule) *Tree {
	// Height is ceil(log2(nLeaves)) under either lone node rule.
	nLevels := 1 + bits.Len(uint(nLeaves-1))

	nNodes := 0
	for w := nLeaves; ; w = w/2 + w&1 {
		nNodes += w
		if w == 1 {
			break
		}
	}

	mem := make([]byte, nNodes*hashSize)
	nodes := make([][]byte, nNodes)
	for i := range nodes {
		start := i * hashSize
		end := start + hashSize

		// Capped so a misbehaving Hasher cannot append into the neighboring node.
		nodes[i] = mem[start:end:end]
	}

	levels := make([][][]byte, nLevels)
	w := nLeaves
	for l := range levels {
		levels[l] = nodes[:w:w]
		nodes = nodes[w:]
		w = w/2 + w&1
	}

	return &Tree{
		levels: levels,

		hashSize: hashSize,
		loneNode: rule,
	}
}

// computeNode writes row[i] from its children in below.
// Only row[i] is written, so distinct values of i may run concurrently.
func (t *Tree) computeNode(h mthash.Hasher, below, row [][]byte, i int) {
	left := below[2*i]
	if 2*i+1 < len(below) {
		setDigest(row[i], h.Node(left, below[2*i+1], row[i][:0]))
		return
	}

	switch t.loneNode {
	case PromoteLoneNode:
		copy(row[i], left)
	case DuplicateLoneNode:
		setDigest(row[i], h.Node(left, left, row[i][:0]))
	}
}

// setDigest finalizes a node slot from the Hasher's returned slice.
// Normally out already aliases slot and the copy is a no-op.
func setDigest(slot, out []byte) {
	if len(out) != len(slot) {
		panic(fmt.Errorf(
			"BUG: Hasher produced %d bytes, expected %d", len(out), len(slot),
		))
	}
	copy(slot, out)
}

// Root returns a copy of the root digest.
func (t *Tree) Root() []byte {
	return cloneDigest(t.levels[len(t.levels)-1][0])
}

// LeafCount returns the number of leaves the tree was built from.
func (t *Tree) LeafCount() int {
	return len(t.levels[0])
}

// Height returns the number of levels above the leaves.
// A single-leaf tree has height zero.
func (t *Tree) Height() int {
	return len(t.levels) - 1
}

// HashSize returns the size in bytes of every digest in the tree.
func (t *Tree) HashSize() int {
	return t.hashSize
}

// LoneNode returns the rule the tree was built with.
func (t *Tree) LoneNode() LoneNodeRule {
	return t.loneNode
}

// Leaf returns a copy of the digest of the leaf at the given index.
// It panics if idx is out of range.
func (t *Tree) Leaf(idx int) []byte {
	if idx < 0 || idx >= len(t.levels[0]) {
		panic(fmt.Errorf(
			"BUG: attempted to get leaf at index %d; must be in range [0, %d)",
			idx, len(t.levels[0]),
		))
	}
	return cloneDigest(t.levels[0][idx])
}

// Level returns copies of every digest at the given level,
// where level 0 is the leaves and level Height() is the root.
// It panics if level is out of range.
func (t *Tree) Level(level int) [][]byte {
	if level < 0 || level >= len(t.levels) {
		panic(fmt.Errorf(
			"BUG: attempted to get level %d; must be in range [0, %d]",
			level, t.Height(),
		))
	}

	row := t.levels[level]
	mem := make([]byte, len(row)*t.hashSize)
	out := make([][]byte, len(row))
	for i, d := range row {
		start := i * t.hashSize
		out[i] = mem[start : start+t.hashSize : start+t.hashSize]
		copy(out[i], d)
	}
	return out
}

func cloneDigest(d []byte) []byte {
	out := make([]byte, len(d))
	copy(out, d)
	return out
}
