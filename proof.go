package mtree

import "fmt"

// Proof is an inclusion proof for a single leaf.
//
// The Siblings are ordered from the leaf's level upward,
// and never include the root.
// A Proof holds its own copies of every digest,
// so it does not keep the originating [Tree] alive.
type Proof struct {
	// The index of the proven leaf and the number of leaves in the tree.
	// Together with the lone node rule,
	// these determine how many siblings a valid proof has.
	LeafIndex, LeafCount int

	Siblings []Sibling
}

// Sibling is one step of a [Proof].
type Sibling struct {
	// Digest of the sibling node.
	Hash []byte

	// Whether the sibling is the left input to the parent node.
	// Verification uses this field directly
	// instead of deriving sides from the leaf index,
	// because promoted lone nodes break the usual index parity.
	IsLeft bool
}

// Prove returns the inclusion proof for the leaf at the given index.
// Prove returns an [IndexOutOfRangeError] if index is not in [0, LeafCount()).
func (t *Tree) Prove(index int) (Proof, error) {
	if index < 0 || index >= t.LeafCount() {
		return Proof{}, IndexOutOfRangeError{
			Index:     index,
			LeafCount: t.LeafCount(),
		}
	}

	n := ProofLength(index, t.LeafCount(), t.loneNode)

	p := Proof{
		LeafIndex: index,
		LeafCount: t.LeafCount(),

		Siblings: make([]Sibling, 0, n),
	}

	// All sibling digests share one allocation.
	mem := make([]byte, n*t.hashSize)

	idx := index
	for _, row := range t.levels[:len(t.levels)-1] {
		var sib Sibling
		switch {
		case idx&1 == 1:
			sib = Sibling{Hash: row[idx-1], IsLeft: true}
		case idx+1 < len(row):
			sib = Sibling{Hash: row[idx+1]}
		case t.loneNode == DuplicateLoneNode:
			sib = Sibling{Hash: row[idx]}
		default:
			// Promoted alone: nothing to record at this level.
			idx >>= 1
			continue
		}

		dst := mem[:t.hashSize:t.hashSize]
		mem = mem[t.hashSize:]
		copy(dst, sib.Hash)
		sib.Hash = dst

		p.Siblings = append(p.Siblings, sib)
		idx >>= 1
	}

	return p, nil
}

// ProofLength reports the number of siblings in a valid proof
// for the leaf at index, in a tree of leafCount leaves
// built with the given lone node rule.
//
// It panics if index is not in [0, leafCount).
func ProofLength(index, leafCount int, rule LoneNodeRule) int {
	if index < 0 || index >= leafCount {
		panic(fmt.Errorf(
			"BUG: index %d out of range [0, %d)", index, leafCount,
		))
	}
	rule.mustBeValid()

	n := 0
	// Ceiling division by two; w+1 would overflow for math.MaxInt.
	for w := leafCount; w > 1; w = w/2 + w&1 {
		lone := (w&1) == 1 && index == w-1
		if !lone || rule == DuplicateLoneNode {
			n++
		}
		index >>= 1
	}
	return n
}
