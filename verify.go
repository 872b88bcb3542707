package mtree

import (
	"bytes"
	"strconv"

	"github.com/gordian-engine/mtree/mthash"
	"github.com/gordian-engine/mtree/mthash/mtsha256"
)

// VerifyConfig is the configuration used for proof verification.
// It must match the [TreeConfig] that built the tree.
type VerifyConfig struct {
	// Defaults to SHA256 if nil.
	Hasher mthash.Hasher

	LoneNode LoneNodeRule
}

func (c VerifyConfig) hasher() mthash.Hasher {
	if c.Hasher == nil {
		return mtsha256.Hasher{}
	}
	return c.Hasher
}

// CheckProof recomputes the root from the raw leaf bytes and the proof,
// and compares it to root.
//
// It returns nil if the proof is valid,
// [ErrRootMismatch] if the proof is well-formed but leads to a different root,
// or a [MalformedProofError] if the proof's shape is inconsistent
// with its claimed leaf index and leaf count,
// or if any digest has the wrong size.
//
// CheckProof never modifies its inputs.
func CheckProof(leaf []byte, p Proof, root []byte, cfg VerifyConfig) error {
	h := cfg.hasher()
	hashSize := h.Size()

	if err := validateShape(p, hashSize, cfg.LoneNode); err != nil {
		return err
	}
	if len(root) != hashSize {
		return MalformedProofError{
			Reason: "root has " + strconv.Itoa(len(root)) +
				" bytes, expected " + strconv.Itoa(hashSize),
		}
	}

	// Alternate between two buffers so every step hashes
	// from one into the other without allocating.
	buf := make([]byte, 2*hashSize)
	cur := buf[:hashSize:hashSize]
	next := buf[hashSize:]

	cur = h.Leaf(leaf, cur[:0])
	for _, sib := range p.Siblings {
		if sib.IsLeft {
			next = h.Node(sib.Hash, cur, next[:0])
		} else {
			next = h.Node(cur, sib.Hash, next[:0])
		}
		cur, next = next, cur
	}

	if !bytes.Equal(cur, root) {
		return ErrRootMismatch
	}
	return nil
}

// Verify reports whether the proof shows that leaf is included
// in the tree with the given root.
//
// Verify is [CheckProof] reduced to a boolean:
// malformed proofs simply fail verification.
func Verify(leaf []byte, p Proof, root []byte, cfg VerifyConfig) bool {
	return CheckProof(leaf, p, root, cfg) == nil
}

func validateShape(p Proof, hashSize int, rule LoneNodeRule) error {
	if rule > DuplicateLoneNode {
		return MalformedProofError{Reason: "unknown lone node rule " + rule.String()}
	}
	if p.LeafCount <= 0 {
		return MalformedProofError{
			Reason: "leaf count must be positive, got " + strconv.Itoa(p.LeafCount),
		}
	}
	if p.LeafIndex < 0 || p.LeafIndex >= p.LeafCount {
		return MalformedProofError{
			Reason: "leaf index " + strconv.Itoa(p.LeafIndex) +
				" out of range [0, " + strconv.Itoa(p.LeafCount) + ")",
		}
	}

	if want := ProofLength(p.LeafIndex, p.LeafCount, rule); len(p.Siblings) != want {
		return MalformedProofError{
			Reason: "proof has " + strconv.Itoa(len(p.Siblings)) +
				" siblings, tree shape requires " + strconv.Itoa(want),
		}
	}

	for i, sib := range p.Siblings {
		if len(sib.Hash) != hashSize {
			return MalformedProofError{
				Reason: "sibling " + strconv.Itoa(i) + " has " +
					strconv.Itoa(len(sib.Hash)) + " bytes, expected " +
					strconv.Itoa(hashSize),
			}
		}
	}

	return nil
}

// Verifier checks proofs against one fixed root.
// The zero value is not usable; create one with [NewVerifier].
type Verifier struct {
	root []byte
	cfg  VerifyConfig
}

// NewVerifier returns a Verifier for the given root.
// The root is copied.
func NewVerifier(root []byte, cfg VerifyConfig) Verifier {
	return Verifier{
		root: cloneDigest(root),
		cfg:  cfg,
	}
}

// Root returns a copy of the root the Verifier checks against.
func (v Verifier) Root() []byte {
	return cloneDigest(v.root)
}

// Check is [CheckProof] against v's root.
func (v Verifier) Check(leaf []byte, p Proof) error {
	return CheckProof(leaf, p, v.root, v.cfg)
}

// Verify is [Verify] against v's root.
func (v Verifier) Verify(leaf []byte, p Proof) bool {
	return v.Check(leaf, p) == nil
}
