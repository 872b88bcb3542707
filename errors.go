package mtree

import (
	"errors"
	"strconv"
)

// EmptyInputError is returned from [NewTree] when there are no leaves.
type EmptyInputError struct{}

func (EmptyInputError) Error() string {
	return "cannot build tree from zero leaves"
}

// TooManyLeavesError is returned from [NewTree]
// when the leaf count exceeds [TreeConfig.MaxLeaves].
type TooManyLeavesError struct {
	Count, Max int
}

func (e TooManyLeavesError) Error() string {
	return "too many leaves: got " + strconv.Itoa(e.Count) +
		", limit is " + strconv.Itoa(e.Max)
}

// IndexOutOfRangeError is returned from [*Tree.Prove]
// when the requested index is not a valid leaf index.
type IndexOutOfRangeError struct {
	Index, LeafCount int
}

func (e IndexOutOfRangeError) Error() string {
	return "leaf index " + strconv.Itoa(e.Index) +
		" out of range [0, " + strconv.Itoa(e.LeafCount) + ")"
}

// MalformedProofError indicates a proof that is structurally invalid
// for the tree shape it claims,
// or an encoded proof that could not be decoded.
//
// It is distinct from [ErrRootMismatch]:
// a malformed proof cannot be checked against a root at all.
type MalformedProofError struct {
	Reason string
}

func (e MalformedProofError) Error() string {
	return "malformed proof: " + e.Reason
}

// ErrRootMismatch is returned from [CheckProof]
// when a well-formed proof does not lead to the expected root.
// This is the ordinary negative outcome of verification,
// e.g. for a tampered leaf or a proof from a different tree.
var ErrRootMismatch = errors.New("computed root does not match expected root")
