// Package mthash defines the hashing abstraction used by the mtree package.
//
// Every digest in a tree is produced by exactly one of two operations,
// and each operation prefixes its input with a distinct [Tag].
// A leaf digest therefore can never be reinterpreted as an internal node digest,
// which defeats the classic second-preimage forgery
// where an attacker presents an internal node as if it were a leaf.
package mthash

import "fmt"

// Tag is the domain-separation prefix written before any hash input.
type Tag byte

const (
	// LeafTag prefixes raw leaf data.
	LeafTag Tag = 0x00

	// NodeTag prefixes the concatenation of two child digests.
	NodeTag Tag = 0x01
)

func (t Tag) String() string {
	switch t {
	case LeafTag:
		return "leaf"
	case NodeTag:
		return "node"
	default:
		return fmt.Sprintf("Tag(0x%02x)", byte(t))
	}
}

// Hasher is the interface for hashing leaves and internal nodes.
//
// To be allocation-efficient, the Hasher implementation
// must append its hash output to dst and return the extended slice,
// instead of creating a new byte slice.
// Hasher must not retain references to dst or to any input slice.
//
// Leaf must hash [LeafTag] followed by in,
// and Node must hash [NodeTag] followed by left and then right.
//
// Furthermore, Hasher methods must be safe to call concurrently.
type Hasher interface {
	Leaf(in []byte, dst []byte) []byte
	Node(left, right []byte, dst []byte) []byte

	// Size is the length in bytes of every digest the Hasher produces.
	Size() int
}

// LeafDigest returns a newly allocated leaf digest of in.
func LeafDigest(h Hasher, in []byte) []byte {
	return h.Leaf(in, make([]byte, 0, h.Size()))
}

// NodeDigest returns a newly allocated digest of the internal node
// whose children are left and right.
func NodeDigest(h Hasher, left, right []byte) []byte {
	return h.Node(left, right, make([]byte, 0, h.Size()))
}
