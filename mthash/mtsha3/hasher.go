// Package mtsha3 provides [mthash.Hasher] implementations
// backed by the SHA-3 family.
//
// [Hasher] uses the standardized SHA3-256.
// [KeccakHasher] uses the original Keccak-256 padding,
// which is what Ethereum tooling calls "keccak256".
package mtsha3

import (
	"hash"

	"github.com/gordian-engine/mtree/mthash"
	"golang.org/x/crypto/sha3"
)

const HashSize = 32

// Hasher is a [mthash.Hasher] backed by SHA3-256 hashes.
type Hasher struct{}

var _ mthash.Hasher = Hasher{}

func (Hasher) Leaf(in []byte, dst []byte) []byte {
	return leaf(sha3.New256(), in, dst)
}

func (Hasher) Node(left, right []byte, dst []byte) []byte {
	return node(sha3.New256(), left, right, dst)
}

func (Hasher) Size() int {
	return HashSize
}

// KeccakHasher is a [mthash.Hasher] backed by legacy Keccak-256 hashes.
type KeccakHasher struct{}

var _ mthash.Hasher = KeccakHasher{}

func (KeccakHasher) Leaf(in []byte, dst []byte) []byte {
	return leaf(sha3.NewLegacyKeccak256(), in, dst)
}

func (KeccakHasher) Node(left, right []byte, dst []byte) []byte {
	return node(sha3.NewLegacyKeccak256(), left, right, dst)
}

func (KeccakHasher) Size() int {
	return HashSize
}

func leaf(h hash.Hash, in, dst []byte) []byte {
	_, _ = h.Write([]byte{byte(mthash.LeafTag)})
	_, _ = h.Write(in)
	return h.Sum(dst)
}

func node(h hash.Hash, left, right, dst []byte) []byte {
	_, _ = h.Write([]byte{byte(mthash.NodeTag)})
	_, _ = h.Write(left)
	_, _ = h.Write(right)
	return h.Sum(dst)
}
