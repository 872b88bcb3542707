package mtblake3

import (
	"github.com/gordian-engine/mtree/mthash"
	"github.com/zeebo/blake3"
)

// HashSize is the default BLAKE3 output length.
const HashSize = 32

// Hasher is a [mthash.Hasher] backed by 256-bit BLAKE3 hashes.
type Hasher struct{}

var _ mthash.Hasher = Hasher{}

func (Hasher) Leaf(in []byte, dst []byte) []byte {
	h := blake3.New()
	_, _ = h.Write([]byte{byte(mthash.LeafTag)})
	_, _ = h.Write(in)
	return h.Sum(dst)
}

func (Hasher) Node(left, right []byte, dst []byte) []byte {
	h := blake3.New()
	_, _ = h.Write([]byte{byte(mthash.NodeTag)})
	_, _ = h.Write(left)
	_, _ = h.Write(right)
	return h.Sum(dst)
}

func (Hasher) Size() int {
	return HashSize
}
