package mtsha256

import (
	"crypto/sha256"

	"github.com/gordian-engine/mtree/mthash"
)

const HashSize = sha256.Size

// Hasher is a [mthash.Hasher] backed by SHA256 hashes.
type Hasher struct{}

var _ mthash.Hasher = Hasher{}

func (Hasher) Leaf(in []byte, dst []byte) []byte {
	h := sha256.New()
	_, _ = h.Write([]byte{byte(mthash.LeafTag)})
	_, _ = h.Write(in)
	return h.Sum(dst)
}

func (Hasher) Node(left, right []byte, dst []byte) []byte {
	h := sha256.New()
	_, _ = h.Write([]byte{byte(mthash.NodeTag)})
	_, _ = h.Write(left)
	_, _ = h.Write(right)
	return h.Sum(dst)
}

func (Hasher) Size() int {
	return HashSize
}
