package mthashtest

import (
	"bytes"
	"sync"
	"testing"

	"github.com/gordian-engine/mtree/mthash"
	"github.com/stretchr/testify/require"
)

type HasherFactory func() mthash.Hasher

// TestHasherCompliance runs the set of behaviors
// every [mthash.Hasher] implementation must satisfy.
func TestHasherCompliance(t *testing.T, f HasherFactory) {
	t.Run("size is positive", func(t *testing.T) {
		t.Parallel()

		require.Positive(t, f().Size())
	})

	t.Run("leaf is deterministic", func(t *testing.T) {
		t.Parallel()

		h := f()

		dst01 := h.Leaf([]byte("deterministic_data"), nil)
		dst02 := h.Leaf([]byte("deterministic_data"), nil)

		require.Len(t, dst01, h.Size())
		require.Equal(t, dst01, dst02)
	})

	t.Run("node is deterministic", func(t *testing.T) {
		t.Parallel()

		h := f()
		l := mthash.LeafDigest(h, []byte("left"))
		r := mthash.LeafDigest(h, []byte("right"))

		dst01 := h.Node(l, r, nil)
		dst02 := h.Node(l, r, nil)

		require.Len(t, dst01, h.Size())
		require.Equal(t, dst01, dst02)
	})

	t.Run("leaf appends to dst", func(t *testing.T) {
		t.Parallel()

		h := f()

		prefix := []byte("prefix")
		dst := make([]byte, len(prefix), len(prefix)+h.Size())
		copy(dst, prefix)

		out := h.Leaf([]byte("data"), dst)
		require.Len(t, out, len(prefix)+h.Size())
		require.Equal(t, prefix, out[:len(prefix)])
		require.Equal(t, mthash.LeafDigest(h, []byte("data")), out[len(prefix):])

		// With sufficient capacity, the output must share dst's backing array.
		require.Equal(t, &dst[:1][0], &out[0])
	})

	t.Run("node appends to dst", func(t *testing.T) {
		t.Parallel()

		h := f()
		l := mthash.LeafDigest(h, []byte("l"))
		r := mthash.LeafDigest(h, []byte("r"))

		dst := make([]byte, 0, h.Size())
		out := h.Node(l, r, dst)
		require.Len(t, out, h.Size())
		require.Equal(t, &dst[:1][0], &out[0])
	})

	t.Run("empty leaf is valid", func(t *testing.T) {
		t.Parallel()

		h := f()

		empty := h.Leaf(nil, nil)
		require.Len(t, empty, h.Size())
		require.Equal(t, empty, h.Leaf([]byte{}, nil))
		require.NotEqual(t, empty, h.Leaf([]byte{0}, nil))
	})

	t.Run("leaf and node are domain separated", func(t *testing.T) {
		t.Parallel()

		h := f()
		l := mthash.LeafDigest(h, []byte("a"))
		r := mthash.LeafDigest(h, []byte("b"))

		// The concatenation is exactly the untagged input of the node hash.
		concat := append(bytes.Clone(l), r...)
		require.NotEqual(t, h.Node(l, r, nil), h.Leaf(concat, nil))

		// A leaf whose data begins with the node tag must not collide either.
		tagged := append([]byte{byte(mthash.NodeTag)}, concat...)
		require.NotEqual(t, h.Node(l, r, nil), h.Leaf(tagged, nil))
	})

	t.Run("node respects order", func(t *testing.T) {
		t.Parallel()

		h := f()
		l := mthash.LeafDigest(h, []byte("first"))
		r := mthash.LeafDigest(h, []byte("second"))

		require.NotEqual(t, h.Node(l, r, nil), h.Node(r, l, nil))
	})

	t.Run("leaf respects content", func(t *testing.T) {
		t.Parallel()

		h := f()
		require.NotEqual(t, h.Leaf([]byte("hello"), nil), h.Leaf([]byte("hellp"), nil))
	})

	t.Run("safe for concurrent use", func(t *testing.T) {
		t.Parallel()

		h := f()
		want := mthash.LeafDigest(h, []byte("concurrent"))

		const nWorkers = 8
		got := make([][]byte, nWorkers)

		var wg sync.WaitGroup
		wg.Add(nWorkers)
		for i := range nWorkers {
			go func() {
				defer wg.Done()
				for range 100 {
					got[i] = h.Leaf([]byte("concurrent"), got[i][:0])
				}
			}()
		}
		wg.Wait()

		for i := range nWorkers {
			require.Equal(t, want, got[i])
		}
	})
}
