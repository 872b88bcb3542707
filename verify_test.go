package mtree_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/gordian-engine/mtree"
	"github.com/gordian-engine/mtree/internal/mttest"
	"github.com/gordian-engine/mtree/mthash"
	"github.com/gordian-engine/mtree/mthash/mtblake3"
	"github.com/gordian-engine/mtree/mthash/mtsha256"
	"github.com/gordian-engine/mtree/mthash/mtsha3"
	"github.com/stretchr/testify/require"
)

func TestVerify_oddSizes(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 3, 5, 7} {
		leaves := mttest.RandomLeavesForTest(t, n, 32)

		tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
		require.NoError(t, err)
		root := tree.Root()
		require.Len(t, root, mtsha256.HashSize)

		for i := range leaves {
			p, err := tree.Prove(i)
			require.NoError(t, err)
			require.True(t, mtree.Verify(leaves[i], p, root, mtree.VerifyConfig{}), "n=%d i=%d", n, i)
		}
	}
}

func TestVerify_singleLeaf(t *testing.T) {
	t.Parallel()

	leaf := []byte("x")
	tree, err := mtree.NewTree([][]byte{leaf}, mtree.TreeConfig{})
	require.NoError(t, err)

	require.Equal(t, mthash.LeafDigest(mtsha256.Hasher{}, leaf), tree.Root())

	p, err := tree.Prove(0)
	require.NoError(t, err)
	require.Empty(t, p.Siblings)
	require.True(t, mtree.Verify(leaf, p, tree.Root(), mtree.VerifyConfig{}))
	require.False(t, mtree.Verify([]byte("y"), p, tree.Root(), mtree.VerifyConfig{}))
}

func TestVerify_emptyLeaf(t *testing.T) {
	t.Parallel()

	leaves := [][]byte{{}, []byte("a"), nil}
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)

	for i := range leaves {
		p, err := tree.Prove(i)
		require.NoError(t, err)
		require.True(t, mtree.Verify(leaves[i], p, tree.Root(), mtree.VerifyConfig{}))
	}
}

func TestCheckProof_tamperedLeaf(t *testing.T) {
	t.Parallel()

	leaves := mttest.RandomLeavesForTest(t, 13, 32)
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)
	root := tree.Root()

	for i, leaf := range leaves {
		p, err := tree.Prove(i)
		require.NoError(t, err)

		for b := range leaf {
			tampered := bytes.Clone(leaf)
			tampered[b] ^= 0x01
			require.ErrorIs(t, mtree.CheckProof(tampered, p, root, mtree.VerifyConfig{}), mtree.ErrRootMismatch)
		}

		// Appending a byte must also fail.
		longer := append(bytes.Clone(leaf), 0)
		require.False(t, mtree.Verify(longer, p, root, mtree.VerifyConfig{}))

		// And so must a valid leaf claimed at the wrong position.
		other := leaves[(i+1)%len(leaves)]
		if !bytes.Equal(other, leaf) {
			require.False(t, mtree.Verify(other, p, root, mtree.VerifyConfig{}))
		}
	}
}

func TestCheckProof_tamperedSibling(t *testing.T) {
	t.Parallel()

	leaves := mttest.RandomLeavesForTest(t, 11, 32)
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)
	root := tree.Root()

	for i, leaf := range leaves {
		p, err := tree.Prove(i)
		require.NoError(t, err)

		for s := range p.Siblings {
			for b := range p.Siblings[s].Hash {
				orig := p.Siblings[s].Hash[b]
				p.Siblings[s].Hash[b] ^= 0x80
				require.ErrorIs(t, mtree.CheckProof(leaf, p, root, mtree.VerifyConfig{}), mtree.ErrRootMismatch)
				p.Siblings[s].Hash[b] = orig
			}

			// Flipping the side alone must also fail.
			p.Siblings[s].IsLeft = !p.Siblings[s].IsLeft
			require.False(t, mtree.Verify(leaf, p, root, mtree.VerifyConfig{}))
			p.Siblings[s].IsLeft = !p.Siblings[s].IsLeft
		}

		// Restored proof is valid again.
		require.True(t, mtree.Verify(leaf, p, root, mtree.VerifyConfig{}))
	}
}

func TestCheckProof_tamperedRoot(t *testing.T) {
	t.Parallel()

	leaves := mttest.RandomLeavesForTest(t, 6, 32)
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)

	p, err := tree.Prove(3)
	require.NoError(t, err)

	root := tree.Root()
	for b := range root {
		tampered := bytes.Clone(root)
		tampered[b] ^= 0xff
		require.ErrorIs(t, mtree.CheckProof(leaves[3], p, tampered, mtree.VerifyConfig{}), mtree.ErrRootMismatch)
	}
}

func TestCheckProof_malformed(t *testing.T) {
	t.Parallel()

	leaves := mttest.RandomLeavesForTest(t, 5, 32)
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)
	root := tree.Root()

	valid, err := tree.Prove(1)
	require.NoError(t, err)
	require.Len(t, valid.Siblings, 3)

	clone := func() mtree.Proof {
		p := valid
		p.Siblings = make([]mtree.Sibling, len(valid.Siblings))
		for i, s := range valid.Siblings {
			p.Siblings[i] = mtree.Sibling{Hash: bytes.Clone(s.Hash), IsLeft: s.IsLeft}
		}
		return p
	}

	for name, tc := range map[string]struct {
		p    func() mtree.Proof
		root []byte
	}{
		"missing sibling": {
			p: func() mtree.Proof {
				p := clone()
				p.Siblings = p.Siblings[:2]
				return p
			},
		},
		"extra sibling": {
			p: func() mtree.Proof {
				p := clone()
				p.Siblings = append(p.Siblings, mtree.Sibling{Hash: make([]byte, mtsha256.HashSize)})
				return p
			},
		},
		"short sibling hash": {
			p: func() mtree.Proof {
				p := clone()
				p.Siblings[1].Hash = p.Siblings[1].Hash[:mtsha256.HashSize-1]
				return p
			},
		},
		"long sibling hash": {
			p: func() mtree.Proof {
				p := clone()
				p.Siblings[0].Hash = append(p.Siblings[0].Hash, 0)
				return p
			},
		},
		"negative index": {
			p: func() mtree.Proof {
				p := clone()
				p.LeafIndex = -1
				return p
			},
		},
		"index past count": {
			p: func() mtree.Proof {
				p := clone()
				p.LeafIndex = 5
				return p
			},
		},
		"zero leaf count": {
			p: func() mtree.Proof {
				p := clone()
				p.LeafCount = 0
				return p
			},
		},
		"count implying a different height": {
			p: func() mtree.Proof {
				p := clone()
				p.LeafCount = 64
				return p
			},
		},
		"count too large for its siblings": {
			p: func() mtree.Proof {
				p := clone()
				p.LeafCount = math.MaxInt
				return p
			},
		},
		"short root": {
			p:    clone,
			root: root[:8],
		},
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := tc.root
			if r == nil {
				r = root
			}

			err := mtree.CheckProof(leaves[1], tc.p(), r, mtree.VerifyConfig{})

			var mpe mtree.MalformedProofError
			require.ErrorAs(t, err, &mpe)
			require.NotErrorIs(t, err, mtree.ErrRootMismatch)

			require.NotPanics(t, func() {
				require.False(t, mtree.Verify(leaves[1], tc.p(), r, mtree.VerifyConfig{}))
			})
		})
	}

	// The unmodified proof is fine.
	require.NoError(t, mtree.CheckProof(leaves[1], clone(), root, mtree.VerifyConfig{}))
}

func TestCheckProof_unknownLoneNodeRule(t *testing.T) {
	t.Parallel()

	tree, err := mtree.NewTree(stringLeaves("a", "b", "c"), mtree.TreeConfig{})
	require.NoError(t, err)
	p, err := tree.Prove(0)
	require.NoError(t, err)

	err = mtree.CheckProof([]byte("a"), p, tree.Root(), mtree.VerifyConfig{
		LoneNode: mtree.LoneNodeRule(200),
	})
	var mpe mtree.MalformedProofError
	require.ErrorAs(t, err, &mpe)
}

func TestCheckProof_loneNodeRuleMismatch(t *testing.T) {
	t.Parallel()

	leaves := stringLeaves("a", "b", "c", "d", "e")
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{LoneNode: mtree.DuplicateLoneNode})
	require.NoError(t, err)

	for i, leaf := range leaves {
		p, err := tree.Prove(i)
		require.NoError(t, err)

		require.True(t, mtree.Verify(leaf, p, tree.Root(), mtree.VerifyConfig{
			LoneNode: mtree.DuplicateLoneNode,
		}))
		require.False(t, mtree.Verify(leaf, p, tree.Root(), mtree.VerifyConfig{
			LoneNode: mtree.PromoteLoneNode,
		}))
	}
}

func TestCheckProof_rejectsInternalNodeAsLeaf(t *testing.T) {
	t.Parallel()

	/* Tree structure:

	0123
	01 23
	0 1 2 3

	*/

	leaves := stringLeaves("zero", "one", "two", "three")
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)
	root := tree.Root()

	level0 := tree.Level(0)
	level1 := tree.Level(1)

	// Without domain separation, presenting the concatenation of 0 and 1
	// as the "leaf" of a two-leaf tree whose other leaf is node 23
	// would produce the same root.
	forgedLeaf := append(bytes.Clone(level0[0]), level0[1]...)
	forged := mtree.Proof{
		LeafIndex: 0,
		LeafCount: 2,
		Siblings: []mtree.Sibling{
			{Hash: level1[1]},
		},
	}

	require.ErrorIs(t, mtree.CheckProof(forgedLeaf, forged, root, mtree.VerifyConfig{}), mtree.ErrRootMismatch)
}

func TestCheckProof_hasherMismatch(t *testing.T) {
	t.Parallel()

	leaves := mttest.RandomLeavesForTest(t, 9, 32)

	hashers := []mthash.Hasher{
		mtsha256.Hasher{},
		mtsha3.Hasher{},
		mtsha3.KeccakHasher{},
		mtblake3.Hasher{},
	}

	for i, built := range hashers {
		tree, err := mtree.NewTree(leaves, mtree.TreeConfig{Hasher: built})
		require.NoError(t, err)

		p, err := tree.Prove(4)
		require.NoError(t, err)

		for j, verifying := range hashers {
			ok := mtree.Verify(leaves[4], p, tree.Root(), mtree.VerifyConfig{Hasher: verifying})
			require.Equal(t, i == j, ok, "built with %T, verified with %T", built, verifying)
		}
	}
}

func TestVerifier(t *testing.T) {
	t.Parallel()

	leaves := mttest.RandomLeavesForTest(t, 10, 32)
	tree, err := mtree.NewTree(leaves, mtree.TreeConfig{})
	require.NoError(t, err)

	root := tree.Root()
	v := mtree.NewVerifier(root, mtree.VerifyConfig{})

	// The verifier holds its own copy of the root.
	root[0] ^= 0xff
	require.Equal(t, tree.Root(), v.Root())

	for i, leaf := range leaves {
		p, err := tree.Prove(i)
		require.NoError(t, err)

		require.True(t, v.Verify(leaf, p))
		require.NoError(t, v.Check(leaf, p))

		// The same proof, reused against another root, fails.
		other := mtree.NewVerifier(root, mtree.VerifyConfig{})
		require.False(t, other.Verify(leaf, p))
		require.ErrorIs(t, other.Check(leaf, p), mtree.ErrRootMismatch)
	}
}

func TestVerify_proofFromDifferentTree(t *testing.T) {
	t.Parallel()

	data1 := stringLeaves("integration00", "integration01", "integration02", "integration03")
	data2 := stringLeaves("integration00", "integration01", "integration02", "modified")

	tree1, err := mtree.NewTree(data1, mtree.TreeConfig{Workers: 1})
	require.NoError(t, err)
	tree2, err := mtree.NewTree(data2, mtree.TreeConfig{Workers: 1})
	require.NoError(t, err)

	p2, err := tree2.Prove(3)
	require.NoError(t, err)

	require.True(t, mtree.Verify(data2[3], p2, tree2.Root(), mtree.VerifyConfig{}))
	require.False(t, mtree.Verify(data2[3], p2, tree1.Root(), mtree.VerifyConfig{}))
}
