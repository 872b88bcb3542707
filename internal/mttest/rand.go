package mttest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"
)

// RandomDataForTest returns a byte slice of size sz
// containing pseudorandom data, derived from a seed based on the test name.
func RandomDataForTest(t testing.TB, sz int) []byte {
	// Sha256 happens to be the right size for the chacha8 seed,
	// and this fits well anyway since that means
	// we are not limited by the length of any particular test name.
	seed := sha256.Sum256([]byte(t.Name()))
	chacha := rand.NewChaCha8(seed)

	out := make([]byte, sz)

	if _, err := chacha.Read(out); err != nil {
		panic(err)
	}

	return out
}

// RandomLeavesForTest returns n leaves of pseudorandom content
// whose lengths vary between 0 and maxSz bytes, inclusive.
// Like [RandomDataForTest], the output is stable for a given test name.
func RandomLeavesForTest(t testing.TB, n, maxSz int) [][]byte {
	seed := sha256.Sum256([]byte("leaves:" + t.Name()))
	rng := rand.New(rand.NewChaCha8(seed))

	// One backing allocation, with each leaf a subslice of it.
	mem := RandomDataForTest(t, n*maxSz)

	leaves := make([][]byte, n)
	for i := range leaves {
		sz := rng.IntN(maxSz + 1)
		start := i * maxSz
		leaves[i] = mem[start : start+sz : start+sz]
	}
	return leaves
}
