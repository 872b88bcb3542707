// Package mtree builds binary Merkle trees over ordered leaves,
// produces inclusion proofs for individual leaves,
// and verifies those proofs against a root digest.
//
// Construct a tree with [NewTree].
// Leaf hashing and each level of internal nodes
// are spread over a fixed pool of worker goroutines,
// with a full barrier between levels;
// the resulting digests are identical for every worker count.
//
// Leaves and internal nodes are hashed with distinct domain tags
// (see package mthash), so a proof can never present
// an internal node as if it were a leaf.
//
// When a level has an odd number of nodes,
// the final "lone" node is handled according to a [LoneNodeRule].
// The default, [PromoteLoneNode], moves the lone node up unchanged
// and records no proof entry for that level.
// The same rule must be supplied to verification.
//
// A [Proof] copies every digest it needs,
// so it remains valid after the [Tree] is discarded.
// Verify it with [Verify], [CheckProof], or a [Verifier].
// Verification always re-hashes the raw leaf bytes,
// and no API accepts a precomputed leaf digest in its place.
package mtree
