// Package mtchunk commits to erasure-coded content with a Merkle tree.
//
// [Prepare] splits a blob into Reed-Solomon data and parity shards,
// builds an [mtree.Tree] over every shard,
// and returns the root alongside each shard's inclusion proof.
// A receiver only needs the root and a few parameters up front;
// it then feeds shards to a [Collector],
// which checks each shard against the root before accepting it,
// and rebuilds the original blob once any DataShards shards are held.
package mtchunk

import (
	"fmt"
	"log/slog"

	"github.com/gordian-engine/mtree"
	"github.com/gordian-engine/mtree/mthash"
	"github.com/klauspost/reedsolomon"
)

// PrepareConfig is the configuration for [Prepare].
type PrepareConfig struct {
	// Number of data shards the input is split into,
	// and the number of parity shards computed from them.
	// Any DataShards of the combined shards suffice to reconstruct the data.
	DataShards, ParityShards int

	// How to hash shards in the Merkle tree.
	// Defaults to SHA256 if nil.
	Hasher mthash.Hasher

	// Passed through to [mtree.TreeConfig].
	Workers  int
	LoneNode mtree.LoneNodeRule

	Log *slog.Logger
}

// Prepared is the value returned by [Prepare].
type Prepared struct {
	// Root of the Merkle tree over all shards.
	Root []byte

	// Length of the original data.
	// Shards are zero-padded, so this is required to reconstruct.
	DataSize int

	DataShards, ParityShards int

	// Data shards followed by parity shards, all of equal length.
	Shards [][]byte

	// Proofs[i] is the inclusion proof for Shards[i].
	Proofs []mtree.Proof
}

// CollectorConfig returns the configuration a receiver needs
// to verify and reconstruct the prepared content.
// The hasher and lone node rule are not part of Prepared;
// the caller supplies them.
func (p Prepared) CollectorConfig(h mthash.Hasher, rule mtree.LoneNodeRule) CollectorConfig {
	return CollectorConfig{
		Root:         p.Root,
		DataShards:   p.DataShards,
		ParityShards: p.ParityShards,
		DataSize:     p.DataSize,

		Hasher:   h,
		LoneNode: rule,
	}
}

// Prepare erasure-codes data and commits to the resulting shards.
//
// The input slice is never modified.
func Prepare(data []byte, cfg PrepareConfig) (Prepared, error) {
	if cfg.DataShards <= 0 {
		panic(fmt.Errorf(
			"BUG: DataShards must be positive (got %d)", cfg.DataShards,
		))
	}
	if cfg.ParityShards < 0 {
		panic(fmt.Errorf(
			"BUG: ParityShards must be non-negative (got %d)", cfg.ParityShards,
		))
	}
	if len(data) == 0 {
		return Prepared{}, fmt.Errorf("cannot prepare empty data")
	}

	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return Prepared{}, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	// Capping capacity forces Split to allocate
	// instead of writing parity into the caller's spare capacity.
	shards, err := enc.Split(data[:len(data):len(data)])
	if err != nil {
		return Prepared{}, fmt.Errorf(
			"failed to split data for chunking: %w", err,
		)
	}

	if err := enc.Encode(shards); err != nil {
		return Prepared{}, fmt.Errorf(
			"failed to erasure-code data: %w", err,
		)
	}

	// Now that the data is erasure-coded,
	// we can build the Merkle tree.
	t, err := mtree.NewTree(shards, mtree.TreeConfig{
		Hasher:   cfg.Hasher,
		Workers:  cfg.Workers,
		LoneNode: cfg.LoneNode,
		Log:      log,
	})
	if err != nil {
		return Prepared{}, fmt.Errorf("failed to build shard tree: %w", err)
	}

	proofs := make([]mtree.Proof, len(shards))
	for i := range shards {
		proofs[i], err = t.Prove(i)
		if err != nil {
			panic(fmt.Errorf("BUG: failed to prove shard %d: %w", i, err))
		}
	}

	log.Debug(
		"Prepared erasure-coded commitment",
		"data_size", len(data),
		"data_shards", cfg.DataShards,
		"parity_shards", cfg.ParityShards,
		"shard_size", len(shards[0]),
	)

	return Prepared{
		Root:     t.Root(),
		DataSize: len(data),

		DataShards:   cfg.DataShards,
		ParityShards: cfg.ParityShards,

		Shards: shards,
		Proofs: proofs,
	}, nil
}
