package mtchunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/mtree"
	"github.com/gordian-engine/mtree/internal/mtbitset"
	"github.com/gordian-engine/mtree/mthash"
	"github.com/klauspost/reedsolomon"
)

var ErrAlreadyHaveShard = errors.New("already had shard at given index")

var ErrShardProofMismatch = errors.New("shard did not match its proof and the expected root")

var ErrNotEnoughShards = errors.New("not enough shards to reconstruct data")

// CollectorConfig contains all the details for [NewCollector].
type CollectorConfig struct {
	Root []byte

	DataShards, ParityShards int

	// Length of the original data.
	DataSize int

	// Must match the Hasher and rule used to prepare the shards.
	Hasher   mthash.Hasher
	LoneNode mtree.LoneNodeRule

	Log *slog.Logger
}

// Collector accumulates verified shards until the original data
// can be reconstructed.
//
// This type does not hold references to caller-owned shard slices;
// [*Collector.AddShard] copies accepted shards.
// A Collector is not safe for concurrent use.
type Collector struct {
	log *slog.Logger

	enc      reedsolomon.Encoder
	verifier mtree.Verifier

	// Which shards have been verified and stored.
	haveShards *bitset.BitSet
	haveEnc    mtbitset.Encoder

	shards [][]byte

	nData, nParity int
	dataSize       int

	// Zero until the first shard is accepted.
	shardSize int
}

// NewCollector returns a Collector for the content described by cfg.
func NewCollector(cfg CollectorConfig) (*Collector, error) {
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
	if cfg.DataSize <= 0 {
		panic(fmt.Errorf(
			"BUG: DataSize must be positive (got %d)", cfg.DataSize,
		))
	}

	enc, err := reedsolomon.New(cfg.DataShards, cfg.ParityShards)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	nShards := cfg.DataShards + cfg.ParityShards
	return &Collector{
		log: log,

		enc: enc,
		verifier: mtree.NewVerifier(cfg.Root, mtree.VerifyConfig{
			Hasher:   cfg.Hasher,
			LoneNode: cfg.LoneNode,
		}),

		haveShards: bitset.MustNew(uint(nShards)),

		shards: make([][]byte, nShards),

		nData:    cfg.DataShards,
		nParity:  cfg.ParityShards,
		dataSize: cfg.DataSize,
	}, nil
}

// AddShard verifies the shard at idx against the collector's root
// using the given proof, and stores it if valid.
//
// If the shard was already accepted,
// AddShard returns [ErrAlreadyHaveShard] without re-verifying.
// If the proof is well-formed but does not lead to the root,
// the returned error matches both [ErrShardProofMismatch]
// and [mtree.ErrRootMismatch].
// A proof for a different position or tree size
// is an [mtree.MalformedProofError].
func (c *Collector) AddShard(idx int, shard []byte, p mtree.Proof) error {
	if idx < 0 || idx >= len(c.shards) {
		return mtree.IndexOutOfRangeError{Index: idx, LeafCount: len(c.shards)}
	}

	if p.LeafIndex != idx || p.LeafCount != len(c.shards) {
		return mtree.MalformedProofError{
			Reason: fmt.Sprintf(
				"proof is for leaf %d of %d, but shard is %d of %d",
				p.LeafIndex, p.LeafCount, idx, len(c.shards),
			),
		}
	}

	if c.haveShards.Test(uint(idx)) {
		return ErrAlreadyHaveShard
	}

	if err := c.verifier.Check(shard, p); err != nil {
		if errors.Is(err, mtree.ErrRootMismatch) {
			return fmt.Errorf("%w: shard %d: %w", ErrShardProofMismatch, idx, err)
		}
		return fmt.Errorf("shard %d: %w", idx, err)
	}

	// A valid proof pins the content,
	// so a differing size would mean a broken preparer rather than a forgery.
	if c.shardSize != 0 && len(shard) != c.shardSize {
		return fmt.Errorf(
			"shard %d has size %d, but earlier shards had size %d",
			idx, len(shard), c.shardSize,
		)
	}
	c.shardSize = len(shard)

	c.shards[idx] = bytes.Clone(shard)
	c.haveShards.Set(uint(idx))

	c.log.Debug(
		"Accepted shard",
		"idx", idx,
		"have", c.haveShards.Count(),
		"need", c.nData,
	)

	return nil
}

// HasShard reports whether the shard at idx has been accepted.
// HasShard reports false if idx is out of bounds.
func (c *Collector) HasShard(idx int) bool {
	if idx < 0 || idx >= len(c.shards) {
		return false
	}
	return c.haveShards.Test(uint(idx))
}

// Count returns the number of accepted shards.
func (c *Collector) Count() int {
	return int(c.haveShards.Count())
}

// Ready reports whether enough shards are held to reconstruct the data.
func (c *Collector) Ready() bool {
	return c.Count() >= c.nData
}

// Reconstruct rebuilds and returns the original data.
// It returns [ErrNotEnoughShards] if [*Collector.Ready] would report false.
//
// Reconstruct does not modify the collector's stored shards,
// so it may be called more than once.
func (c *Collector) Reconstruct() ([]byte, error) {
	if !c.Ready() {
		return nil, fmt.Errorf(
			"%w: have %d, need %d", ErrNotEnoughShards, c.Count(), c.nData,
		)
	}

	// ReconstructData fills in nil entries of the slice,
	// so work on a shallow copy.
	shards := make([][]byte, len(c.shards))
	copy(shards, c.shards)

	if err := c.enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("failed to reconstruct data shards: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(c.dataSize)
	if err := c.enc.Join(&buf, shards, c.dataSize); err != nil {
		return nil, fmt.Errorf("failed to join data shards: %w", err)
	}

	return buf.Bytes(), nil
}

// EncodeHave writes the set of accepted shard indices to w.
// A sender can read it with [DecodeHave]
// to avoid sending shards the collector already holds.
func (c *Collector) EncodeHave(w io.Writer) error {
	return c.haveEnc.Encode(w, c.haveShards)
}

// DecodeHave reads a set written by [*Collector.EncodeHave]
// for content split into nShards total shards.
func DecodeHave(r io.Reader, nShards int) (*bitset.BitSet, error) {
	if nShards <= 0 {
		panic(fmt.Errorf(
			"BUG: nShards must be positive (got %d)", nShards,
		))
	}

	bs := bitset.MustNew(uint(nShards))
	var dec mtbitset.Decoder
	if err := dec.Decode(r, bs); err != nil {
		return nil, fmt.Errorf("failed to decode shard set: %w", err)
	}
	return bs, nil
}

// MissingShards returns, in ascending order,
// the indices in [0, nShards) that are not set in have.
func MissingShards(have *bitset.BitSet, nShards int) []int {
	out := make([]int, 0, max(0, nShards-int(have.Count())))
	for i := range nShards {
		if !have.Test(uint(i)) {
			out = append(out, i)
		}
	}
	return out
}
