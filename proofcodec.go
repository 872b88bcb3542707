package mtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"
)

// maxEncodedSiblings is the limit of the one-byte sibling count.
// An int-indexed tree never exceeds 64 levels, so this is not reachable
// by proofs produced by [*Tree.Prove].
const maxEncodedSiblings = 255

// EncodedSize returns the number of bytes [Proof.Encode] writes.
func (p Proof) EncodedSize() int {
	sz := uvarintSize(uint64(p.LeafIndex)) + uvarintSize(uint64(p.LeafCount))
	sz++ // Sibling count.
	sz += sideBytesLen(len(p.Siblings))
	for _, s := range p.Siblings {
		sz += len(s.Hash)
	}
	return sz
}

// Encode writes the binary form of p to w.
//
// The layout is:
//   - LeafIndex as a uvarint
//   - LeafCount as a uvarint
//   - one byte holding the sibling count
//   - the side bits, one bit per sibling, packed little-endian
//     (bit i of the stream is set when sibling i is a left sibling)
//   - every sibling digest, fixed width, in proof order
//
// The digest width is not encoded;
// the decoder must know the hash size in advance.
func (p Proof) Encode(w io.Writer) error {
	if p.LeafIndex < 0 || p.LeafCount <= 0 {
		return MalformedProofError{
			Reason: fmt.Sprintf(
				"cannot encode leaf index %d with leaf count %d",
				p.LeafIndex, p.LeafCount,
			),
		}
	}
	if len(p.Siblings) > maxEncodedSiblings {
		return MalformedProofError{
			Reason: fmt.Sprintf(
				"cannot encode %d siblings; limit is %d",
				len(p.Siblings), maxEncodedSiblings,
			),
		}
	}
	for i, s := range p.Siblings {
		if len(s.Hash) != len(p.Siblings[0].Hash) {
			return MalformedProofError{
				Reason: fmt.Sprintf(
					"sibling %d has %d bytes but sibling 0 has %d",
					i, len(s.Hash), len(p.Siblings[0].Hash),
				),
			}
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, p.EncodedSize()))

	var vBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(vBuf[:], uint64(p.LeafIndex))
	_, _ = buf.Write(vBuf[:n])
	n = binary.PutUvarint(vBuf[:], uint64(p.LeafCount))
	_, _ = buf.Write(vBuf[:n])

	_ = buf.WriteByte(byte(len(p.Siblings)))

	sides := bitset.New(uint(len(p.Siblings)))
	for i, s := range p.Siblings {
		if s.IsLeft {
			sides.Set(uint(i))
		}
	}
	_, _ = buf.Write(encodeSides(sides, len(p.Siblings)))

	for _, s := range p.Siblings {
		_, _ = buf.Write(s.Hash)
	}

	_, err := buf.WriteTo(w)
	return err
}

// MarshalBinary implements [encoding.BinaryMarshaler]
// using the layout documented on [Proof.Encode].
func (p Proof) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeProof reads one encoded proof from r,
// whose sibling digests are each hashSize bytes.
//
// DecodeProof reads exactly the encoded proof and nothing past it.
// Invalid side bits or out-of-range integers result in a [MalformedProofError];
// read errors, including truncation as [io.ErrUnexpectedEOF], are wrapped.
func DecodeProof(r io.Reader, hashSize int) (Proof, error) {
	if hashSize <= 0 {
		panic(fmt.Errorf(
			"BUG: hashSize must be positive (got %d)", hashSize,
		))
	}

	br, ok := r.(io.ByteReader)
	if !ok {
		br = byteReader{r: r}
	}

	leafIdx, err := readInt(br, "leaf index")
	if err != nil {
		return Proof{}, err
	}
	leafCount, err := readInt(br, "leaf count")
	if err != nil {
		return Proof{}, err
	}

	nSiblings, err := br.ReadByte()
	if err != nil {
		return Proof{}, fmt.Errorf("failed to read sibling count: %w", eofToUnexpected(err))
	}

	sideBuf := make([]byte, sideBytesLen(int(nSiblings)))
	if _, err := io.ReadFull(r, sideBuf); err != nil {
		return Proof{}, fmt.Errorf("failed to read sibling sides: %w", err)
	}
	sides, err := decodeSides(sideBuf, int(nSiblings))
	if err != nil {
		return Proof{}, err
	}

	// Digests are kept in one allocation.
	mem := make([]byte, int(nSiblings)*hashSize)
	if _, err := io.ReadFull(r, mem); err != nil {
		return Proof{}, fmt.Errorf("failed to read sibling hashes: %w", err)
	}

	p := Proof{
		LeafIndex: leafIdx,
		LeafCount: leafCount,

		Siblings: make([]Sibling, nSiblings),
	}
	for i := range p.Siblings {
		start := i * hashSize
		end := start + hashSize
		p.Siblings[i] = Sibling{
			Hash:   mem[start:end:end],
			IsLeft: sides.Test(uint(i)),
		}
	}

	return p, nil
}

// UnmarshalProof decodes a proof produced by [Proof.MarshalBinary].
// Trailing bytes after the proof are a [MalformedProofError].
func UnmarshalProof(b []byte, hashSize int) (Proof, error) {
	r := bytes.NewReader(b)
	p, err := DecodeProof(r, hashSize)
	if err != nil {
		// A bytes.Reader has no I/O failures,
		// so any error is a problem with the encoding itself.
		var mpe MalformedProofError
		if errors.As(err, &mpe) {
			return Proof{}, err
		}
		return Proof{}, MalformedProofError{Reason: err.Error()}
	}
	if r.Len() != 0 {
		return Proof{}, MalformedProofError{
			Reason: fmt.Sprintf("%d trailing bytes after proof", r.Len()),
		}
	}
	return p, nil
}

func encodeSides(sides *bitset.BitSet, n int) []byte {
	words := sides.Words()
	out := make([]byte, 8*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint64(out[8*i:], w)
	}
	return out[:sideBytesLen(n)]
}

func decodeSides(b []byte, n int) (*bitset.BitSet, error) {
	words := make([]uint64, (len(b)+7)/8)
	var padded [8]byte
	for i := range words {
		clear(padded[:])
		copy(padded[:], b[8*i:])
		words[i] = binary.LittleEndian.Uint64(padded[:])
	}

	sides := bitset.From(words)

	// Padding bits must be zero, so that every proof has one encoding.
	if extra, ok := sides.NextSet(uint(n)); ok {
		return nil, MalformedProofError{
			Reason: fmt.Sprintf("side bit %d set beyond sibling count %d", extra, n),
		}
	}

	return sides, nil
}

func sideBytesLen(n int) int {
	return (n + 7) / 8
}

func uvarintSize(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}

func readInt(br io.ByteReader, what string) (int, error) {
	v, err := binary.ReadUvarint(br)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", what, eofToUnexpected(err))
	}
	if v > math.MaxInt {
		return 0, MalformedProofError{
			Reason: fmt.Sprintf("%s %d overflows int", what, v),
		}
	}
	return int(v), nil
}

func eofToUnexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

type byteReader struct {
	r io.Reader
}

func (b byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}
