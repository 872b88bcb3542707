// Package mtbitset encodes fixed-length bitsets
// whose length both ends already agree on.
//
// Each encoded bitset starts with a one-byte header.
// A raw bitset follows the header with its little endian words.
// A snappy bitset follows the header with a big endian uint16 length
// and that many bytes of snappy-compressed words.
// The [Encoder] picks whichever form is shorter.
package mtbitset

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/golang/snappy"
)

const (
	rawEncoding    byte = 0
	snappyEncoding byte = 1
)

// Encoder writes bitsets.
// The zero value is ready to use.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	// Header byte followed by the bitset's words.
	wordBuf []byte

	// Header byte, uint16 length, and the snappy-encoded words.
	encBuf []byte
}

// Encode writes bs to w in whichever form is shorter.
func (e *Encoder) Encode(w io.Writer, bs *bitset.BitSet) error {
	words := bs.Words()
	nBytes := 8 * len(words)

	if cap(e.wordBuf) < 1+nBytes {
		e.wordBuf = make([]byte, 1+nBytes)
	} else {
		e.wordBuf = e.wordBuf[:1+nBytes]
	}
	e.wordBuf[0] = rawEncoding
	for i, w := range words {
		// Little endian is more likely to match the machine's word layout.
		binary.LittleEndian.PutUint64(e.wordBuf[1+i*8:], w)
	}

	maxEnc := 3 + snappy.MaxEncodedLen(nBytes)
	if cap(e.encBuf) < maxEnc {
		e.encBuf = make([]byte, maxEnc)
	} else {
		e.encBuf = e.encBuf[:maxEnc]
	}
	e.encBuf[0] = snappyEncoding

	res := snappy.Encode(e.encBuf[3:], e.wordBuf[1:])

	out := e.wordBuf
	if len(res) <= math.MaxUint16 && 3+len(res) < len(e.wordBuf) {
		binary.BigEndian.PutUint16(e.encBuf[1:], uint16(len(res)))
		out = e.encBuf[:3+len(res)]
	}

	if _, err := w.Write(out); err != nil {
		return fmt.Errorf("failed to write bitset: %w", err)
	}
	return nil
}

// Decoder reads bitsets written by an [Encoder].
// The zero value is ready to use.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	encBuf  []byte
	wordBuf []byte
}

// Decode reads one bitset from r into bs.
// The length of bs must match the length of the encoded bitset.
//
// Bits past the length of bs must be zero;
// otherwise Decode returns an error and the contents of bs are unspecified.
func (d *Decoder) Decode(r io.Reader, bs *bitset.BitSet) error {
	var h [1]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return fmt.Errorf("failed to read bitset header: %w", err)
	}

	words := bs.Words()
	nBytes := 8 * len(words)

	switch h[0] {
	case rawEncoding:
		if cap(d.wordBuf) < nBytes {
			d.wordBuf = make([]byte, nBytes)
		} else {
			d.wordBuf = d.wordBuf[:nBytes]
		}
		if _, err := io.ReadFull(r, d.wordBuf); err != nil {
			return fmt.Errorf("failed to read raw bitset: %w", err)
		}

	case snappyEncoding:
		if err := d.readSnappy(r, nBytes); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown bitset header byte 0x%x", h[0])
	}

	for i := range words {
		words[i] = binary.LittleEndian.Uint64(d.wordBuf[i*8:])
	}

	if rem := bs.Len() % 64; rem != 0 && words[len(words)-1]>>rem != 0 {
		return fmt.Errorf("bitset has bits set past length %d", bs.Len())
	}

	return nil
}

func (d *Decoder) readSnappy(r io.Reader, nBytes int) error {
	var szBuf [2]byte
	if _, err := io.ReadFull(r, szBuf[:]); err != nil {
		return fmt.Errorf("failed to read snappy bitset length: %w", err)
	}

	encSz := int(binary.BigEndian.Uint16(szBuf[:]))
	if encSz > snappy.MaxEncodedLen(nBytes) {
		return fmt.Errorf(
			"snappy bitset length %d exceeds maximum %d for %d bytes",
			encSz, snappy.MaxEncodedLen(nBytes), nBytes,
		)
	}

	if cap(d.encBuf) < encSz {
		d.encBuf = make([]byte, encSz)
	} else {
		d.encBuf = d.encBuf[:encSz]
	}
	if _, err := io.ReadFull(r, d.encBuf); err != nil {
		return fmt.Errorf("failed to read snappy-encoded bitset: %w", err)
	}

	decSz, err := snappy.DecodedLen(d.encBuf)
	if err != nil {
		return fmt.Errorf(
			"failed to calculate snappy-decoded bitset length: %w", err,
		)
	}
	if decSz != nBytes {
		return fmt.Errorf(
			"calculated decoded size of %d bytes but expected %d",
			decSz, nBytes,
		)
	}

	wb, err := snappy.Decode(d.wordBuf[:cap(d.wordBuf)], d.encBuf)
	if err != nil {
		return fmt.Errorf("failed to decode snappy bitset: %w", err)
	}

	// wb could have been nil on error;
	// that's why we used the temporary variable.
	d.wordBuf = wb
	return nil
}
