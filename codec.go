package cfrstore

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Encoded record layout:
//
//	byte 0                 actionCount n (1..255)
//	[1, 1+4n)              RegretSum       little-endian float32
//	[1+4n, 1+8n)           StrategySum     little-endian float32
//	[1+8n, 1+12n)          AverageStrategy little-endian float32
//
// CurrentStrategy is derived from RegretSum and is never written.
const (
	recordHeaderSize = 1
	encodedArrays    = 3
)

// EncodedSize returns the length of an encoded record with n actions.
func EncodedSize(nActions int) int {
	return recordHeaderSize + encodedArrays*4*nActions
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (r *NodeRecord) MarshalBinary() ([]byte, error) {
	if !r.valid() {
		return nil, errors.Wrapf(ErrInvalidRecord, "n_actions=%d, len(strategy_sum)=%d, len(average_strategy)=%d",
			len(r.RegretSum), len(r.StrategySum), len(r.AverageStrategy))
	}

	n := r.NumActions()
	buf := make([]byte, EncodedSize(n))
	buf[0] = byte(n)
	ourBuf := buf[recordHeaderSize:]
	for _, v := range [encodedArrays][]float32{r.RegretSum, r.StrategySum, r.AverageStrategy} {
		putF32s(ourBuf, v)
		ourBuf = ourBuf[4*n:]
	}

	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
//
// It returns an error wrapping ErrCorruptRecord if buf is not exactly the size
// implied by its header. CurrentStrategy is recomputed from RegretSum.
func (r *NodeRecord) UnmarshalBinary(buf []byte) error {
	if len(buf) < recordHeaderSize {
		return errors.Wrap(ErrCorruptRecord, "empty buffer")
	}

	n := int(buf[0])
	if n == 0 {
		return errors.Wrap(ErrCorruptRecord, "zero actions")
	}

	if expected := EncodedSize(n); len(buf) != expected {
		return errors.Wrapf(ErrCorruptRecord, "n_actions=%d: got %d bytes, expected %d",
			n, len(buf), expected)
	}

	ourBuf := buf[recordHeaderSize:]
	r.RegretSum = getF32s(ourBuf[:4*n])
	r.StrategySum = getF32s(ourBuf[4*n : 8*n])
	r.AverageStrategy = getF32s(ourBuf[8*n : 12*n])
	r.CurrentStrategy = make([]float32, n)
	regretMatching(r.CurrentStrategy, r.RegretSum)
	return nil
}

// DecodeRecord decodes a record produced by MarshalBinary.
func DecodeRecord(buf []byte) (*NodeRecord, error) {
	var r NodeRecord
	if err := r.UnmarshalBinary(buf); err != nil {
		return nil, err
	}

	return &r, nil
}

func putF32s(buf []byte, v []float32) {
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
}

func getF32s(buf []byte) []float32 {
	result := make([]float32, len(buf)/4)
	for i := range result {
		bits := binary.LittleEndian.Uint32(buf[4*i:])
		result[i] = math.Float32frombits(bits)
	}

	return result
}
