package cfrstore

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomRecord(rng *rand.Rand, n int) *NodeRecord {
	r := NewNodeRecord(n)
	regrets := make([]float32, n)
	for i := range regrets {
		regrets[i] = rng.Float32()*2 - 1
	}

	r.AddRegret(regrets)
	r.UpdateStrategy()
	r.AddStrategyWeight(rng.Float32())
	r.UpdateStrategy()
	return r
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for n := 1; n <= MaxActions; n++ {
		r := randomRecord(rng, n)
		buf, err := r.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, buf, EncodedSize(n))
		assert.Equal(t, byte(n), buf[0])

		decoded, err := DecodeRecord(buf)
		require.NoError(t, err)
		assert.Equal(t, r, decoded, "n=%d", n)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	r := randomRecord(rand.New(rand.NewSource(1)), 7)
	buf1, err := r.MarshalBinary()
	require.NoError(t, err)
	buf2, err := r.Clone().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, buf1, buf2)
}

func TestEncodedLayout(t *testing.T) {
	r := &NodeRecord{
		RegretSum:       []float32{1},
		CurrentStrategy: []float32{1},
		StrategySum:     []float32{2},
		AverageStrategy: []float32{1},
	}

	buf, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		1,
		0x00, 0x00, 0x80, 0x3f, // 1.0
		0x00, 0x00, 0x00, 0x40, // 2.0
		0x00, 0x00, 0x80, 0x3f, // 1.0
	}, buf)
}

func TestDecodeRecomputesCurrentStrategy(t *testing.T) {
	r := NewNodeRecord(2)
	r.AddRegret([]float32{3, 1})
	// CurrentStrategy is stale: UpdateStrategy has not been called.
	buf, err := r.MarshalBinary()
	require.NoError(t, err)

	decoded, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.75, 0.25}, decoded.CurrentStrategy)
}

func TestDecodeCorrupt(t *testing.T) {
	good, err := NewNodeRecord(3).MarshalBinary()
	require.NoError(t, err)

	testCases := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"zero actions", []byte{0}},
		{"truncated", good[:len(good)-1]},
		{"extra byte", append(append([]byte{}, good...), 0)},
		{"header only", good[:1]},
		{"wrong header", append([]byte{4}, good[1:]...)},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeRecord(tc.buf)
			assert.True(t, errors.Is(err, ErrCorruptRecord), "err=%v", err)
		})
	}
}

func TestEncodeInvalid(t *testing.T) {
	testCases := []struct {
		name string
		rec  *NodeRecord
	}{
		{"empty", &NodeRecord{}},
		{"mismatched", &NodeRecord{
			RegretSum:       []float32{1, 2},
			StrategySum:     []float32{1},
			AverageStrategy: []float32{1, 2},
		}},
		{"too many actions", &NodeRecord{
			RegretSum:       make([]float32, MaxActions+1),
			StrategySum:     make([]float32, MaxActions+1),
			AverageStrategy: make([]float32, MaxActions+1),
		}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.rec.MarshalBinary()
			assert.True(t, errors.Is(err, ErrInvalidRecord), "err=%v", err)
		})
	}
}

func TestSpecialValuesRoundTrip(t *testing.T) {
	inf := float32(math.Inf(1))
	r := &NodeRecord{
		RegretSum:       []float32{inf, -0.5, 1e-30},
		CurrentStrategy: make([]float32, 3),
		StrategySum:     []float32{0, 1, 2},
		AverageStrategy: []float32{0, 1.0 / 3, 2.0 / 3},
	}

	buf, err := r.MarshalBinary()
	require.NoError(t, err)
	decoded, err := DecodeRecord(buf)
	require.NoError(t, err)
	assert.Equal(t, r.RegretSum, decoded.RegretSum)
	assert.Equal(t, r.StrategySum, decoded.StrategySum)
	assert.Equal(t, r.AverageStrategy, decoded.AverageStrategy)
}
