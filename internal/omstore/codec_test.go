package omstore

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)

	t.Run("quantisation error is bounded by the scalefactor", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		values := make([]float64, 1000)
		for i := range values {
			values[i] = rng.Float64()*100 - 50
		}

		for _, scalefactor := range []float64{1, 10, 20, 100} {
			block := codec.Compress(values, scalefactor)
			got, err := codec.Decompress(block, scalefactor, len(values))
			require.NoError(t, err)
			for i := range values {
				assert.LessOrEqual(t, math.Abs(got[i]-values[i]), 0.5/scalefactor+1e-9,
					"scalefactor %v cell %d", scalefactor, i)
			}
		}
	})

	t.Run("NaN survives", func(t *testing.T) {
		values := []float64{1.5, math.NaN(), -3.25, math.NaN(), 0}
		block := codec.Compress(values, 10)
		got, err := codec.Decompress(block, 10, len(values))
		require.NoError(t, err)

		assert.InDelta(t, 1.5, got[0], 0.05)
		assert.True(t, math.IsNaN(got[1]))
		assert.InDelta(t, -3.25, got[2], 0.05)
		assert.True(t, math.IsNaN(got[3]))
		assert.Equal(t, 0.0, got[4])
	})

	t.Run("deterministic output", func(t *testing.T) {
		values := []float64{5, 6, 7, 8}
		assert.Equal(t, codec.Compress(values, 20), codec.Compress(values, 20))
	})

	t.Run("wrong count rejected", func(t *testing.T) {
		block := codec.Compress([]float64{1, 2, 3}, 1)
		_, err := codec.Decompress(block, 1, 5)
		assert.Error(t, err)
	})
}
