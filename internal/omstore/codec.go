// Package omstore persists forecast fields in two shapes: per-hour space
// files written during download, and a chunked, time-oriented column store
// the transposer folds those files into. Values are quantised by each
// variable's scalefactor and compressed per chunk, so any chunk can be read
// back without touching its neighbours.
package omstore

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// nanSentinel encodes NaN cells inside the quantised integer stream.
const nanSentinel = math.MinInt32

// Codec quantises float frames by a scalefactor, delta-encodes the integers,
// and compresses them with zstd. Safe for concurrent use.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewCodec creates a shared codec instance.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("omstore: create encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("omstore: create decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Compress quantises values with the scalefactor and returns one compressed
// block. NaN survives the round trip.
func (c *Codec) Compress(values []float64, scalefactor float64) []byte {
	buf := make([]byte, len(values)*4)
	var prev int32
	for i, v := range values {
		var q int32
		if math.IsNaN(v) {
			q = nanSentinel
		} else {
			q = int32(math.Round(v * scalefactor))
		}
		// Delta against the previous quantised value keeps smooth fields
		// near zero, which compresses far better than raw magnitudes.
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(q-prev))
		if q != nanSentinel {
			prev = q
		}
	}
	return c.enc.EncodeAll(buf, nil)
}

// Decompress reverses Compress. The expected element count must be supplied
// because blocks do not carry their own length.
func (c *Codec) Decompress(block []byte, scalefactor float64, count int) ([]float64, error) {
	buf, err := c.dec.DecodeAll(block, make([]byte, 0, count*4))
	if err != nil {
		return nil, fmt.Errorf("omstore: decompress block: %w", err)
	}
	if len(buf) != count*4 {
		return nil, fmt.Errorf("omstore: block holds %d values, expected %d", len(buf)/4, count)
	}
	out := make([]float64, count)
	var prev int32
	for i := range out {
		delta := int32(binary.LittleEndian.Uint32(buf[i*4:]))
		q := prev + delta
		if q == nanSentinel {
			out[i] = math.NaN()
			continue
		}
		out[i] = float64(q) / scalefactor
		prev = q
	}
	return out, nil
}
