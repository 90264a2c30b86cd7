package gribidx

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// SimplePackingDecoder unpacks GRIB2 messages that use data representation
// template 5.0 (simple packing), which covers the products this service
// requests via pgrb2/sflux index files. Messages with a bitmap (section 6
// indicator 0) decode masked cells as NaN.
type SimplePackingDecoder struct{}

type packing struct {
	reference    float64
	binaryScale  float64
	decimalScale float64
	bits         int
	nPoints      int
}

// Decode implements Decoder.
func (SimplePackingDecoder) Decode(data []byte, ny, nx int) (*sparse.DenseArray, error) {
	if len(data) < 16 || string(data[:4]) != "GRIB" {
		return nil, fmt.Errorf("gribidx: not a GRIB2 message")
	}
	if data[7] != 2 {
		return nil, fmt.Errorf("gribidx: unsupported GRIB edition %d", data[7])
	}

	var (
		pack   *packing
		bitmap []byte
		values []float64
	)

	pos := 16
	for pos+5 <= len(data) {
		if string(data[pos:pos+4]) == "7777" {
			break
		}
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		if length < 5 || pos+length > len(data) {
			return nil, fmt.Errorf("gribidx: corrupt section at offset %d", pos)
		}
		section := data[pos+4]
		body := data[pos : pos+length]

		switch section {
		case 5:
			p, err := parseSection5(body)
			if err != nil {
				return nil, err
			}
			pack = p
		case 6:
			indicator := body[5]
			switch indicator {
			case 255:
				bitmap = nil
			case 0:
				bitmap = body[6:]
			default:
				return nil, fmt.Errorf("gribidx: unsupported bitmap indicator %d", indicator)
			}
		case 7:
			if pack == nil {
				return nil, fmt.Errorf("gribidx: data section before representation section")
			}
			if bitmap == nil && pack.nPoints != ny*nx {
				return nil, fmt.Errorf("gribidx: message packs %d points, grid wants %d", pack.nPoints, ny*nx)
			}
			values = unpackSimple(body[5:], pack, bitmap, ny*nx)
		}
		pos += length
	}

	if values == nil {
		return nil, fmt.Errorf("gribidx: message has no data section")
	}
	if len(values) != ny*nx {
		return nil, fmt.Errorf("gribidx: decoded %d points, grid wants %d", len(values), ny*nx)
	}

	frame := sparse.ZerosDense(ny, nx)
	copy(frame.Elements, values)
	return frame, nil
}

func parseSection5(body []byte) (*packing, error) {
	if len(body) < 21 {
		return nil, fmt.Errorf("gribidx: short representation section")
	}
	template := binary.BigEndian.Uint16(body[9:11])
	if template != 0 {
		return nil, fmt.Errorf("gribidx: unsupported packing template 5.%d", template)
	}
	return &packing{
		nPoints:      int(binary.BigEndian.Uint32(body[5:9])),
		reference:    float64(math.Float32frombits(binary.BigEndian.Uint32(body[11:15]))),
		binaryScale:  math.Pow(2, float64(int16FromGrib(body[15:17]))),
		decimalScale: math.Pow(10, float64(int16FromGrib(body[17:19]))),
		bits:         int(body[19]),
	}, nil
}

// int16FromGrib decodes GRIB's sign-and-magnitude 16-bit integers.
func int16FromGrib(b []byte) int {
	v := int(binary.BigEndian.Uint16(b))
	if v&0x8000 != 0 {
		return -(v & 0x7fff)
	}
	return v
}

func unpackSimple(packed []byte, p *packing, bitmap []byte, total int) []float64 {
	out := make([]float64, total)

	present := func(i int) bool {
		if bitmap == nil {
			return true
		}
		byteIdx := i / 8
		if byteIdx >= len(bitmap) {
			return false
		}
		return bitmap[byteIdx]&(1<<(7-uint(i%8))) != 0
	}

	if p.bits == 0 {
		// Constant field: every present cell holds the reference value.
		for i := 0; i < total; i++ {
			if present(i) {
				out[i] = p.reference / p.decimalScale
			} else {
				out[i] = math.NaN()
			}
		}
		return out
	}

	bitPos := 0
	for i := 0; i < total; i++ {
		if !present(i) {
			out[i] = math.NaN()
			continue
		}
		if bitPos+p.bits > len(packed)*8 {
			out[i] = math.NaN()
			continue
		}
		var raw uint64
		for b := 0; b < p.bits; b++ {
			raw <<= 1
			if packed[bitPos/8]&(1<<(7-uint(bitPos%8))) != 0 {
				raw |= 1
			}
			bitPos++
		}
		out[i] = (p.reference + float64(raw)*p.binaryScale) / p.decimalScale
	}
	return out
}
