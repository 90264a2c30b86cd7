package omstore

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

// Space files stage one forecast hour of one variable between download and
// transpose. The frame is split into location blocks so the transposer can
// pull a single chunk without decompressing the whole field.
//
// Layout: magic, cell count, block size, scalefactor, block count, offset
// table (block count + 1 entries, relative to the data area), blocks.
var spaceMagic = [4]byte{'F', 'P', 'G', '1'}

// SpaceFile is a read handle over a staged frame.
type SpaceFile struct {
	Path        string
	Cells       int
	BlockSize   int
	Scalefactor float64

	offsets []uint64
	dataPos int64
	codec   *Codec
}

// WriteSpaceFrame quantises and writes one frame as a standalone space file,
// overwriting any previous file at the path, and returns a read handle.
func WriteSpaceFrame(codec *Codec, path string, values []float64, scalefactor float64, blockSize int) (*SpaceFile, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("omstore: block size must be positive, got %d", blockSize)
	}
	nBlocks := (len(values) + blockSize - 1) / blockSize

	blocks := make([][]byte, nBlocks)
	offsets := make([]uint64, nBlocks+1)
	var pos uint64
	for b := 0; b < nBlocks; b++ {
		lo := b * blockSize
		hi := min(lo+blockSize, len(values))
		blocks[b] = codec.Compress(values[lo:hi], scalefactor)
		offsets[b] = pos
		pos += uint64(len(blocks[b]))
	}
	offsets[nBlocks] = pos

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("omstore: create space file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 4+4+4+8+4)
	copy(header, spaceMagic[:])
	binary.LittleEndian.PutUint32(header[4:], uint32(len(values)))
	binary.LittleEndian.PutUint32(header[8:], uint32(blockSize))
	binary.LittleEndian.PutUint64(header[12:], math.Float64bits(scalefactor))
	binary.LittleEndian.PutUint32(header[20:], uint32(nBlocks))
	if _, err := f.Write(header); err != nil {
		return nil, fmt.Errorf("omstore: write space header: %w", err)
	}
	offsetTable := make([]byte, 8*(nBlocks+1))
	for i, o := range offsets {
		binary.LittleEndian.PutUint64(offsetTable[i*8:], o)
	}
	if _, err := f.Write(offsetTable); err != nil {
		return nil, fmt.Errorf("omstore: write offset table: %w", err)
	}
	for _, b := range blocks {
		if _, err := f.Write(b); err != nil {
			return nil, fmt.Errorf("omstore: write block: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("omstore: close space file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("omstore: publish space file: %w", err)
	}

	return &SpaceFile{
		Path:        path,
		Cells:       len(values),
		BlockSize:   blockSize,
		Scalefactor: scalefactor,
		offsets:     offsets,
		dataPos:     int64(len(header) + len(offsetTable)),
		codec:       codec,
	}, nil
}

// OpenSpaceFile opens an existing space file and reads its directory.
func OpenSpaceFile(codec *Codec, path string) (*SpaceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, 24)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, fmt.Errorf("omstore: read space header %s: %w", path, err)
	}
	if [4]byte(header[:4]) != spaceMagic {
		return nil, fmt.Errorf("omstore: %s is not a space file", path)
	}
	cells := int(binary.LittleEndian.Uint32(header[4:]))
	blockSize := int(binary.LittleEndian.Uint32(header[8:]))
	scalefactor := math.Float64frombits(binary.LittleEndian.Uint64(header[12:]))
	nBlocks := int(binary.LittleEndian.Uint32(header[20:]))

	offsetTable := make([]byte, 8*(nBlocks+1))
	if _, err := io.ReadFull(f, offsetTable); err != nil {
		return nil, fmt.Errorf("omstore: read offset table %s: %w", path, err)
	}
	offsets := make([]uint64, nBlocks+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(offsetTable[i*8:])
	}

	return &SpaceFile{
		Path:        path,
		Cells:       cells,
		BlockSize:   blockSize,
		Scalefactor: scalefactor,
		offsets:     offsets,
		dataPos:     int64(24 + len(offsetTable)),
		codec:       codec,
	}, nil
}

// ReadBlock returns the decoded values of one location block.
func (s *SpaceFile) ReadBlock(block int) ([]float64, error) {
	if block < 0 || block >= len(s.offsets)-1 {
		return nil, fmt.Errorf("omstore: block %d out of range in %s", block, s.Path)
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size := s.offsets[block+1] - s.offsets[block]
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, s.dataPos+int64(s.offsets[block])); err != nil {
		return nil, fmt.Errorf("omstore: read block %d of %s: %w", block, s.Path, err)
	}

	count := s.BlockSize
	if lo := block * s.BlockSize; lo+count > s.Cells {
		count = s.Cells - lo
	}
	return s.codec.Decompress(buf, s.Scalefactor, count)
}

// ReadAll decodes the whole frame.
func (s *SpaceFile) ReadAll() ([]float64, error) {
	out := make([]float64, 0, s.Cells)
	for b := 0; b < len(s.offsets)-1; b++ {
		vals, err := s.ReadBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}
