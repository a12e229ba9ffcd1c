package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
)

const (
	flatMagic   = "RKBF"
	flatVersion = uint32(1)
	// magic + version + dimension + count
	flatHeaderSize = 4 + 4 + 4 + 4
)

// ErrCorruptIndex is returned by Load when the blob cannot be parsed.
var ErrCorruptIndex = errors.New("corrupt index file")

// FlatIndex is an exact brute-force inner product index held in memory.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty flat index with the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Type returns the index type identifier.
func (f *FlatIndex) Type() string {
	return string(IndexTypeFlat)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Add appends vectors in order. Either all vectors are added or none.
func (f *FlatIndex) Add(ctx context.Context, vectors [][]float32) error {
	for i, vec := range vectors {
		if len(vec) != f.dimensions {
			return fmt.Errorf("vector %d dimension mismatch: got %d, expected %d", i, len(vec), f.dimensions)
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, vec := range vectors {
		v := make([]float32, f.dimensions)
		copy(v, vec)
		f.vectors = append(f.vectors, v)
	}
	return nil
}

// Search returns the top-k offsets by inner product, highest first. Equal scores keep offset order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, len(f.vectors))
	for i, vec := range f.vectors {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		hits[i] = Hit{Offset: i, Score: InnerProduct(query, vec)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Reset drops all vectors.
func (f *FlatIndex) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = make([][]float32, 0)
	return nil
}

// Save atomically writes the index to path. Format (little endian): magic "RKBF", version (4),
// dimension (4), count (4), then count*dimension float32 values.
func (f *FlatIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	f.mu.RLock()
	buf := make([]byte, flatHeaderSize, flatHeaderSize+len(f.vectors)*f.dimensions*4)
	copy(buf[0:4], flatMagic)
	binary.LittleEndian.PutUint32(buf[4:8], flatVersion)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(f.dimensions))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(f.vectors)))
	for _, vec := range f.vectors {
		buf = append(buf, float32SliceToBytes(vec)...)
	}
	f.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := renameio.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	return nil
}

// Load replaces the in-memory contents with the blob at path. The dimension must match.
// A missing file returns an error satisfying errors.Is(err, os.ErrNotExist).
func (f *FlatIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) < flatHeaderSize || !bytes.Equal(data[0:4], []byte(flatMagic)) {
		return fmt.Errorf("%w: bad header", ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != flatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptIndex, v)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim != f.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, f.dimensions)
	}
	n := int(binary.LittleEndian.Uint32(data[12:16]))
	body := data[flatHeaderSize:]
	if len(body) != n*dim*4 {
		return fmt.Errorf("%w: expected %d vectors of %d floats, got %d bytes", ErrCorruptIndex, n, dim, len(body))
	}
	vectors := make([][]float32, n)
	stride := dim * 4
	for i := 0; i < n; i++ {
		vectors[i] = bytesToFloat32Slice(body[i*stride : (i+1)*stride])
	}
	f.mu.Lock()
	f.vectors = vectors
	f.mu.Unlock()
	return nil
}

// Size returns the number of vectors in the index.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
