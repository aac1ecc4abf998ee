package vector

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/hyperjump/kioku/pkg/utils"
)

const (
	flatMagic   = "KVIX"
	flatVersion = uint32(1)
	headerSize  = 4 + 4 + 4 + 8
)

// FlatIndex is an exact, brute-force inner product index held in memory.
type FlatIndex struct {
	dimensions int
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{
		dimensions: dimensions,
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends a copy of vec and returns its ordinal.
func (f *FlatIndex) Add(vec []float32) (int, error) {
	if len(vec) != f.dimensions {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimensionMismatch, len(vec), f.dimensions)
	}
	v := make([]float32, f.dimensions)
	copy(v, vec)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = append(f.vectors, v)
	return len(f.vectors) - 1, nil
}

// Search returns the top-k vectors by inner product. Equal scores keep ordinal order.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int, skip func(int) bool) ([]Hit, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query %w: got %d, expected %d", ErrDimensionMismatch, len(query), f.dimensions)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.vectors) == 0 {
		return nil, nil
	}
	hits := make([]Hit, 0, len(f.vectors))
	for i, vec := range f.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if skip != nil && skip(i) {
			continue
		}
		hits = append(hits, Hit{Ordinal: i, Score: InnerProduct(query, vec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Vector returns a copy of the vector at ordinal.
func (f *FlatIndex) Vector(ordinal int) ([]float32, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if ordinal < 0 || ordinal >= len(f.vectors) {
		return nil, false
	}
	return append([]float32(nil), f.vectors[ordinal]...), true
}

// Count returns the number of vectors in the index, including superseded ones.
func (f *FlatIndex) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

// Dimensions returns the vector dimension.
func (f *FlatIndex) Dimensions() int {
	return f.dimensions
}

// Reset drops every vector.
func (f *FlatIndex) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors = make([][]float32, 0)
}

// MarshalBinary encodes the index. Format (little endian): magic "KVIX", version (4),
// dimension (4), count (8), then count*dimension float32 values.
func (f *FlatIndex) MarshalBinary() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(f.vectors)*f.dimensions*4))
	buf.WriteString(flatMagic)
	_ = binary.Write(buf, binary.LittleEndian, flatVersion)
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.dimensions))
	_ = binary.Write(buf, binary.LittleEndian, uint64(len(f.vectors)))
	for _, v := range f.vectors {
		buf.Write(float32SliceToBytes(v))
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary replaces the index contents with data. The encoded dimension must match.
func (f *FlatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < headerSize || string(data[:4]) != flatMagic {
		return fmt.Errorf("not a vector index blob")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != flatVersion {
		return fmt.Errorf("unsupported index version %d", version)
	}
	dim := int(binary.LittleEndian.Uint32(data[8:12]))
	if dim != f.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, f.dimensions)
	}
	n := binary.LittleEndian.Uint64(data[12:20])
	body := data[headerSize:]
	stride := dim * 4
	if uint64(len(body)) != n*uint64(stride) {
		return fmt.Errorf("truncated index: %d bytes for %d vectors", len(body), n)
	}
	vectors := make([][]float32, 0, n)
	for i := 0; i < int(n); i++ {
		vectors = append(vectors, bytesToFloat32Slice(body[i*stride:(i+1)*stride]))
	}
	f.mu.Lock()
	f.vectors = vectors
	f.mu.Unlock()
	return nil
}

// Save writes the index to path through a temporary file and rename. The directory
// is created if needed.
func (f *FlatIndex) Save(path string) error {
	data, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	return utils.WriteFileAtomic(path, data, 0644)
}

// Load reads the index from path and replaces the in-memory contents.
// If the file does not exist, no error is returned and the index is unchanged.
func (f *FlatIndex) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index file: %w", err)
	}
	return f.UnmarshalBinary(data)
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
