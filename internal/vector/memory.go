package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var _ Index = (*MemoryIndex)(nil)

// MemoryIndex is an in-memory embedding table searched by brute-force cosine similarity.
type MemoryIndex struct {
	dimensions  int
	ids         []string
	vectors     [][]float32
	norms       []float64
	fingerprint string
	mu          sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{dimensions: dimensions}, nil
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Replace swaps the whole table for ids/vectors. The new table is built before the
// lock is taken, so concurrent searches see either the old or the new table.
func (m *MemoryIndex) Replace(ctx context.Context, ids []string, vectors [][]float32, fingerprint string) error {
	newIDs, newVectors, newNorms, err := m.build(ctx, ids, vectors)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids, m.vectors, m.norms = newIDs, newVectors, newNorms
	m.fingerprint = fingerprint
	return nil
}

func (m *MemoryIndex) build(ctx context.Context, ids []string, vectors [][]float32) ([]string, [][]float32, []float64, error) {
	if len(ids) != len(vectors) {
		return nil, nil, nil, fmt.Errorf("ids and vectors length mismatch")
	}
	outIDs := make([]string, len(ids))
	outVecs := make([][]float32, len(ids))
	norms := make([]float64, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		if len(vectors[i]) != m.dimensions {
			return nil, nil, nil, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), m.dimensions)
		}
		if _, dup := seen[id]; dup {
			return nil, nil, nil, fmt.Errorf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		outIDs[i], outVecs[i], norms[i] = id, vec, L2Norm(vec)
	}
	return outIDs, outVecs, norms, nil
}

// Search returns the k most similar vectors by cosine similarity, highest first.
// Equal scores are ordered by ascending id. k larger than the table returns every entry.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.ids) == 0 {
		return []*Result{}, nil
	}
	qn := L2Norm(query)
	scores := make([]*Result, len(m.ids))
	for i, vec := range m.vectors {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var s float64
		if qn > 0 && m.norms[i] > 0 {
			s = clamp(InnerProduct(query, vec) / (qn * m.norms[i]))
		}
		scores[i] = &Result{ID: m.ids[i], Score: s}
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Remove deletes vectors by ID by rebuilding the slices without them.
func (m *MemoryIndex) Remove(ctx context.Context, ids []string) error {
	removeSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newIDs := make([]string, 0, len(m.ids))
	newVectors := make([][]float32, 0, len(m.vectors))
	newNorms := make([]float64, 0, len(m.norms))
	for i, id := range m.ids {
		if !removeSet[id] {
			newIDs = append(newIDs, id)
			newVectors = append(newVectors, m.vectors[i])
			newNorms = append(newNorms, m.norms[i])
		}
	}
	if len(newIDs) != len(m.ids) {
		m.fingerprint = ""
	}
	m.ids, m.vectors, m.norms = newIDs, newVectors, newNorms
	return nil
}

// Fingerprint identifies the corpus state the table was built from; empty after Add or Remove.
func (m *MemoryIndex) Fingerprint() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fingerprint
}

// Save persists the index to path atomically. Format, little endian: dimension (4),
// fingerprint length (4) and bytes, n (4), then per vector: idLen (4), id bytes, vector (dimension*4 bytes).
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".index-*")
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer os.Remove(f.Name())
	w := bufio.NewWriter(f)
	writeErr := func() error {
		if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
			return fmt.Errorf("write dimensions: %w", err)
		}
		if err := writeString(w, m.fingerprint); err != nil {
			return fmt.Errorf("write fingerprint: %w", err)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
			return fmt.Errorf("write count: %w", err)
		}
		for i, id := range m.ids {
			if err := writeString(w, id); err != nil {
				return fmt.Errorf("write id: %w", err)
			}
			if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
				return fmt.Errorf("write vector: %w", err)
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		return writeErr
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("install index file: %w", err)
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	fingerprint, err := readString(r)
	if err != nil {
		return fmt.Errorf("read fingerprint: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	return m.Replace(context.Background(), ids, vectors, fingerprint)
}

const maxStringLen = 1 << 20

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", errors.New("string length out of range")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
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

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
