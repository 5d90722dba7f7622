package cluster

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

var modelMagic = [4]byte{'B', 'K', 'M', '2'}

// SaveModel writes m to path atomically (temp file + rename). Format, little endian:
// magic (4), k (4), dims (4), iterations (4), inertia (8), fitted unix nanos (8),
// generation (8), then k*dims float64 centroid values.
func SaveModel(path string, m *Model) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".kmeans-*")
	if err != nil {
		return fmt.Errorf("create model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	header := []any{
		modelMagic,
		uint32(m.K()),
		uint32(m.Dimensions()),
		uint32(m.Iterations),
		m.Inertia,
		m.FittedAt.UnixNano(),
		m.Generation,
	}
	for _, field := range header {
		if err := binary.Write(w, binary.LittleEndian, field); err != nil {
			tmp.Close()
			return fmt.Errorf("write model header: %w", err)
		}
	}
	for _, c := range m.Centroids {
		if err := binary.Write(w, binary.LittleEndian, c); err != nil {
			tmp.Close()
			return fmt.Errorf("write centroid: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("install model file: %w", err)
	}
	return nil
}

// LoadModel reads a model written by SaveModel.
func LoadModel(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != modelMagic {
		return nil, errors.New("not a cluster model file")
	}
	var k, dims, iterations uint32
	var inertia float64
	var fitted, generation int64
	for _, field := range []any{&k, &dims, &iterations, &inertia, &fitted, &generation} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return nil, fmt.Errorf("read model header: %w", err)
		}
	}
	if k == 0 || dims == 0 {
		return nil, fmt.Errorf("invalid model shape %dx%d", k, dims)
	}
	m := &Model{
		Centroids:  make([][]float64, k),
		Inertia:    inertia,
		Iterations: int(iterations),
		FittedAt:   time.Unix(0, fitted).UTC(),
		Generation: generation,
	}
	for c := range m.Centroids {
		m.Centroids[c] = make([]float64, dims)
		if err := binary.Read(r, binary.LittleEndian, m.Centroids[c]); err != nil {
			return nil, fmt.Errorf("read centroid %d: %w", c, err)
		}
	}
	if _, err := r.ReadByte(); err != io.EOF {
		return nil, errors.New("trailing data after model")
	}
	return m, nil
}

// RemoveModel deletes the persisted model; a missing file is not an error.
func RemoveModel(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove model file: %w", err)
	}
	return nil
}
