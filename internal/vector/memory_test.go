package vector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryIndex_ReplaceSearch(t *testing.T) {
	idx, err := NewMemoryIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	vecs := [][]float32{
		{1, 0, 0},
		{0.9, 0.1, 0},
		{0, 1, 0},
	}
	ids := []string{"a", "b", "c"}
	if err := idx.Replace(ctx, ids, vecs, ""); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "a" {
		t.Errorf("top result should be a, got %s", results[0].ID)
	}
	if math.Abs(results[0].Score-1) > 1e-6 {
		t.Errorf("identical vectors should score 1, got %f", results[0].Score)
	}
}

func TestMemoryIndex_ReplaceDropsStale(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Replace(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {1, 1}}, "one")
	_ = idx.Replace(ctx, []string{"x"}, [][]float32{{0, 1}}, "two")
	if idx.Size() != 1 {
		t.Fatalf("expected size 1, got %d", idx.Size())
	}
	if idx.Fingerprint() != "two" {
		t.Errorf("fingerprint %q", idx.Fingerprint())
	}
	res, _ := idx.Search(ctx, []float32{0, 1}, 1)
	if res[0].Score < 0.999 {
		t.Errorf("vector not replaced, score %f", res[0].Score)
	}
}

func TestMemoryIndex_SearchOrdering(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	err := idx.Replace(ctx,
		[]string{"d", "b", "a", "c"},
		[][]float32{{-1, 0}, {0, 1}, {0, 2}, {1, 0}},
		"fp")
	if err != nil {
		t.Fatal(err)
	}
	res, err := idx.Search(ctx, []float32{1, 1}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 4 {
		t.Fatalf("top_k above size should return all, got %d", len(res))
	}
	// a and b tie (same direction); ascending id breaks the tie.
	want := []string{"a", "b", "c", "d"}
	for i, r := range res {
		if r.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, r.ID, want[i])
		}
		if i > 0 && r.Score > res[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
	if res[3].Score >= 0 {
		t.Errorf("opposite vector should score negative, got %f", res[3].Score)
	}
	if idx.Fingerprint() != "fp" {
		t.Errorf("fingerprint = %q", idx.Fingerprint())
	}
}

func TestMemoryIndex_SearchEmpty(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	res, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Errorf("expected no results, got %d", len(res))
	}
	if _, err := idx.Search(context.Background(), []float32{1}, 5); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestMemoryIndex_Remove(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Replace(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}}, "fp")
	if err := idx.Remove(ctx, []string{"x"}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	if idx.Fingerprint() != "" {
		t.Error("remove should clear the fingerprint")
	}
	res, _ := idx.Search(ctx, []float32{1, 0}, 5)
	if len(res) != 1 || res[0].ID != "y" {
		t.Errorf("removed id still searchable: %+v", res)
	}
}

func TestMemoryIndex_ReplaceRejectsBadInput(t *testing.T) {
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Replace(ctx, []string{"keep"}, [][]float32{{1, 0}}, "old")
	if err := idx.Replace(ctx, []string{"a", "a"}, [][]float32{{1, 0}, {0, 1}}, "new"); err == nil {
		t.Error("expected duplicate id error")
	}
	if err := idx.Replace(ctx, []string{"a"}, [][]float32{{1, 0, 0}}, "new"); err == nil {
		t.Error("expected dimension error")
	}
	if idx.Size() != 1 || idx.Fingerprint() != "old" {
		t.Error("failed replace must leave the table unchanged")
	}
}

func TestMemoryIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "search.idx")
	idx, _ := NewMemoryIndex(2)
	ctx := context.Background()
	_ = idx.Replace(ctx, []string{"x", "y"}, [][]float32{{1, 0}, {0, 1}}, "abc123")
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewMemoryIndex(2)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 || loaded.Fingerprint() != "abc123" {
		t.Errorf("loaded size=%d fingerprint=%q", loaded.Size(), loaded.Fingerprint())
	}
	res, _ := loaded.Search(ctx, []float32{0, 1}, 1)
	if res[0].ID != "y" {
		t.Errorf("top result = %s, want y", res[0].ID)
	}

	wrongDim, _ := NewMemoryIndex(3)
	if err := wrongDim.Load(path); err == nil {
		t.Error("expected dimension mismatch on load")
	}
	missing, _ := NewMemoryIndex(2)
	if err := missing.Load(filepath.Join(t.TempDir(), "none.idx")); err != nil {
		t.Errorf("missing file should not error: %v", err)
	}
	corrupt := filepath.Join(t.TempDir(), "bad.idx")
	_ = os.WriteFile(corrupt, []byte{2, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}, 0600)
	if err := missing.Load(corrupt); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{3, -1, 0.5}
	if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
		t.Error("cosine should be symmetric")
	}
	if s := CosineSimilarity(a, a); math.Abs(s-1) > 1e-6 {
		t.Errorf("cos(a,a) = %f", s)
	}
	if s := CosineSimilarity(a, []float32{-1, -2, -3}); math.Abs(s+1) > 1e-6 {
		t.Errorf("cos(a,-a) = %f", s)
	}
	if CosineSimilarity(a, []float32{0, 0, 0}) != 0 {
		t.Error("zero vector should give 0")
	}
}
