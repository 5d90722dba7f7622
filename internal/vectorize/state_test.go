package vectorize

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunrui/internal/embedding"
)

func TestState_TFIDFRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "models", "vectorizer.json")
	var empty *Fitting
	require.Error(t, empty.Save(path, 1), "nothing fitted, nothing to save")

	v := NewTFIDF(DefaultTFIDFOptions())
	f, err := v.Fit(ctx, corpus)
	require.NoError(t, err)
	require.NoError(t, f.Save(path, 42))
	assert.False(t, v.Fitted(), "saving must not install")
	f.Install()
	want, err := v.Transform(ctx, "apple engine")
	require.NoError(t, err)

	restored := NewTFIDF(DefaultTFIDFOptions())
	gen, err := LoadState(path, restored)
	require.NoError(t, err)
	assert.Equal(t, int64(42), gen)
	got, err := restored.Transform(ctx, "apple engine")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, v.Vocabulary(), restored.Vocabulary())
}

func TestState_StrategyMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectorizer.json")
	d := NewDense(embedding.NewHashEmbedder(16))
	f, err := d.Fit(ctx, corpus)
	require.NoError(t, err)
	require.NoError(t, f.Save(path, 3))

	_, err = LoadState(path, NewTFIDF(DefaultTFIDFOptions()))
	require.Error(t, err)

	restored := NewDense(embedding.NewHashEmbedder(16))
	gen, err := LoadState(path, restored)
	require.NoError(t, err)
	assert.Equal(t, int64(3), gen)
	assert.True(t, restored.Fitted())
}

func TestReset_DropsModel(t *testing.T) {
	ctx := context.Background()
	v := NewTFIDF(DefaultTFIDFOptions())
	_, err := v.FitTransform(ctx, corpus)
	require.NoError(t, err)
	v.Reset()
	assert.False(t, v.Fitted())
	_, err = v.Transform(ctx, "apple")
	assert.Error(t, err)
}
