package vectorize

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunrui/internal/models"
)

var corpus = []string{
	"apple banana fruit",
	"car engine wheel",
	"apple fruit salad fruit",
}

func TestTFIDF_FitTransform(t *testing.T) {
	v := NewTFIDF(DefaultTFIDFOptions())
	vecs, err := v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	vocab := v.Vocabulary()
	assert.Equal(t, []string{"apple", "banana", "car", "engine", "fruit", "salad", "wheel"}, vocab)
	for _, vec := range vecs {
		assert.Len(t, vec, len(vocab))
		var sum float64
		for _, x := range vec {
			sum += x * x
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}

	// "fruit" appears twice in doc 2 and in 2 of 3 documents: idf = ln(4/3)+1.
	idx := map[string]int{}
	for i, term := range vocab {
		idx[term] = i
	}
	idfFruit := math.Log(4.0/3.0) + 1
	idfSalad := math.Log(4.0/2.0) + 1
	ratio := vecs[2][idx["fruit"]] / vecs[2][idx["salad"]]
	assert.InDelta(t, 2*idfFruit/idfSalad, ratio, 1e-9)
	assert.Zero(t, vecs[1][idx["apple"]])
}

func TestTFIDF_Deterministic(t *testing.T) {
	v := NewTFIDF(DefaultTFIDFOptions())
	a, err := v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	b, err := v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestTFIDF_DocumentFrequencyBounds(t *testing.T) {
	v := NewTFIDF(TFIDFOptions{MinDF: 2, MaxDF: 1.0})
	_, err := v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "fruit"}, v.Vocabulary())

	v = NewTFIDF(TFIDFOptions{MinDF: 1, MaxDF: 0.5})
	_, err = v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	assert.NotContains(t, v.Vocabulary(), "apple")
	assert.Contains(t, v.Vocabulary(), "car")
}

func TestTFIDF_MaxFeatures(t *testing.T) {
	v := NewTFIDF(TFIDFOptions{MaxFeatures: 2})
	_, err := v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "fruit"}, v.Vocabulary())
}

func TestTFIDF_Transform(t *testing.T) {
	v := NewTFIDF(DefaultTFIDFOptions())
	_, err := v.Transform(context.Background(), "apple")
	require.ErrorIs(t, err, models.ErrModelNotFit)
	assert.False(t, v.Fitted())

	_, err = v.FitTransform(context.Background(), corpus)
	require.NoError(t, err)
	vec, err := v.Transform(context.Background(), "unseen words only")
	require.NoError(t, err)
	for _, x := range vec {
		assert.Zero(t, x)
	}
	vec, err = v.Transform(context.Background(), "engine")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, vec[3], 1e-9)
}

func TestTFIDF_Errors(t *testing.T) {
	v := NewTFIDF(DefaultTFIDFOptions())
	_, err := v.FitTransform(context.Background(), nil)
	require.ErrorIs(t, err, models.ErrNoDocumentsAvailable)

	_, err = v.FitTransform(context.Background(), []string{"", "  "})
	require.ErrorIs(t, err, models.ErrNoDocumentsAvailable)
	assert.False(t, v.Fitted(), "failed fit must not install a model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = v.FitTransform(ctx, corpus)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, v.Fitted())
}

func TestTFIDF_FitDefersInstall(t *testing.T) {
	v := NewTFIDF(DefaultTFIDFOptions())
	_, err := v.FitTransform(context.Background(), []string{"alpha beta"})
	require.NoError(t, err)

	f, err := v.Fit(context.Background(), corpus)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, v.Vocabulary(), "pending fit must not replace the vocabulary")

	f.Install()
	assert.Len(t, v.Vocabulary(), len(f.Vectors[0]))
	assert.NotContains(t, v.Vocabulary(), "alpha")
}
