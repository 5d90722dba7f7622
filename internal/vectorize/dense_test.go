package vectorize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/bunrui/internal/config"
	"github.com/hyperjump/bunrui/internal/embedding"
	"github.com/hyperjump/bunrui/internal/models"
)

func TestDense(t *testing.T) {
	d := NewDense(embedding.NewHashEmbedder(32))
	_, err := d.Transform(context.Background(), "car")
	require.ErrorIs(t, err, models.ErrModelNotFit)

	vecs, err := d.FitTransform(context.Background(), []string{"car engine", "apple fruit"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 32)
	assert.True(t, d.Fitted())

	again, err := d.Transform(context.Background(), "car engine")
	require.NoError(t, err)
	assert.Equal(t, vecs[0], again)

	_, err = d.FitTransform(context.Background(), nil)
	require.ErrorIs(t, err, models.ErrNoDocumentsAvailable)
}

func TestNew(t *testing.T) {
	v, err := New(config.VectorizerConfig{Strategy: "tfidf"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tfidf", v.Name())

	_, err = New(config.VectorizerConfig{Strategy: "dense"}, nil)
	assert.Error(t, err)

	v, err = New(config.VectorizerConfig{Strategy: "dense"}, embedding.NewHashEmbedder(8))
	require.NoError(t, err)
	assert.Equal(t, "dense", v.Name())

	_, err = New(config.VectorizerConfig{Strategy: "lda"}, nil)
	assert.Error(t, err)
}
