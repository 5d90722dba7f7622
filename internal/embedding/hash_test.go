package embedding

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestHashEmbedder(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(256)
	assert.Equal(t, 256, e.Dimensions())

	a, err := e.Embed(ctx, "car engine wheel")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "Car engine wheel!")
	require.NoError(t, err)
	assert.Equal(t, a, b, "embedding ignores case and punctuation")

	var norm float64
	for _, x := range a {
		norm += float64(x * x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)

	c, err := e.Embed(ctx, "car engine")
	require.NoError(t, err)
	d, err := e.Embed(ctx, "apple banana fruit")
	require.NoError(t, err)
	assert.Greater(t, cosine(a, c), cosine(a, d))

	empty, err := e.Embed(ctx, "")
	require.NoError(t, err)
	for _, x := range empty {
		assert.Zero(t, x)
	}
}

func TestHashEmbedder_WithTokenize(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(64, WithTokenize(func(s string) []string {
		return strings.Fields(strings.ReplaceAll(s, "cars", "car"))
	}))
	a, _ := e.Embed(ctx, "cars")
	b, _ := e.Embed(ctx, "car")
	assert.Equal(t, a, b)
}

func TestHashEmbedder_Batch(t *testing.T) {
	ctx := context.Background()
	e := NewHashEmbedder(0)
	assert.Equal(t, 384, e.Dimensions())
	out, err := e.EmbedBatch(ctx, []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	one, _ := e.Embed(ctx, "one")
	assert.Equal(t, one, out[0])

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = e.EmbedBatch(cctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}
