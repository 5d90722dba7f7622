package embedding

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	*HashEmbedder
	batchInputs atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.batchInputs.Add(1)
	return c.HashEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchInputs.Add(int64(len(texts)))
	return c.HashEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := &countingEmbedder{HashEmbedder: NewHashEmbedder(16)}
	e := NewCachedEmbedder(inner, NewLRUCache(10))

	first, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)
	second, err := e.Embed(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, inner.batchInputs.Load())

	out, err := e.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, first, out[0])
	assert.EqualValues(t, 3, inner.batchInputs.Load(), "only misses reach the inner embedder")

	_, err = e.EmbedBatch(ctx, []string{"beta", "gamma"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, inner.batchInputs.Load())
	assert.Equal(t, 16, e.Dimensions())
	assert.NoError(t, e.Close())
}
