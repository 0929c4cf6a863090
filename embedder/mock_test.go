package embedder

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder(64)
	ctx := context.Background()

	a, err := m.Embed(ctx, "hello world")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "hello world")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := m.Embed(ctx, "something else")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestMockEmbedderUnitNorm(t *testing.T) {
	m := NewMockEmbedder(32)

	vec, err := m.Embed(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vec, 32)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestMockEmbedderDimensionDefault(t *testing.T) {
	assert.Equal(t, 128, NewMockEmbedder(0).Dimension())
	assert.Equal(t, 128, NewMockEmbedder(-5).Dimension())
	assert.Equal(t, 256, NewMockEmbedder(256).Dimension())
}

func TestMockEmbedderBatch(t *testing.T) {
	m := NewMockEmbedder(16)
	ctx := context.Background()

	vecs, err := m.EmbedBatch(ctx, []string{"one", "two", "one"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[2])
	assert.NotEqual(t, vecs[0], vecs[1])

	empty, err := m.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
