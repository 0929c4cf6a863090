package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/sona"
)

func TestInMemoryBackendVectors(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBackend()

	t.Run("InsertAssignsID", func(t *testing.T) {
		id, err := b.Insert(ctx, &sona.VectorEntry{Content: "a", Vector: []float32{1, 0}})
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, 1, b.Count())
	})

	t.Run("InsertRejectsEmptyVector", func(t *testing.T) {
		_, err := b.Insert(ctx, &sona.VectorEntry{Content: "bad"})
		assert.Error(t, err)
	})

	t.Run("GetMissingIsNil", func(t *testing.T) {
		entry, err := b.Get(ctx, "absent")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("Delete", func(t *testing.T) {
		id, _ := b.Insert(ctx, &sona.VectorEntry{Content: "gone", Vector: []float32{0, 1}})
		ok, err := b.Delete(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = b.Delete(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestInMemoryBackendSearch(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBackend()

	_, err := b.Insert(ctx, &sona.VectorEntry{ID: "x", Content: "x", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = b.Insert(ctx, &sona.VectorEntry{ID: "y", Content: "y", Vector: []float32{0.7, 0.7}})
	require.NoError(t, err)
	_, err = b.Insert(ctx, &sona.VectorEntry{
		ID: "z", Content: "z", Vector: []float32{0, 1},
		Metadata: map[string]any{"kind": "doc"},
	})
	require.NoError(t, err)

	t.Run("RankedByScore", func(t *testing.T) {
		results, err := b.Search(ctx, []float32{1, 0}, nil)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "x", results[0].Entry.ID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	})

	t.Run("MinScoreAndLimit", func(t *testing.T) {
		results, err := b.Search(ctx, []float32{1, 0}, &sona.SearchOptions{MinScore: 0.5, Limit: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "x", results[0].Entry.ID)
	})

	t.Run("MetadataFilter", func(t *testing.T) {
		results, err := b.Search(ctx, []float32{1, 0}, &sona.SearchOptions{
			Filter: map[string]any{"kind": "doc"},
		})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "z", results[0].Entry.ID)
	})
}

func TestInMemoryBackendGraph(t *testing.T) {
	ctx := context.Background()
	b := NewInMemoryBackend()
	assert.True(t, b.IsGraphInitialized())

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := b.Insert(ctx, &sona.VectorEntry{ID: id, Content: id, Vector: []float32{1, 0}})
		require.NoError(t, err)
	}

	// a - b - c - d chain plus one typed edge.
	_, err := b.AddEdge(ctx, &sona.GraphEdge{SourceID: "a", TargetID: "b", Relationship: "SIMILAR_TO"})
	require.NoError(t, err)
	_, err = b.AddEdge(ctx, &sona.GraphEdge{SourceID: "b", TargetID: "c", Relationship: "CO_OCCURS_WITH"})
	require.NoError(t, err)
	_, err = b.AddEdge(ctx, &sona.GraphEdge{SourceID: "c", TargetID: "d", Relationship: "CO_OCCURS_WITH"})
	require.NoError(t, err)

	t.Run("AddEdgeValidates", func(t *testing.T) {
		_, err := b.AddEdge(ctx, &sona.GraphEdge{SourceID: "a"})
		assert.Error(t, err)
	})

	t.Run("NeighborsDepthOne", func(t *testing.T) {
		neighbors, err := b.GetNeighbors(ctx, "b", 1)
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		assert.Equal(t, "a", neighbors[0].ID)
		assert.Equal(t, "c", neighbors[1].ID)
	})

	t.Run("NeighborsDepthTwo", func(t *testing.T) {
		neighbors, err := b.GetNeighbors(ctx, "a", 2)
		require.NoError(t, err)
		require.Len(t, neighbors, 2)
		assert.Equal(t, "b", neighbors[0].ID)
		assert.Equal(t, "c", neighbors[1].ID)
	})

	t.Run("GraphQueryRelationshipFilter", func(t *testing.T) {
		result, err := b.GraphQuery(ctx, "", map[string]any{"relationship": "CO_OCCURS_WITH"})
		require.NoError(t, err)
		assert.Equal(t, []string{"source_id", "relationship", "target_id"}, result.Columns)
		require.Len(t, result.Rows, 2)
		assert.Equal(t, "b", result.Rows[0][0])
	})

	t.Run("DeleteRemovesIncidentEdges", func(t *testing.T) {
		_, err := b.Delete(ctx, "c")
		require.NoError(t, err)
		neighbors, err := b.GetNeighbors(ctx, "b", 2)
		require.NoError(t, err)
		require.Len(t, neighbors, 1)
		assert.Equal(t, "a", neighbors[0].ID)
	})
}
