package relationship

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/backend"
)

func TestExtractEntities(t *testing.T) {
	inf := NewInferrer(backend.NewInMemoryBackend(), nil)

	t.Run("AllTypes", func(t *testing.T) {
		text := "You can reach Jane Smith at jane@example.com or see https://example.com/docs before 2026-08-30."
		entities := inf.ExtractEntities(text)
		require.NotEmpty(t, entities)

		byType := map[sona.EntityType][]string{}
		for _, e := range entities {
			byType[e.Type] = append(byType[e.Type], e.Text)
		}
		assert.Contains(t, byType[sona.EntityEmail], "jane@example.com")
		assert.Contains(t, byType[sona.EntityURL], "https://example.com/docs")
		assert.Contains(t, byType[sona.EntityDate], "2026-08-30")
		assert.Contains(t, byType[sona.EntityPerson], "Jane Smith")
	})

	t.Run("SortedByStartPos", func(t *testing.T) {
		entities := inf.ExtractEntities("a@b.com then https://x.org then 2026-01-01")
		for i := 1; i < len(entities); i++ {
			assert.LessOrEqual(t, entities[i-1].StartPos, entities[i].StartPos)
		}
	})

	t.Run("DeduplicatedByNormalizedText", func(t *testing.T) {
		entities := inf.ExtractEntities("mail a@b.com and again A@B.com")
		count := 0
		for _, e := range entities {
			if e.Type == sona.EntityEmail {
				count++
			}
		}
		assert.Equal(t, 1, count)
	})

	t.Run("TypeFilter", func(t *testing.T) {
		entities := inf.ExtractEntities("Jane Smith mailed a@b.com", sona.EntityEmail)
		require.Len(t, entities, 1)
		assert.Equal(t, sona.EntityEmail, entities[0].Type)
	})

	t.Run("MarkupStripped", func(t *testing.T) {
		entities := inf.ExtractEntities(`<script>var x = "https://evil.example.com";</script> plain a@b.com`)
		for _, e := range entities {
			assert.NotContains(t, e.Text, "evil.example.com")
		}
	})

	t.Run("EmptyText", func(t *testing.T) {
		assert.Empty(t, inf.ExtractEntities("   "))
	})

	t.Run("DateFormats", func(t *testing.T) {
		entities := inf.ExtractEntities("due 2026-08-30, moved from 1/15/2026, announced January 5, 2026")
		dates := 0
		for _, e := range entities {
			if e.Type == sona.EntityDate {
				dates++
			}
		}
		assert.Equal(t, 3, dates)
	})
}

func TestInferFromContent(t *testing.T) {
	ctx := context.Background()

	t.Run("EmptyContent", func(t *testing.T) {
		inf := NewInferrer(backend.NewInMemoryBackend(), nil)
		result, err := inf.InferFromContent(ctx, &sona.VectorEntry{ID: "e1"}, nil)
		require.NoError(t, err)
		assert.Empty(t, result.Entities)
		assert.Zero(t, result.EdgesCreated)

		result, err = inf.InferFromContent(ctx, nil, nil)
		require.NoError(t, err)
		assert.Zero(t, result.EdgesCreated)
	})

	t.Run("CoOccurrenceEdges", func(t *testing.T) {
		b := backend.NewInMemoryBackend()
		inf := NewInferrer(b, nil)

		entry := &sona.VectorEntry{
			ID:      "e1",
			Content: "Jane Smith wrote to bob@example.com about https://example.com",
		}
		result, err := inf.InferFromContent(ctx, entry, nil)
		require.NoError(t, err)
		require.Len(t, result.Entities, 3)
		// Three entities co-occurring pairwise.
		assert.Len(t, result.Relationships, 3)
		assert.Equal(t, 3, result.EdgesCreated)
		assert.Equal(t, 3, b.EdgeCount())
		assert.GreaterOrEqual(t, result.ProcessingTimeMs, 0.0)

		for _, rel := range result.Relationships {
			assert.Equal(t, RelationCoOccurs, rel.Relationship)
			assert.Equal(t, "e1", rel.Properties["entry_id"])
		}
	})

	t.Run("MaxRelationshipsCap", func(t *testing.T) {
		inf := NewInferrer(backend.NewInMemoryBackend(), nil)
		entry := &sona.VectorEntry{
			ID:      "e2",
			Content: "a@x.com b@x.com c@x.com d@x.com e@x.com",
		}
		result, err := inf.InferFromContent(ctx, entry, &InferOptions{MaxRelationships: 2})
		require.NoError(t, err)
		assert.Len(t, result.Relationships, 2)
	})
}

func TestLinkSimilar(t *testing.T) {
	ctx := context.Background()
	b := backend.NewInMemoryBackend()
	inf := NewInferrer(b, nil)

	_, err := b.Insert(ctx, &sona.VectorEntry{ID: "src", Content: "src", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = b.Insert(ctx, &sona.VectorEntry{ID: "near", Content: "near", Vector: []float32{0.99, 0.01}})
	require.NoError(t, err)
	_, err = b.Insert(ctx, &sona.VectorEntry{ID: "far", Content: "far", Vector: []float32{0, 1}})
	require.NoError(t, err)

	t.Run("LinksAboveThreshold", func(t *testing.T) {
		created, err := inf.LinkSimilar(ctx, "src", 0.9)
		require.NoError(t, err)
		assert.Equal(t, 1, created)

		result, err := b.GraphQuery(ctx, "", map[string]any{"relationship": RelationSimilarTo})
		require.NoError(t, err)
		require.Len(t, result.Rows, 1)
		assert.Equal(t, "src", result.Rows[0][0])
		assert.Equal(t, "near", result.Rows[0][2])
	})

	t.Run("MissingSourceIsZero", func(t *testing.T) {
		created, err := inf.LinkSimilar(ctx, "absent", 0.9)
		require.NoError(t, err)
		assert.Zero(t, created)
	})
}

// failingBackend wraps the in-memory backend and fails every search,
// exercising the per-entry isolation in BatchInfer.
type failingBackend struct {
	*backend.InMemoryBackend
}

func (f *failingBackend) Search(ctx context.Context, vector []float32, opts *sona.SearchOptions) ([]sona.SearchResult, error) {
	return nil, errors.New("search down")
}

func TestBatchInfer(t *testing.T) {
	ctx := context.Background()

	t.Run("ProcessesAllEntries", func(t *testing.T) {
		b := backend.NewInMemoryBackend()
		inf := NewInferrer(b, nil)

		_, err := b.Insert(ctx, &sona.VectorEntry{ID: "e1", Content: "x", Vector: []float32{1, 0}})
		require.NoError(t, err)
		_, err = b.Insert(ctx, &sona.VectorEntry{ID: "e2", Content: "y", Vector: []float32{0.99, 0.01}})
		require.NoError(t, err)

		entries := []*sona.VectorEntry{
			{ID: "e1", Content: "a@x.com b@x.com"},
			{ID: "e2", Content: "no entities here lowercase"},
			nil,
		}
		result := inf.BatchInfer(ctx, entries, nil)
		assert.Equal(t, 2, result.EntriesProcessed)
		assert.Equal(t, 1, result.EdgesCreated)
		// Both stored entries are near-identical, each links the other.
		assert.Equal(t, 2, result.SimilarLinks)
		assert.Nil(t, result.Failures)
	})

	t.Run("FailuresAreIsolated", func(t *testing.T) {
		b := &failingBackend{InMemoryBackend: backend.NewInMemoryBackend()}
		inf := NewInferrer(b, nil)

		_, err := b.Insert(ctx, &sona.VectorEntry{ID: "e1", Content: "x", Vector: []float32{1, 0}})
		require.NoError(t, err)

		result := inf.BatchInfer(ctx, []*sona.VectorEntry{{ID: "e1", Content: "plain text"}}, nil)
		assert.Equal(t, 1, result.Failures["e1"])
	})
}
