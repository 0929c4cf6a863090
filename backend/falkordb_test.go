package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFalkorDBGraph(t *testing.T) {
	t.Run("InvalidURL", func(t *testing.T) {
		g, err := NewFalkorDBGraph("falkordb://")
		assert.Error(t, err)
		assert.Nil(t, g)
	})

	t.Run("DefaultGraphName", func(t *testing.T) {
		g, err := NewFalkorDBGraph("falkordb://localhost:6379")
		assert.NoError(t, err)
		assert.Equal(t, "sona", g.graphName)
	})

	t.Run("ExplicitGraphName", func(t *testing.T) {
		g, err := NewFalkorDBGraph("falkordb://localhost:6379/memory")
		assert.NoError(t, err)
		assert.Equal(t, "memory", g.graphName)
	})
}

func TestFalkorDBHelpers(t *testing.T) {
	t.Run("SanitizeLabel", func(t *testing.T) {
		assert.Equal(t, "SIMILAR_TO", sanitizeLabel("SIMILAR_TO"))
		assert.Equal(t, "co_occurs", sanitizeLabel("co occurs"))
		assert.Equal(t, "RELATED_TO", sanitizeLabel(""))
	})

	t.Run("QuoteString", func(t *testing.T) {
		assert.Equal(t, "'test'", quoteString("test"))
		assert.Equal(t, `'it\'s'`, quoteString("it's"))
		assert.Equal(t, 123, quoteString(123))
	})

	t.Run("SubstituteParams", func(t *testing.T) {
		q := substituteParams("MATCH (n {id: $id}) RETURN n", map[string]any{"id": "a"})
		assert.Equal(t, "MATCH (n {id: 'a'}) RETURN n", q)

		// A shorter name must never clobber the prefix of a longer one.
		q = substituteParams(
			"MATCH (a {id: $id})-[r]->(b {id: $id2}) RETURN r",
			map[string]any{"id": "x", "id2": "y"},
		)
		assert.Equal(t, "MATCH (a {id: 'x'})-[r]->(b {id: 'y'}) RETURN r", q)

		q = substituteParams("RETURN $limit", map[string]any{"limit": 10})
		assert.Equal(t, "RETURN 10", q)
	})

	t.Run("PropsToString", func(t *testing.T) {
		s := propsToString(map[string]any{"score": 0.9})
		assert.Equal(t, "{score: 0.9}", s)
	})

	t.Run("DecodeCell", func(t *testing.T) {
		assert.Equal(t, "abc", decodeCell([]byte("abc")))
		assert.Equal(t, "v", decodeCell([]interface{}{int64(2), []byte("v")}))
		assert.Equal(t, int64(7), decodeCell(int64(7)))
	})

	t.Run("FlattenHeaderCell", func(t *testing.T) {
		assert.Equal(t, "m.id", flattenHeaderCell([]interface{}{int64(1), "m.id"}))
		assert.Equal(t, "n", flattenHeaderCell("n"))
	})
}
