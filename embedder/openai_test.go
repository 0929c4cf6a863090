package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedderDefaults(t *testing.T) {
	e := NewOpenAIEmbedder(nil)
	assert.Equal(t, 1536, e.Dimension())

	e = NewOpenAIEmbedder(&OpenAIConfig{Model: openai.LargeEmbedding3})
	assert.Equal(t, 3072, e.Dimension())

	e = NewOpenAIEmbedder(&OpenAIConfig{Dimension: 256})
	assert.Equal(t, 256, e.Dimension())
}

func TestOpenAIEmbedderBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		resp := openai.EmbeddingResponse{
			Model: openai.EmbeddingModel(req.Model),
			Data: []openai.Embedding{
				// Returned out of order on purpose.
				{Index: 1, Embedding: []float32{0, 1}},
				{Index: 0, Embedding: []float32{1, 0}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	vecs, err := e.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0}, vecs[0])
	assert.Equal(t, []float32{0, 1}, vecs[1])
}

func TestOpenAIEmbedderEmptyBatch(t *testing.T) {
	e := NewOpenAIEmbedder(&OpenAIConfig{APIKey: "test-key"})
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: []float32{1}}},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	e := NewOpenAIEmbedder(&OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "expected 2 embeddings")
}
