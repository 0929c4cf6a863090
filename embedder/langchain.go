package embedder

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
)

// LangChainEmbedder adapts a langchaingo embeddings.Embedder to the
// sona.Embedder interface. The dimension is probed lazily on first use
// since langchaingo embedders do not expose it.
type LangChainEmbedder struct {
	embedder embeddings.Embedder

	mu        sync.Mutex
	dimension int
}

// NewLangChainEmbedder creates an adapter for a langchaingo embedder
func NewLangChainEmbedder(embedder embeddings.Embedder) *LangChainEmbedder {
	return &LangChainEmbedder{embedder: embedder}
}

// Embed converts a single text to an embedding vector
func (l *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding, err := l.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	vec := make([]float32, len(embedding))
	for i, v := range embedding {
		vec[i] = float32(v)
	}
	l.noteDimension(len(vec))
	return vec, nil
}

// EmbedBatch converts multiple texts in one call
func (l *LangChainEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	embedded, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}

	out := make([][]float32, len(embedded))
	for i, embedding := range embedded {
		out[i] = make([]float32, len(embedding))
		for j, v := range embedding {
			out[i][j] = float32(v)
		}
	}
	if len(out) > 0 {
		l.noteDimension(len(out[0]))
	}
	return out, nil
}

// Dimension returns the embedding size observed so far, probing the
// underlying embedder when nothing has been embedded yet.
func (l *LangChainEmbedder) Dimension() int {
	l.mu.Lock()
	known := l.dimension
	l.mu.Unlock()
	if known > 0 {
		return known
	}

	probe, err := l.embedder.EmbedQuery(context.Background(), "dimension probe")
	if err != nil {
		return 0
	}
	l.noteDimension(len(probe))
	return len(probe)
}

func (l *LangChainEmbedder) noteDimension(d int) {
	if d == 0 {
		return
	}
	l.mu.Lock()
	l.dimension = d
	l.mu.Unlock()
}
