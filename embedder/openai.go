package embedder

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// Known embedding model dimensions. Unknown models report the configured
// override or 0 until the first successful call.
var openAIModelDims = map[openai.EmbeddingModel]int{
	openai.SmallEmbedding3: 1536,
	openai.LargeEmbedding3: 3072,
	openai.AdaEmbeddingV2:  1536,
}

// OpenAIConfig holds configuration for the OpenAI embedder
type OpenAIConfig struct {
	APIKey    string                // Defaults to the OPENAI_API_KEY environment variable
	BaseURL   string                // Optional override for OpenAI-compatible endpoints
	Model     openai.EmbeddingModel // Default text-embedding-3-small
	Dimension int                   // Optional reduced output dimension
}

// OpenAIEmbedder generates embeddings through the OpenAI embeddings API
type OpenAIEmbedder struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	dimension int
}

// NewOpenAIEmbedder creates an OpenAI-backed embedder
func NewOpenAIEmbedder(config *OpenAIConfig) *OpenAIEmbedder {
	if config == nil {
		config = &OpenAIConfig{}
	}

	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	model := config.Model
	if model == "" {
		model = openai.SmallEmbedding3
	}
	dimension := config.Dimension
	if dimension <= 0 {
		dimension = openAIModelDims[model]
	}

	cfg := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}
}

// NewOpenAIEmbedderWithClient creates an embedder around an existing client
func NewOpenAIEmbedderWithClient(client *openai.Client, model openai.EmbeddingModel) *OpenAIEmbedder {
	if model == "" {
		model = openai.SmallEmbedding3
	}
	return &OpenAIEmbedder{
		client:    client,
		model:     model,
		dimension: openAIModelDims[model],
	}
}

// Embed converts a single text to an embedding vector
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embedding returned for text")
	}
	return vecs[0], nil
}

// EmbedBatch converts multiple texts in one API call
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	}
	if e.dimension > 0 && e.dimension != openAIModelDims[e.model] {
		req.Dimensions = e.dimension
	}

	resp, err := e.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	if e.dimension == 0 && len(out) > 0 {
		e.dimension = len(out[0])
	}
	return out, nil
}

// Dimension returns the embedding vector size, 0 when not yet known
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}
