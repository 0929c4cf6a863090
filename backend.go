package sona

import "context"

// VectorBackend is the external vector storage and search contract. The
// memory engine never owns the underlying index; it only inserts, searches
// and deletes through this interface.
type VectorBackend interface {
	// Insert stores a vector with metadata and returns its id.
	Insert(ctx context.Context, entry *VectorEntry) (string, error)

	// Search returns entries similar to the query vector, highest score
	// first, honoring the limit, minimum score and metadata filter.
	Search(ctx context.Context, vector []float32, opts *SearchOptions) ([]SearchResult, error)

	// Get retrieves an entry by id, or nil if it does not exist.
	Get(ctx context.Context, id string) (*VectorEntry, error)

	// Delete removes an entry. It reports whether anything was removed.
	Delete(ctx context.Context, id string) (bool, error)
}

// GraphBackend is the external graph storage contract used by the
// relationship layer.
type GraphBackend interface {
	// AddEdge creates an edge and returns its id.
	AddEdge(ctx context.Context, edge *GraphEdge) (string, error)

	// GraphQuery runs a cypher-style query with parameters.
	GraphQuery(ctx context.Context, query string, params map[string]any) (*GraphQueryResult, error)

	// GetNeighbors returns entries reachable from id within depth hops.
	GetNeighbors(ctx context.Context, id string, depth int) ([]*VectorEntry, error)

	// IsGraphInitialized reports whether the graph side is ready for use.
	IsGraphInitialized() bool
}

// Backend combines vector storage and graph storage, the full external
// surface consumed by the engine.
type Backend interface {
	VectorBackend
	GraphBackend
}

// Embedder converts text into vectors of a fixed dimension.
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector size.
	Dimension() int
}
