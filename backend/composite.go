package backend

import (
	"github.com/smallnest/sona"
)

// Composite combines an independent vector store and graph store into the
// full backend contract, so a Redis vector store can be paired with a
// FalkorDB graph.
type Composite struct {
	sona.VectorBackend
	sona.GraphBackend
}

// NewComposite creates a combined backend from its two halves
func NewComposite(vector sona.VectorBackend, graph sona.GraphBackend) *Composite {
	return &Composite{VectorBackend: vector, GraphBackend: graph}
}

// NewFalkorDBBackend pairs a FalkorDB graph with an in-memory vector index.
// Vector search stays process-local while relationships persist in the
// graph database.
func NewFalkorDBBackend(connectionString string) (*Composite, error) {
	graph, err := NewFalkorDBGraph(connectionString)
	if err != nil {
		return nil, err
	}
	return NewComposite(NewInMemoryBackend(), graph), nil
}
