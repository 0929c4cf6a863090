package backend

import (
	"context"
	"sort"
	"sync"

	"github.com/smallnest/sona"
)

// InMemoryBackend is a process-local implementation of the full backend
// contract. It is safe for concurrent use.
type InMemoryBackend struct {
	entries map[string]*sona.VectorEntry
	edges   map[string]*sona.GraphEdge
	mu      sync.RWMutex
}

// NewInMemoryBackend creates an empty in-memory backend
func NewInMemoryBackend() *InMemoryBackend {
	return &InMemoryBackend{
		entries: make(map[string]*sona.VectorEntry),
		edges:   make(map[string]*sona.GraphEdge),
	}
}

// Insert stores an entry, assigning an id when none is set
func (b *InMemoryBackend) Insert(ctx context.Context, entry *sona.VectorEntry) (string, error) {
	if entry == nil || len(entry.Vector) == 0 {
		return "", sona.NewValidationError("entry", "missing vector")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if entry.ID == "" {
		entry.ID = sona.NewID()
	}
	stored := *entry
	stored.Vector = append([]float32(nil), entry.Vector...)
	b.entries[stored.ID] = &stored
	return stored.ID, nil
}

// Search returns entries by descending cosine similarity, honoring the
// limit, minimum score and metadata filter.
func (b *InMemoryBackend) Search(ctx context.Context, vector []float32, opts *sona.SearchOptions) ([]sona.SearchResult, error) {
	if opts == nil {
		opts = &sona.SearchOptions{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	results := make([]sona.SearchResult, 0)
	for _, entry := range b.entries {
		if !matchesFilter(entry.Metadata, opts.Filter) {
			continue
		}
		score := sona.CosineSimilarity(vector, entry.Vector)
		if score < opts.MinScore {
			continue
		}
		results = append(results, sona.SearchResult{Entry: entry, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if opts.Limit > 0 && opts.Limit < len(results) {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Get returns an entry by id, or nil when it does not exist
func (b *InMemoryBackend) Get(ctx context.Context, id string) (*sona.VectorEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.entries[id], nil
}

// Delete removes an entry and its incident edges
func (b *InMemoryBackend) Delete(ctx context.Context, id string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.entries[id]; !ok {
		return false, nil
	}
	delete(b.entries, id)
	for edgeID, e := range b.edges {
		if e.SourceID == id || e.TargetID == id {
			delete(b.edges, edgeID)
		}
	}
	return true, nil
}

// AddEdge stores an edge and returns its id
func (b *InMemoryBackend) AddEdge(ctx context.Context, edge *sona.GraphEdge) (string, error) {
	if edge == nil || edge.SourceID == "" || edge.TargetID == "" || edge.Relationship == "" {
		return "", sona.NewValidationError("edge", "missing source, target or relationship")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := sona.NewID()
	stored := *edge
	b.edges[id] = &stored
	return id, nil
}

// GraphQuery lists stored edges. The in-memory backend does not parse
// cypher; the query string is ignored and the optional params source_id,
// target_id and relationship act as equality filters.
func (b *InMemoryBackend) GraphQuery(ctx context.Context, query string, params map[string]any) (*sona.GraphQueryResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	match := func(filter string, value string) bool {
		want, ok := params[filter].(string)
		return !ok || want == value
	}

	result := &sona.GraphQueryResult{
		Columns: []string{"source_id", "relationship", "target_id"},
		Rows:    make([][]any, 0),
	}
	for _, e := range b.edges {
		if !match("source_id", e.SourceID) || !match("target_id", e.TargetID) || !match("relationship", e.Relationship) {
			continue
		}
		result.Rows = append(result.Rows, []any{e.SourceID, e.Relationship, e.TargetID})
	}

	sort.Slice(result.Rows, func(i, j int) bool {
		if result.Rows[i][0] != result.Rows[j][0] {
			return result.Rows[i][0].(string) < result.Rows[j][0].(string)
		}
		return result.Rows[i][2].(string) < result.Rows[j][2].(string)
	})
	return result, nil
}

// GetNeighbors returns stored entries reachable from id within depth hops,
// treating edges as undirected.
func (b *InMemoryBackend) GetNeighbors(ctx context.Context, id string, depth int) ([]*sona.VectorEntry, error) {
	if depth <= 0 {
		depth = 1
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	adjacency := make(map[string][]string)
	for _, e := range b.edges {
		adjacency[e.SourceID] = append(adjacency[e.SourceID], e.TargetID)
		adjacency[e.TargetID] = append(adjacency[e.TargetID], e.SourceID)
	}

	visited := map[string]int{id: 0}
	queue := []string{id}
	neighbors := make([]*sona.VectorEntry, 0)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		hops := visited[current]
		if hops >= depth {
			continue
		}
		for _, next := range adjacency[current] {
			if _, ok := visited[next]; ok {
				continue
			}
			visited[next] = hops + 1
			queue = append(queue, next)
			if entry, ok := b.entries[next]; ok {
				neighbors = append(neighbors, entry)
			}
		}
	}

	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i].ID < neighbors[j].ID })
	return neighbors, nil
}

// IsGraphInitialized always reports true for the in-memory backend
func (b *InMemoryBackend) IsGraphInitialized() bool {
	return true
}

// Count returns the number of stored entries
func (b *InMemoryBackend) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// EdgeCount returns the number of stored edges
func (b *InMemoryBackend) EdgeCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.edges)
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		if metadata == nil || metadata[k] != want {
			return false
		}
	}
	return true
}
