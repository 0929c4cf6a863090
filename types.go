package sona

import (
	"time"

	"github.com/google/uuid"
)

// Trajectory is one recorded query together with its retrieval results and
// optional feedback. Trajectories are owned by the trajectory store: they are
// created on record, mutated only by setting feedback once, and destroyed by
// capacity-triggered pruning.
type Trajectory struct {
	ID           string         `json:"id"`
	Query        string         `json:"query"`
	QueryVector  []float32      `json:"query_vector"`
	ResultIDs    []string       `json:"result_ids"`
	ResultScores []float64      `json:"result_scores"`
	Feedback     *float64       `json:"feedback,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	SessionID    string         `json:"session_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// HasFeedback reports whether feedback has been recorded for the trajectory.
func (t *Trajectory) HasFeedback() bool {
	return t.Feedback != nil
}

// Clone returns a deep copy of the trajectory.
func (t *Trajectory) Clone() *Trajectory {
	cp := &Trajectory{
		ID:           t.ID,
		Query:        t.Query,
		QueryVector:  make([]float32, len(t.QueryVector)),
		ResultIDs:    make([]string, len(t.ResultIDs)),
		ResultScores: make([]float64, len(t.ResultScores)),
		Timestamp:    t.Timestamp,
		SessionID:    t.SessionID,
	}
	copy(cp.QueryVector, t.QueryVector)
	copy(cp.ResultIDs, t.ResultIDs)
	copy(cp.ResultScores, t.ResultScores)
	if t.Feedback != nil {
		fb := *t.Feedback
		cp.Feedback = &fb
	}
	if t.Metadata != nil {
		cp.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// PatternSample is raw evidence for pattern mining: a query vector, the
// vector of the result that answered it, and how relevant that result was.
type PatternSample struct {
	ID             string    `json:"id"`
	QueryVector    []float32 `json:"query_vector"`
	ResultVector   []float32 `json:"result_vector"`
	RelevanceScore float64   `json:"relevance_score"`
	Timestamp      time.Time `json:"timestamp"`
}

// Pattern is a cluster summarizing a group of similar high-quality samples.
// The centroid is the running mean of the member vectors.
type Pattern struct {
	ID          string    `json:"id"`
	Centroid    []float32 `json:"centroid"`
	Members     []string  `json:"members"`
	ClusterSize int       `json:"cluster_size"`
	AvgQuality  float64   `json:"avg_quality"`
	LastUpdated time.Time `json:"last_updated"`
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	cp := &Pattern{
		ID:          p.ID,
		Centroid:    make([]float32, len(p.Centroid)),
		Members:     make([]string, len(p.Members)),
		ClusterSize: p.ClusterSize,
		AvgQuality:  p.AvgQuality,
		LastUpdated: p.LastUpdated,
	}
	copy(cp.Centroid, p.Centroid)
	copy(cp.Members, p.Members)
	return cp
}

// EntityType classifies extracted entities.
type EntityType string

const (
	EntityEmail  EntityType = "email"
	EntityURL    EntityType = "url"
	EntityDate   EntityType = "date"
	EntityPerson EntityType = "person"
)

// Entity is a piece of structured information extracted from text. Entities
// are derived values: they are never persisted independently and are consumed
// immediately to produce graph edges.
type Entity struct {
	Type       EntityType `json:"type"`
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	StartPos   int        `json:"start_pos"`
	EndPos     int        `json:"end_pos"`
}

// GraphEdge is a request for a relationship between two stored entries. The
// edge itself is owned by the graph backend; this core only decides which
// edges to create.
type GraphEdge struct {
	SourceID     string         `json:"source_id"`
	TargetID     string         `json:"target_id"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// GraphNode is a node handed to the attention aggregator: an id plus the
// embedding used for attention scoring.
type GraphNode struct {
	ID        string         `json:"id"`
	Embedding []float32      `json:"embedding"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// VectorEntry is a stored item in the vector backend.
type VectorEntry struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Vector   []float32      `json:"vector"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SearchResult pairs a stored entry with its similarity score.
type SearchResult struct {
	Entry *VectorEntry `json:"entry"`
	Score float64      `json:"score"`
}

// SearchOptions controls vector backend searches.
type SearchOptions struct {
	Limit    int            `json:"limit"`
	MinScore float64        `json:"min_score"`
	Filter   map[string]any `json:"filter,omitempty"`
}

// GraphQueryResult is the tabular result of a graph query.
type GraphQueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewID returns a fresh unique identifier.
func NewID() string {
	return uuid.NewString()
}
