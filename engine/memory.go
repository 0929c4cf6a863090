package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/backend"
	"github.com/smallnest/sona/embedder"
	"github.com/smallnest/sona/feedback"
	"github.com/smallnest/sona/log"
	"github.com/smallnest/sona/pattern"
	"github.com/smallnest/sona/relationship"
	"github.com/smallnest/sona/trajectory"
)

// Config holds configuration for the memory engine. Nil sub-configs fall
// back to each component's defaults; a nil backend gets an in-memory one
// and a nil embedder a deterministic mock.
type Config struct {
	Backend  sona.Backend
	Embedder sona.Embedder

	Trajectories  *trajectory.Config
	Patterns      *pattern.StoreConfig
	Consolidation *pattern.LoopConfig
	Background    *feedback.BackgroundConfig
	Instant       *feedback.InstantConfig
	Inference     *relationship.InferrerConfig
	Attention     *relationship.AttentionConfig

	// PatternWeight scales how much pattern affinity shifts reranked
	// scores, default 0.1.
	PatternWeight float64

	Logger log.Logger
}

// Stats aggregates component statistics into one snapshot
type Stats struct {
	Trajectories    *trajectory.Stats     `json:"trajectories"`
	PatternSamples  int                   `json:"pattern_samples"`
	PatternClusters int                   `json:"pattern_clusters"`
	Consolidation   pattern.LoopStats     `json:"consolidation"`
	BackgroundSize  int                   `json:"background_buffer_size"`
	LearnedPatterns int                   `json:"learned_patterns"`
	Instant         feedback.InstantStats `json:"instant"`
}

// Memory is the orchestrator. All components are explicit instances, so
// two Memory values never share state.
type Memory struct {
	backend  sona.Backend
	embedder sona.Embedder

	trajectories  *trajectory.Store
	patterns      *pattern.Store
	consolidation *pattern.Loop
	background    *feedback.BackgroundLoop
	instant       *feedback.InstantLoop
	inferrer      *relationship.Inferrer
	attention     *relationship.Attention

	patternWeight float64
	logger        log.Logger
}

// NewMemory creates a memory engine from the given configuration
func NewMemory(config *Config) *Memory {
	if config == nil {
		config = &Config{}
	}

	be := config.Backend
	if be == nil {
		be = backend.NewInMemoryBackend()
	}
	emb := config.Embedder
	if emb == nil {
		emb = embedder.NewMockEmbedder(0)
	}
	weight := config.PatternWeight
	if weight <= 0 {
		weight = 0.1
	}
	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	attCfg := config.Attention
	if attCfg == nil {
		attCfg = &relationship.AttentionConfig{InputDim: emb.Dimension()}
	}

	return &Memory{
		backend:       be,
		embedder:      emb,
		trajectories:  trajectory.NewStore(config.Trajectories),
		patterns:      pattern.NewStore(config.Patterns),
		consolidation: pattern.NewLoop(config.Consolidation),
		background:    feedback.NewBackgroundLoop(config.Background),
		instant:       feedback.NewInstantLoop(config.Instant),
		inferrer:      relationship.NewInferrer(be, config.Inference),
		attention:     relationship.NewAttention(attCfg),
		patternWeight: weight,
		logger:        logger,
	}
}

// Trajectories exposes the underlying trajectory store
func (m *Memory) Trajectories() *trajectory.Store { return m.trajectories }

// Patterns exposes the underlying pattern store
func (m *Memory) Patterns() *pattern.Store { return m.patterns }

// Consolidation exposes the consolidation loop
func (m *Memory) Consolidation() *pattern.Loop { return m.consolidation }

// Background exposes the background feedback loop
func (m *Memory) Background() *feedback.BackgroundLoop { return m.background }

// Instant exposes the instant feedback loop
func (m *Memory) Instant() *feedback.InstantLoop { return m.instant }

// Inferrer exposes the relationship inferrer
func (m *Memory) Inferrer() *relationship.Inferrer { return m.inferrer }

// Attention exposes the graph attention aggregator
func (m *Memory) Attention() *relationship.Attention { return m.attention }

// RecordQuery embeds the query, records a trajectory for it and feeds the
// background loop. It returns the trajectory id, empty when trajectory
// recording is disabled.
func (m *Memory) RecordQuery(ctx context.Context, query string, results []sona.SearchResult) (string, error) {
	vector, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed query: %w", err)
	}

	ids := make([]string, 0, len(results))
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		if r.Entry == nil {
			continue
		}
		ids = append(ids, r.Entry.ID)
		scores = append(scores, r.Score)
	}

	id, err := m.trajectories.Record(&trajectory.RecordInput{
		Query:        query,
		QueryVector:  vector,
		ResultIDs:    ids,
		ResultScores: scores,
	})
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", nil
	}

	if t := m.trajectories.Get(id); t != nil {
		m.background.RecordTrajectory(t)
	}
	return id, nil
}

// AddFeedback attaches a feedback score to a trajectory, pushes the signal
// through the instant loop and files a pattern sample when the score
// clears the quality gate. Unknown ids report false without side effects.
func (m *Memory) AddFeedback(id string, score float64) bool {
	t := m.trajectories.Get(id)
	if t == nil {
		return false
	}
	if !m.trajectories.AddFeedback(id, score) {
		return false
	}

	m.instant.ProcessImmediateFeedback(&feedback.Event{
		QueryVector:  t.QueryVector,
		Score:        score,
		FeedbackType: feedback.FeedbackExplicit,
	})
	m.patterns.AddSample(&sona.PatternSample{
		QueryVector:    t.QueryVector,
		RelevanceScore: score,
	})
	m.background.NoteFeedback(id, score)
	return true
}

// RerankResults reorders results by their backend score adjusted with the
// instant boost for the result vector and the query's pattern affinity.
// The input slice is not modified.
func (m *Memory) RerankResults(queryVector []float32, results []sona.SearchResult) []sona.SearchResult {
	reranked := make([]sona.SearchResult, len(results))
	copy(reranked, results)

	affinity := 0.0
	if matches := m.patterns.FindSimilar(queryVector, 1); len(matches) > 0 {
		affinity = sona.CosineSimilarity(queryVector, matches[0].Centroid) * matches[0].AvgQuality
	}

	for i := range reranked {
		vector := queryVector
		if reranked[i].Entry != nil && len(reranked[i].Entry.Vector) > 0 {
			vector = reranked[i].Entry.Vector
		}
		boost := m.instant.GetBoostForVector(vector)
		reranked[i].Score = reranked[i].Score*boost + m.patternWeight*affinity
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})
	return reranked
}

// BuildContext runs graph attention over the node's neighborhood. Nodes
// come from the backend's neighbor traversal and edges from a full
// relationship listing; a node unknown to the backend yields the zero
// context.
func (m *Memory) BuildContext(ctx context.Context, nodeID string, depth int, headNames ...string) (*relationship.AttentionResult, error) {
	center, err := m.backend.Get(ctx, nodeID)
	if err != nil {
		return nil, sona.NewBackendError("get", err)
	}

	nodes := make([]*sona.GraphNode, 0)
	if center != nil {
		nodes = append(nodes, &sona.GraphNode{ID: center.ID, Embedding: center.Vector})
	}

	neighbors, err := m.backend.GetNeighbors(ctx, nodeID, depth)
	if err != nil {
		return nil, sona.NewBackendError("neighbors", err)
	}
	for _, n := range neighbors {
		if n == nil || n.ID == nodeID {
			continue
		}
		vec := n.Vector
		if len(vec) == 0 {
			// Graph backends may return id-only neighbor stubs; resolve
			// the embedding through the vector store.
			entry, err := m.backend.Get(ctx, n.ID)
			if err != nil {
				return nil, sona.NewBackendError("get", err)
			}
			if entry != nil {
				vec = entry.Vector
			}
		}
		nodes = append(nodes, &sona.GraphNode{ID: n.ID, Embedding: vec})
	}

	edges, err := m.listEdges(ctx)
	if err != nil {
		return nil, err
	}
	return m.attention.AggregateContext(nodeID, nodes, edges, depth, headNames...), nil
}

func (m *Memory) listEdges(ctx context.Context) ([]sona.GraphEdge, error) {
	result, err := m.backend.GraphQuery(ctx, "MATCH (a)-[r]->(b) RETURN a.id, type(r), b.id", nil)
	if err != nil {
		return nil, sona.NewBackendError("graph query", err)
	}

	edges := make([]sona.GraphEdge, 0, len(result.Rows))
	for _, row := range result.Rows {
		if len(row) < 3 {
			continue
		}
		source, _ := row[0].(string)
		rel, _ := row[1].(string)
		target, _ := row[2].(string)
		if source == "" || target == "" {
			continue
		}
		edges = append(edges, sona.GraphEdge{SourceID: source, TargetID: target, Relationship: rel})
	}
	return edges, nil
}

// IngestContent stores an entry, embedding its content when no vector is
// set, then runs relationship inference and similarity linking over it.
func (m *Memory) IngestContent(ctx context.Context, entry *sona.VectorEntry) (string, *relationship.InferenceResult, error) {
	if entry == nil {
		return "", nil, sona.NewValidationError("entry", "nil entry")
	}

	if len(entry.Vector) == 0 && entry.Content != "" {
		vector, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			return "", nil, fmt.Errorf("failed to embed content: %w", err)
		}
		entry.Vector = vector
	}

	id, err := m.backend.Insert(ctx, entry)
	if err != nil {
		return "", nil, err
	}

	inferred, err := m.inferrer.InferFromContent(ctx, entry, nil)
	if err != nil {
		return id, nil, err
	}
	if m.backend.IsGraphInitialized() {
		if _, err := m.inferrer.LinkSimilar(ctx, id, 0); err != nil {
			m.logger.Warn("similarity linking failed for %s: %v", id, err)
		}
	}
	return id, inferred, nil
}

// Start launches the consolidation and background loops
func (m *Memory) Start() {
	m.consolidation.Start()
	m.background.Start()
}

// Stop halts both loops, waiting for in-flight cycles
func (m *Memory) Stop() {
	m.consolidation.Stop()
	m.background.Stop()
}

// GetStats aggregates statistics across all components
func (m *Memory) GetStats() *Stats {
	return &Stats{
		Trajectories:    m.trajectories.GetStats(),
		PatternSamples:  m.patterns.GetSampleCount(),
		PatternClusters: m.patterns.GetClusterCount(),
		Consolidation:   m.consolidation.GetStats(),
		BackgroundSize:  m.background.BufferSize(),
		LearnedPatterns: len(m.background.GetPatterns()),
		Instant:         m.instant.GetStats(),
	}
}
