package pattern

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// StoreConfig holds configuration for the pattern store
type StoreConfig struct {
	QualityThreshold     float64 // Samples below this relevance are rejected, default 0.5
	MinSamplesPerCluster int     // Clustering triggers at 2x this sample count, default 3
	NewClusterThreshold  float64 // Similarity below which a new cluster spawns, default 0.75
	Logger               log.Logger
}

// Store accumulates high-quality samples and groups them into clusters
type Store struct {
	samples      []*sona.PatternSample
	sampleIndex  map[string]*sona.PatternSample
	clusters     []*sona.Pattern
	qualityMin   float64
	minPerChunk  int
	newClusterAt float64
	logger       log.Logger
	mu           sync.RWMutex
}

// storeDump is the JSON shape produced by Export and consumed by Import
type storeDump struct {
	Clusters json.RawMessage `json:"clusters"`
	Samples  json.RawMessage `json:"samples"`
}

// NewStore creates a new pattern store
func NewStore(config *StoreConfig) *Store {
	if config == nil {
		config = &StoreConfig{}
	}

	qualityMin := config.QualityThreshold
	if qualityMin <= 0 {
		qualityMin = 0.5
	}
	minPerCluster := config.MinSamplesPerCluster
	if minPerCluster <= 0 {
		minPerCluster = 3
	}
	newClusterAt := config.NewClusterThreshold
	if newClusterAt <= 0 {
		newClusterAt = 0.75
	}
	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Store{
		samples:      make([]*sona.PatternSample, 0),
		sampleIndex:  make(map[string]*sona.PatternSample),
		clusters:     make([]*sona.Pattern, 0),
		qualityMin:   qualityMin,
		minPerChunk:  minPerCluster,
		newClusterAt: newClusterAt,
		logger:       logger,
	}
}

// AddSample accepts a sample if its relevance meets the quality threshold.
// Rejection is silent. Once the accumulated count reaches twice the minimum
// samples per cluster, clustering triggers automatically.
func (s *Store) AddSample(sample *sona.PatternSample) {
	if sample == nil || sample.RelevanceScore < s.qualityMin {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sample.ID == "" {
		sample.ID = sona.NewID()
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	s.samples = append(s.samples, sample)
	s.sampleIndex[sample.ID] = sample

	if len(s.samples) >= 2*s.minPerChunk {
		s.clusterLocked()
	}
}

// Cluster rebuilds the cluster set from the accumulated samples using greedy
// nearest-centroid assignment and returns the number of clusters.
func (s *Store) Cluster() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clusterLocked()
}

func (s *Store) clusterLocked() int {
	clusters := make([]*sona.Pattern, 0)

	for _, sample := range s.samples {
		var best *sona.Pattern
		bestSim := 0.0

		for _, c := range clusters {
			sim := sona.CosineSimilarity(sample.QueryVector, c.Centroid)
			if sim > bestSim {
				bestSim = sim
				best = c
			}
		}

		if best == nil || bestSim < s.newClusterAt {
			clusters = append(clusters, &sona.Pattern{
				ID:          sona.NewID(),
				Centroid:    append([]float32(nil), sample.QueryVector...),
				Members:     []string{sample.ID},
				ClusterSize: 1,
				AvgQuality:  sample.RelevanceScore,
				LastUpdated: time.Now(),
			})
			continue
		}

		// Running means keep the centroid and quality consistent with the
		// member count.
		n := float64(best.ClusterSize)
		for i := range best.Centroid {
			if i < len(sample.QueryVector) {
				best.Centroid[i] = float32((float64(best.Centroid[i])*n + float64(sample.QueryVector[i])) / (n + 1))
			}
		}
		best.AvgQuality = (best.AvgQuality*n + sample.RelevanceScore) / (n + 1)
		best.Members = append(best.Members, sample.ID)
		best.ClusterSize++
		best.LastUpdated = time.Now()
	}

	s.clusters = clusters
	s.logger.Debug("pattern store clustered %d samples into %d clusters", len(s.samples), len(clusters))
	return len(clusters)
}

// FindSimilar returns clusters ranked by cosine similarity of their centroid
// to the query vector. Empty when no clusters exist.
func (s *Store) FindSimilar(queryVector []float32, limit int) []*sona.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.clusters) == 0 {
		return []*sona.Pattern{}
	}

	type scored struct {
		cluster *sona.Pattern
		score   float64
	}

	scores := make([]scored, len(s.clusters))
	for i, c := range s.clusters {
		scores[i] = scored{cluster: c, score: sona.CosineSimilarity(queryVector, c.Centroid)}
	}

	sort.Slice(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	if limit > 0 && limit < len(scores) {
		scores = scores[:limit]
	}

	result := make([]*sona.Pattern, len(scores))
	for i, sc := range scores {
		result[i] = sc.cluster
	}
	return result
}

// UpdateFromFeedback updates a sample's relevance score in place. Unknown
// ids are a no-op.
func (s *Store) UpdateFromFeedback(sampleID string, newScore float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sample, ok := s.sampleIndex[sampleID]; ok {
		sample.RelevanceScore = newScore
	}
}

// GetSampleCount returns the number of accumulated samples
func (s *Store) GetSampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}

// GetClusterCount returns the number of clusters
func (s *Store) GetClusterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clusters)
}

// Clusters returns a copy of the current cluster set
func (s *Store) Clusters() []*sona.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*sona.Pattern, len(s.clusters))
	for i, c := range s.clusters {
		out[i] = c.Clone()
	}
	return out
}

// Export serializes the clusters and samples to JSON
func (s *Store) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return json.Marshal(map[string]any{
		"clusters": s.clusters,
		"samples":  s.samples,
	})
}

// Import replaces the store contents with previously exported data. Malformed
// shapes fail with a ValidationError.
func (s *Store) Import(data []byte) error {
	var envelope storeDump
	if err := json.Unmarshal(data, &envelope); err != nil {
		return sona.NewValidationError("data", "not a valid JSON object")
	}

	if len(envelope.Clusters) == 0 {
		return sona.NewValidationError("clusters", "missing required field")
	}

	var clusters []*sona.Pattern
	if err := json.Unmarshal(envelope.Clusters, &clusters); err != nil {
		return sona.NewValidationError("clusters", "must be an array of clusters")
	}
	for _, c := range clusters {
		if c == nil || c.ID == "" || len(c.Centroid) == 0 {
			return sona.NewValidationError("clusters", "cluster missing id or centroid")
		}
	}

	var samples []*sona.PatternSample
	if len(envelope.Samples) > 0 {
		if err := json.Unmarshal(envelope.Samples, &samples); err != nil {
			return sona.NewValidationError("samples", "must be an array of samples")
		}
	}
	// Validate everything before touching state so a failed import leaves
	// the store unchanged.
	for _, sample := range samples {
		if sample == nil || sample.ID == "" {
			return sona.NewValidationError("samples", "sample missing id")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clusters = clusters
	s.samples = make([]*sona.PatternSample, 0, len(samples))
	s.samples = append(s.samples, samples...)
	s.sampleIndex = make(map[string]*sona.PatternSample, len(samples))
	for _, sample := range samples {
		s.sampleIndex[sample.ID] = sample
	}

	return nil
}
