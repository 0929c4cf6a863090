package trajectory

import (
	"sort"
	"sync"
	"time"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

const pruneTargetRatio = 0.9

// Config holds configuration for the trajectory store
type Config struct {
	MaxTrajectories int  // Capacity bound, default 1000
	Disabled        bool // When true, Record is a no-op returning an empty id
	Logger          log.Logger
}

// RecordInput is the payload for recording one query/result interaction
type RecordInput struct {
	Query        string
	QueryVector  []float32
	ResultIDs    []string
	ResultScores []float64
	SessionID    string
	Metadata     map[string]any
}

// RecentOptions filters GetRecent results
type RecentOptions struct {
	Limit            int
	SessionID        string
	WithFeedbackOnly bool
	MinFeedbackScore *float64
}

// SimilarTrajectory pairs a trajectory with its similarity to a query vector
type SimilarTrajectory struct {
	Trajectory *sona.Trajectory
	Similarity float64
}

// Stats summarizes the store contents
type Stats struct {
	TotalTrajectories int       `json:"total_trajectories"`
	WithFeedback      int       `json:"with_feedback"`
	AvgFeedback       float64   `json:"avg_feedback"`
	OldestTimestamp   time.Time `json:"oldest_timestamp"`
	NewestTimestamp   time.Time `json:"newest_timestamp"`
}

// Store is an append-only, capacity-bounded log of trajectories
type Store struct {
	trajectories []*sona.Trajectory
	index        map[string]*sona.Trajectory
	maxSize      int
	disabled     bool
	logger       log.Logger
	mu           sync.RWMutex
}

// NewStore creates a new trajectory store
func NewStore(config *Config) *Store {
	if config == nil {
		config = &Config{}
	}

	maxSize := config.MaxTrajectories
	if maxSize <= 0 {
		maxSize = 1000
	}

	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Store{
		trajectories: make([]*sona.Trajectory, 0),
		index:        make(map[string]*sona.Trajectory),
		maxSize:      maxSize,
		disabled:     config.Disabled,
		logger:       logger,
	}
}

// Record appends a new trajectory and returns its id. When recording is
// disabled it returns an empty id and performs no mutation.
func (s *Store) Record(input *RecordInput) (string, error) {
	if s.disabled {
		return "", nil
	}
	if input == nil {
		return "", sona.NewValidationError("input", "must not be nil")
	}
	if len(input.ResultIDs) != len(input.ResultScores) {
		return "", sona.NewValidationError("result_scores", "length must match result_ids")
	}

	t := &sona.Trajectory{
		ID:           sona.NewID(),
		Query:        input.Query,
		QueryVector:  input.QueryVector,
		ResultIDs:    input.ResultIDs,
		ResultScores: input.ResultScores,
		Timestamp:    time.Now(),
		SessionID:    input.SessionID,
		Metadata:     input.Metadata,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.trajectories = append(s.trajectories, t)
	s.index[t.ID] = t

	if len(s.trajectories) > s.maxSize {
		removed := s.pruneLocked()
		s.logger.Debug("trajectory store over capacity, pruned %d entries", removed)
	}

	return t.ID, nil
}

// Get retrieves a copy of a trajectory by id, or nil if it does not exist.
// Callers own the returned value; the store keeps its own copy.
func (s *Store) Get(id string) *sona.Trajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.index[id]
	if !ok {
		return nil
	}
	return t.Clone()
}

// AddFeedback sets feedback on a trajectory. Feedback is set once; calls for
// unknown ids or already-fed trajectories report false.
func (s *Store) AddFeedback(id string, score float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.index[id]
	if !ok || t.Feedback != nil {
		return false
	}

	t.Feedback = &score
	return true
}

// GetRecent returns trajectories newest-first, filtered by the options
func (s *Store) GetRecent(opts *RecentOptions) []*sona.Trajectory {
	if opts == nil {
		opts = &RecentOptions{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*sona.Trajectory, 0)
	for i := len(s.trajectories) - 1; i >= 0; i-- {
		t := s.trajectories[i]

		if opts.SessionID != "" && t.SessionID != opts.SessionID {
			continue
		}
		if opts.WithFeedbackOnly && t.Feedback == nil {
			continue
		}
		if opts.MinFeedbackScore != nil {
			if t.Feedback == nil || *t.Feedback < *opts.MinFeedbackScore {
				continue
			}
		}

		result = append(result, t.Clone())
		if opts.Limit > 0 && len(result) >= opts.Limit {
			break
		}
	}

	return result
}

// FindSimilar returns trajectories whose query vector is cosine-similar to
// the given vector, sorted descending and truncated to limit. Entries below
// minSimilarity are never returned.
func (s *Store) FindSimilar(queryVector []float32, limit int, minSimilarity float64) []SimilarTrajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]SimilarTrajectory, 0)
	for _, t := range s.trajectories {
		sim := sona.CosineSimilarity(queryVector, t.QueryVector)
		if sim >= minSimilarity {
			matches = append(matches, SimilarTrajectory{Trajectory: t.Clone(), Similarity: sim})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Prune removes trajectories until the store is at or under 90% of its
// capacity and returns the number removed. Trajectories without feedback go
// first, oldest first; feedback-bearing trajectories are only removed if the
// store is still over target.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pruneLocked()
}

func (s *Store) pruneLocked() int {
	target := int(float64(s.maxSize) * pruneTargetRatio)
	if len(s.trajectories) <= target {
		return 0
	}

	toRemove := len(s.trajectories) - target
	removeIDs := make(map[string]bool, toRemove)

	// Trajectories are stored in insertion order, so a forward scan visits
	// oldest entries first.
	for _, t := range s.trajectories {
		if len(removeIDs) >= toRemove {
			break
		}
		if t.Feedback == nil {
			removeIDs[t.ID] = true
		}
	}
	for _, t := range s.trajectories {
		if len(removeIDs) >= toRemove {
			break
		}
		if !removeIDs[t.ID] {
			removeIDs[t.ID] = true
		}
	}

	kept := make([]*sona.Trajectory, 0, target)
	for _, t := range s.trajectories {
		if removeIDs[t.ID] {
			delete(s.index, t.ID)
			continue
		}
		kept = append(kept, t)
	}
	s.trajectories = kept

	return len(removeIDs)
}

// Count returns the number of stored trajectories
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trajectories)
}

// Export returns copies of all trajectories in insertion order
func (s *Store) Export() []*sona.Trajectory {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*sona.Trajectory, len(s.trajectories))
	for i, t := range s.trajectories {
		out[i] = t.Clone()
	}
	return out
}

// Import appends trajectories, skipping ids already present, and returns the
// number imported. Existing records are left untouched on skip.
func (s *Store) Import(list []*sona.Trajectory) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	imported := 0
	for _, t := range list {
		if t == nil || t.ID == "" {
			continue
		}
		if _, exists := s.index[t.ID]; exists {
			continue
		}

		cp := t.Clone()
		s.trajectories = append(s.trajectories, cp)
		s.index[cp.ID] = cp
		imported++
	}

	if len(s.trajectories) > s.maxSize {
		s.pruneLocked()
	}

	return imported
}

// GetStats returns statistics about the store contents
func (s *Store) GetStats() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{TotalTrajectories: len(s.trajectories)}

	totalFeedback := 0.0
	for i, t := range s.trajectories {
		if t.Feedback != nil {
			stats.WithFeedback++
			totalFeedback += *t.Feedback
		}
		if i == 0 || t.Timestamp.Before(stats.OldestTimestamp) {
			stats.OldestTimestamp = t.Timestamp
		}
		if t.Timestamp.After(stats.NewestTimestamp) {
			stats.NewestTimestamp = t.Timestamp
		}
	}

	if stats.WithFeedback > 0 {
		stats.AvgFeedback = totalFeedback / float64(stats.WithFeedback)
	}

	return stats
}
