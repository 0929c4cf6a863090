package pattern

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// SnapshotStore persists named pattern sets durably. The Postgres
// implementation lives in this package; others can be plugged in.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, name string, patterns []*sona.Pattern) error
	LoadSnapshot(ctx context.Context, name string) ([]*sona.Pattern, error)
	DeleteSnapshot(ctx context.Context, name string) error
}

// LoopConfig holds configuration for the consolidation loop
type LoopConfig struct {
	IntervalMs                  int  // Tick interval for deep consolidation, default 60000
	MinPatternsForConsolidation int  // Deep consolidation is a no-op below this, default 10
	NumClusters                 int  // Fixed cluster count for re-clustering; 0 derives from pattern count
	ClusteringIterations        int  // K-means style refinement rounds, default 3
	AutoStart                   bool // Start the ticker from the constructor
	Engine                      *EngineConfig
	Snapshots                   SnapshotStore
	Logger                      log.Logger
}

// LoopStats tracks running statistics across consolidation runs
type LoopStats struct {
	TotalRuns              int       `json:"total_runs"`
	LastRunAt              time.Time `json:"last_run_at"`
	TotalPatternsProcessed int       `json:"total_patterns_processed"`
}

// DeepConsolidationResult reports what one deep consolidation run did
type DeepConsolidationResult struct {
	ConsolidationResult
	ClustersFormed int           `json:"clusters_formed"`
	Duration       time.Duration `json:"duration"`
}

// Loop owns a working pattern set and an embedded consolidation engine, and
// periodically re-clusters and consolidates the set.
type Loop struct {
	patterns map[string]*sona.Pattern
	engine   *Engine

	intervalMs  int
	minPatterns int
	numClusters int
	iterations  int
	snapshots   SnapshotStore
	logger      log.Logger

	stats    LoopStats
	running  bool
	inFlight atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// NewLoop creates a new consolidation loop
func NewLoop(config *LoopConfig) *Loop {
	if config == nil {
		config = &LoopConfig{}
	}

	intervalMs := config.IntervalMs
	if intervalMs <= 0 {
		intervalMs = 60000
	}
	minPatterns := config.MinPatternsForConsolidation
	if minPatterns <= 0 {
		minPatterns = 10
	}
	iterations := config.ClusteringIterations
	if iterations <= 0 {
		iterations = 3
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix(nil, "consolidation")
	}

	l := &Loop{
		patterns:    make(map[string]*sona.Pattern),
		engine:      NewEngine(config.Engine),
		intervalMs:  intervalMs,
		minPatterns: minPatterns,
		numClusters: config.NumClusters,
		iterations:  iterations,
		snapshots:   config.Snapshots,
		logger:      logger,
	}

	if config.AutoStart {
		l.Start()
	}
	return l
}

// Engine returns the embedded consolidation engine
func (l *Loop) Engine() *Engine {
	return l.engine
}

// AddPattern adds one pattern to the working set, replacing any with the
// same id.
func (l *Loop) AddPattern(p *sona.Pattern) {
	if p == nil || p.ID == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns[p.ID] = p.Clone()
}

// AddPatterns adds multiple patterns to the working set
func (l *Loop) AddPatterns(patterns []*sona.Pattern) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range patterns {
		if p == nil || p.ID == "" {
			continue
		}
		l.patterns[p.ID] = p.Clone()
	}
}

// RemovePattern removes a pattern from the working set and reports whether
// it existed.
func (l *Loop) RemovePattern(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.patterns[id]; !ok {
		return false
	}
	delete(l.patterns, id)
	return true
}

// ClearPatterns removes all patterns from the working set
func (l *Loop) ClearPatterns() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns = make(map[string]*sona.Pattern)
}

// GetPattern returns the pattern with the given id, or nil
func (l *Loop) GetPattern(id string) *sona.Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if p, ok := l.patterns[id]; ok {
		return p.Clone()
	}
	return nil
}

// GetAllPatterns returns a copy of the working pattern set
func (l *Loop) GetAllPatterns() []*sona.Pattern {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*sona.Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		out = append(out, p.Clone())
	}
	return out
}

// GetStats returns the loop's running statistics
func (l *Loop) GetStats() LoopStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}

// RunDeepConsolidation re-clusters the working set over the configured number
// of refinement rounds and consolidates the result. It returns nil when the
// pattern count is below the minimum or when a run is already in flight.
func (l *Loop) RunDeepConsolidation() *DeepConsolidationResult {
	if !l.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer l.inFlight.Store(false)

	start := time.Now()

	l.mu.RLock()
	if len(l.patterns) < l.minPatterns {
		l.mu.RUnlock()
		return nil
	}
	working := make([]*sona.Pattern, 0, len(l.patterns))
	for _, p := range l.patterns {
		working = append(working, p.Clone())
	}
	l.mu.RUnlock()

	protected := make(map[string]bool)
	for _, id := range l.engine.GetProtectedIDs() {
		protected[id] = true
	}

	clustered := l.recluster(working, protected)
	consolidated, consolidationResult := l.engine.Consolidate(clustered)

	l.mu.Lock()
	l.patterns = make(map[string]*sona.Pattern, len(consolidated))
	for _, p := range consolidated {
		l.patterns[p.ID] = p
	}
	l.stats.TotalRuns++
	l.stats.LastRunAt = time.Now()
	l.stats.TotalPatternsProcessed += len(working)
	l.mu.Unlock()

	result := &DeepConsolidationResult{
		ConsolidationResult: *consolidationResult,
		ClustersFormed:      len(clustered),
		Duration:            time.Since(start),
	}

	l.logger.Info("deep consolidation: %d -> %d patterns in %s",
		result.PatternsBefore, result.PatternsAfter, result.Duration)
	return result
}

// recluster runs k-means style iterations over the unprotected patterns,
// weighting each pattern by its cluster size. Protected patterns pass
// through unchanged.
func (l *Loop) recluster(patterns []*sona.Pattern, protected map[string]bool) []*sona.Pattern {
	var free []*sona.Pattern
	var kept []*sona.Pattern
	for _, p := range patterns {
		if protected[p.ID] {
			kept = append(kept, p)
		} else {
			free = append(free, p)
		}
	}

	k := l.numClusters
	if k <= 0 {
		k = int(math.Ceil(math.Sqrt(float64(len(free)))))
	}
	if k <= 0 || k >= len(free) {
		return patterns
	}

	// Seed centroids from evenly spaced patterns.
	centroids := make([][]float32, k)
	for i := 0; i < k; i++ {
		centroids[i] = append([]float32(nil), free[i*len(free)/k].Centroid...)
	}

	assignment := make([]int, len(free))
	for round := 0; round < l.iterations; round++ {
		for i, p := range free {
			best, bestSim := 0, -1.0
			for c, centroid := range centroids {
				sim := sona.CosineSimilarity(p.Centroid, centroid)
				if sim > bestSim {
					bestSim = sim
					best = c
				}
			}
			assignment[i] = best
		}

		for c := range centroids {
			var vectors [][]float32
			var weights []float64
			for i, p := range free {
				if assignment[i] == c {
					vectors = append(vectors, p.Centroid)
					weights = append(weights, math.Max(1, float64(p.ClusterSize)))
				}
			}
			if mean := sona.WeightedMeanVector(vectors, weights); mean != nil {
				centroids[c] = mean
			}
		}
	}

	out := make([]*sona.Pattern, 0, k+len(kept))
	for c, centroid := range centroids {
		cluster := &sona.Pattern{
			ID:          sona.NewID(),
			Centroid:    centroid,
			LastUpdated: time.Now(),
		}

		totalWeight := 0.0
		for i, p := range free {
			if assignment[i] != c {
				continue
			}
			w := math.Max(1, float64(p.ClusterSize))
			cluster.Members = append(cluster.Members, p.Members...)
			cluster.ClusterSize += p.ClusterSize
			cluster.AvgQuality += p.AvgQuality * w
			totalWeight += w
		}
		if totalWeight == 0 {
			continue
		}
		cluster.AvgQuality /= totalWeight
		if cluster.ClusterSize <= 0 {
			cluster.ClusterSize = len(cluster.Members)
		}
		out = append(out, cluster)
	}

	return append(out, kept...)
}

// MergePatterns consolidates new patterns into the working set without the
// full re-clustering pass.
func (l *Loop) MergePatterns(newPatterns []*sona.Pattern) *ConsolidationResult {
	l.mu.Lock()
	combined := make([]*sona.Pattern, 0, len(l.patterns)+len(newPatterns))
	for _, p := range l.patterns {
		combined = append(combined, p)
	}
	for _, p := range newPatterns {
		if p == nil || p.ID == "" {
			continue
		}
		combined = append(combined, p.Clone())
	}
	l.mu.Unlock()

	consolidated, result := l.engine.Consolidate(combined)

	l.mu.Lock()
	l.patterns = make(map[string]*sona.Pattern, len(consolidated))
	for _, p := range consolidated {
		l.patterns[p.ID] = p
	}
	l.mu.Unlock()

	return result
}

// Start begins the periodic consolidation ticker
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	stopCh := l.stopCh
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(time.Duration(l.intervalMs) * time.Millisecond)
		defer ticker.Stop()

		l.logger.Debug("consolidation loop started, interval %dms", l.intervalMs)

		for {
			select {
			case <-ticker.C:
				l.RunDeepConsolidation()
			case <-stopCh:
				l.logger.Debug("consolidation loop stopped")
				return
			}
		}
	}()
}

// Stop halts the ticker and waits for any in-flight run to finish
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
}

// IsRunning reports whether the periodic ticker is active
func (l *Loop) IsRunning() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.running
}

// SaveSnapshot persists the working pattern set to the snapshot store
func (l *Loop) SaveSnapshot(ctx context.Context, name string) error {
	if l.snapshots == nil {
		return sona.NewValidationError("snapshots", "no snapshot store configured")
	}
	return l.snapshots.SaveSnapshot(ctx, name, l.GetAllPatterns())
}

// LoadSnapshot replaces the working pattern set from the snapshot store
func (l *Loop) LoadSnapshot(ctx context.Context, name string) (int, error) {
	if l.snapshots == nil {
		return 0, sona.NewValidationError("snapshots", "no snapshot store configured")
	}

	patterns, err := l.snapshots.LoadSnapshot(ctx, name)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.patterns = make(map[string]*sona.Pattern, len(patterns))
	for _, p := range patterns {
		if p == nil || p.ID == "" {
			continue
		}
		l.patterns[p.ID] = p
	}
	return len(l.patterns), nil
}
