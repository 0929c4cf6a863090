package feedback

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// BackgroundConfig holds configuration for the background feedback loop
type BackgroundConfig struct {
	MaxTrajectories     int           // Ring buffer cap, default 1000
	LookbackWindow      time.Duration // Only trajectories this recent feed a cycle, default 1h
	QualityThreshold    float64       // Minimum quality for a trajectory to form a pattern, default 0.5
	SimilarityThreshold float64       // Merge into an existing pattern above this, default 0.85
	IntervalMs          int           // Tick interval for periodic cycles, default 60000
	MaxStatsHistory     int           // Per-cycle stats retained, default 100
	Disabled            bool
	Logger              log.Logger
}

// CycleResult reports what one background cycle did. A zero-effect result
// with Skipped set means the cycle did not run (disabled, empty buffer, or
// another cycle in flight).
type CycleResult struct {
	TrajectoriesProcessed int           `json:"trajectories_processed"`
	PatternsCreated       int           `json:"patterns_created"`
	PatternsMerged        int           `json:"patterns_merged"`
	Skipped               bool          `json:"skipped,omitempty"`
	RanAt                 time.Time     `json:"ran_at"`
	Duration              time.Duration `json:"duration"`
}

// BackgroundLoop buffers trajectories and periodically distills the recent
// high-quality ones into patterns.
type BackgroundLoop struct {
	buffer   []*sona.Trajectory
	patterns map[string]*sona.Pattern
	history  []CycleResult

	maxBuffer  int
	lookback   time.Duration
	qualityMin float64
	mergeAt    float64
	intervalMs int
	maxHistory int
	disabled   bool
	logger     log.Logger

	running  bool
	inFlight atomic.Bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.RWMutex
}

// NewBackgroundLoop creates a new background feedback loop
func NewBackgroundLoop(config *BackgroundConfig) *BackgroundLoop {
	if config == nil {
		config = &BackgroundConfig{}
	}

	maxBuffer := config.MaxTrajectories
	if maxBuffer <= 0 {
		maxBuffer = 1000
	}
	lookback := config.LookbackWindow
	if lookback <= 0 {
		lookback = time.Hour
	}
	qualityMin := config.QualityThreshold
	if qualityMin <= 0 {
		qualityMin = 0.5
	}
	mergeAt := config.SimilarityThreshold
	if mergeAt <= 0 {
		mergeAt = 0.85
	}
	intervalMs := config.IntervalMs
	if intervalMs <= 0 {
		intervalMs = 60000
	}
	maxHistory := config.MaxStatsHistory
	if maxHistory <= 0 {
		maxHistory = 100
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix(nil, "background-loop")
	}

	return &BackgroundLoop{
		buffer:     make([]*sona.Trajectory, 0),
		patterns:   make(map[string]*sona.Pattern),
		history:    make([]CycleResult, 0),
		maxBuffer:  maxBuffer,
		lookback:   lookback,
		qualityMin: qualityMin,
		mergeAt:    mergeAt,
		intervalMs: intervalMs,
		maxHistory: maxHistory,
		disabled:   config.Disabled,
		logger:     logger,
	}
}

// RecordTrajectory buffers a copy of the trajectory in the ring buffer,
// dropping the oldest once the cap is reached. No-op when the loop is
// disabled. The caller keeps ownership of the argument.
func (b *BackgroundLoop) RecordTrajectory(t *sona.Trajectory) {
	if b.disabled || t == nil {
		return
	}

	cp := t.Clone()
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = append(b.buffer, cp)
	if len(b.buffer) > b.maxBuffer {
		b.buffer = b.buffer[len(b.buffer)-b.maxBuffer:]
	}
}

// NoteFeedback sets feedback on the buffered copy of a trajectory, so
// feedback arriving between recording and the next cycle still counts.
// Trajectories already drained by a cycle are unaffected.
func (b *BackgroundLoop) NoteFeedback(id string, score float64) {
	if b.disabled || id == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range b.buffer {
		if t.ID == id {
			fb := score
			t.Feedback = &fb
			return
		}
	}
}

// BufferSize returns the number of buffered trajectories
func (b *BackgroundLoop) BufferSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffer)
}

// RunCycle drains the buffer and folds recent high-quality trajectories
// into the pattern set. Disabled loops, empty buffers, and overlapping
// invocations all return a zero-effect result.
func (b *BackgroundLoop) RunCycle() CycleResult {
	if b.disabled {
		return CycleResult{Skipped: true}
	}
	if !b.inFlight.CompareAndSwap(false, true) {
		return CycleResult{Skipped: true}
	}
	defer b.inFlight.Store(false)

	start := time.Now()

	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return CycleResult{Skipped: true}
	}
	batch := b.buffer
	b.buffer = make([]*sona.Trajectory, 0)
	b.mu.Unlock()

	cutoff := start.Add(-b.lookback)
	result := CycleResult{RanAt: start}

	var created, merged []*sona.Pattern
	for _, t := range batch {
		if t.Timestamp.Before(cutoff) || len(t.QueryVector) == 0 {
			continue
		}
		quality, ok := b.trajectoryQuality(t)
		if !ok || quality < b.qualityMin {
			continue
		}
		result.TrajectoriesProcessed++

		b.mu.Lock()
		if p := b.bestMatchLocked(t.QueryVector); p != nil {
			mergeIntoPattern(p, t.QueryVector, quality, t.ID)
			merged = append(merged, p)
			result.PatternsMerged++
		} else {
			p := &sona.Pattern{
				ID:          sona.NewID(),
				Centroid:    append([]float32(nil), t.QueryVector...),
				Members:     []string{t.ID},
				ClusterSize: 1,
				AvgQuality:  quality,
				LastUpdated: time.Now(),
			}
			b.patterns[p.ID] = p
			created = append(created, p)
			result.PatternsCreated++
		}
		b.mu.Unlock()
	}

	result.Duration = time.Since(start)

	b.mu.Lock()
	b.history = append(b.history, result)
	if len(b.history) > b.maxHistory {
		b.history = b.history[len(b.history)-b.maxHistory:]
	}
	b.mu.Unlock()

	b.logger.Debug("background cycle: %d trajectories, %d patterns created, %d merged",
		result.TrajectoriesProcessed, result.PatternsCreated, result.PatternsMerged)
	return result
}

// trajectoryQuality scores a trajectory: explicit feedback when present,
// otherwise the mean result score.
func (b *BackgroundLoop) trajectoryQuality(t *sona.Trajectory) (float64, bool) {
	if t.HasFeedback() {
		return *t.Feedback, true
	}
	if len(t.ResultScores) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, s := range t.ResultScores {
		sum += s
	}
	return sum / float64(len(t.ResultScores)), true
}

func (b *BackgroundLoop) bestMatchLocked(vector []float32) *sona.Pattern {
	var best *sona.Pattern
	bestSim := 0.0
	for _, p := range b.patterns {
		sim := sona.CosineSimilarity(vector, p.Centroid)
		if sim > bestSim {
			bestSim = sim
			best = p
		}
	}
	if best == nil || bestSim < b.mergeAt {
		return nil
	}
	return best
}

func mergeIntoPattern(p *sona.Pattern, vector []float32, quality float64, memberID string) {
	n := float64(p.ClusterSize)
	for i := range p.Centroid {
		if i < len(vector) {
			p.Centroid[i] = float32((float64(p.Centroid[i])*n + float64(vector[i])) / (n + 1))
		}
	}
	p.AvgQuality = (p.AvgQuality*n + quality) / (n + 1)
	p.Members = append(p.Members, memberID)
	p.ClusterSize++
	p.LastUpdated = time.Now()
}

// GetPatterns returns a copy of the learned pattern set
func (b *BackgroundLoop) GetPatterns() []*sona.Pattern {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*sona.Pattern, 0, len(b.patterns))
	for _, p := range b.patterns {
		out = append(out, p.Clone())
	}
	return out
}

// StatsHistory returns the retained per-cycle results, oldest first
func (b *BackgroundLoop) StatsHistory() []CycleResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]CycleResult(nil), b.history...)
}

// Reset clears the buffer, the pattern set, and the stats history
func (b *BackgroundLoop) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = make([]*sona.Trajectory, 0)
	b.patterns = make(map[string]*sona.Pattern)
	b.history = make([]CycleResult, 0)
}

// Start begins periodic cycles on the configured interval
func (b *BackgroundLoop) Start() {
	b.mu.Lock()
	if b.running || b.disabled {
		b.mu.Unlock()
		return
	}
	b.running = true
	b.stopCh = make(chan struct{})
	stopCh := b.stopCh
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(time.Duration(b.intervalMs) * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				b.RunCycle()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts periodic cycles, letting any in-flight cycle finish
func (b *BackgroundLoop) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	close(b.stopCh)
	b.mu.Unlock()

	b.wg.Wait()
}

// IsActive reports whether the periodic ticker is running
func (b *BackgroundLoop) IsActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}
