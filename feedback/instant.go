package feedback

import (
	"math"
	"sync"
	"time"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// Feedback type labels carried on events. The loop only branches on the
// score, the label is kept for stats and logging.
const (
	FeedbackExplicit = "explicit"
	FeedbackImplicit = "implicit"
)

// Event is one immediate feedback signal about a query/result pair
type Event struct {
	QueryVector  []float32 `json:"query_vector"`
	ResultVector []float32 `json:"result_vector"`
	Score        float64   `json:"score"`
	FeedbackType string    `json:"feedback_type,omitempty"`
}

// InstantConfig holds configuration for the instant feedback loop
type InstantConfig struct {
	QualityThreshold float64 // Scores at or above count as positive, default 0.5
	LearningRate     float64 // Step size toward the boost target, default 0.1
	Margin           float64 // Boost targets are 1±Margin, default 0.2
	MatchThreshold   float64 // Cosine similarity treated as the same vector, default 0.95
	MaxPatterns      int     // Tracked boost entries, stalest evicted, default 100
	DecayRate        float64 // Step toward neutral per ApplyDecay, default 0.1
	Epsilon          float64 // Entries within this of 1.0 are dropped on decay, default 0.01
	Disabled         bool
	Logger           log.Logger
}

// InstantStats summarizes the loop's activity since the last Reset
type InstantStats struct {
	FeedbackProcessed   int     `json:"feedback_processed"`
	PositiveBoosts      int     `json:"positive_boosts"`
	NegativeBoosts      int     `json:"negative_boosts"`
	PatternsTracked     int     `json:"patterns_tracked"`
	AvgProcessingTimeMs float64 `json:"avg_processing_time_ms"`
}

type boostEntry struct {
	vector      []float32
	boost       float64
	lastUpdated time.Time
}

// InstantLoop maintains transient multiplicative boosts learned from
// immediate feedback, keyed by approximate vector identity.
type InstantLoop struct {
	entries []*boostEntry

	qualityMin   float64
	learningRate float64
	margin       float64
	matchAt      float64
	maxEntries   int
	decayRate    float64
	epsilon      float64
	disabled     bool
	logger       log.Logger

	processed   int
	positive    int
	negative    int
	totalTimeMs float64
	mu          sync.RWMutex
}

// NewInstantLoop creates a new instant feedback loop
func NewInstantLoop(config *InstantConfig) *InstantLoop {
	if config == nil {
		config = &InstantConfig{}
	}

	qualityMin := config.QualityThreshold
	if qualityMin <= 0 {
		qualityMin = 0.5
	}
	learningRate := config.LearningRate
	if learningRate <= 0 {
		learningRate = 0.1
	}
	margin := config.Margin
	if margin <= 0 {
		margin = 0.2
	}
	matchAt := config.MatchThreshold
	if matchAt <= 0 {
		matchAt = 0.95
	}
	maxEntries := config.MaxPatterns
	if maxEntries <= 0 {
		maxEntries = 100
	}
	decayRate := config.DecayRate
	if decayRate <= 0 {
		decayRate = 0.1
	}
	epsilon := config.Epsilon
	if epsilon <= 0 {
		epsilon = 0.01
	}
	logger := config.Logger
	if logger == nil {
		logger = log.WithPrefix(nil, "instant-loop")
	}

	return &InstantLoop{
		entries:      make([]*boostEntry, 0),
		qualityMin:   qualityMin,
		learningRate: learningRate,
		margin:       margin,
		matchAt:      matchAt,
		maxEntries:   maxEntries,
		decayRate:    decayRate,
		epsilon:      epsilon,
		disabled:     config.Disabled,
		logger:       logger,
	}
}

// ProcessImmediateFeedback folds one feedback event into the boost set.
// Disabled loops and events without a usable vector degrade to a no-op.
func (l *InstantLoop) ProcessImmediateFeedback(event *Event) {
	if l.disabled || event == nil {
		return
	}

	vector := event.ResultVector
	if len(vector) == 0 {
		vector = event.QueryVector
	}
	if len(vector) == 0 || sona.IsZeroVector(vector) {
		return
	}

	start := time.Now()
	target := 1 + l.margin
	positive := event.Score >= l.qualityMin
	if !positive {
		target = 1 - l.margin
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry := l.nearestLocked(vector); entry != nil {
		entry.boost += (target - entry.boost) * l.learningRate
		entry.lastUpdated = time.Now()
	} else {
		l.entries = append(l.entries, &boostEntry{
			vector:      append([]float32(nil), vector...),
			boost:       1 + (target-1)*l.learningRate,
			lastUpdated: time.Now(),
		})
		if len(l.entries) > l.maxEntries {
			l.evictStalestLocked()
		}
	}

	l.processed++
	if positive {
		l.positive++
	} else {
		l.negative++
	}
	l.totalTimeMs += float64(time.Since(start).Microseconds()) / 1000.0
}

// nearestLocked returns the tracked entry closest to vector, or nil when no
// entry clears the match threshold.
func (l *InstantLoop) nearestLocked(vector []float32) *boostEntry {
	var best *boostEntry
	bestSim := 0.0
	for _, entry := range l.entries {
		sim := sona.CosineSimilarity(vector, entry.vector)
		if sim > bestSim {
			bestSim = sim
			best = entry
		}
	}
	if best == nil || bestSim < l.matchAt {
		return nil
	}
	return best
}

func (l *InstantLoop) evictStalestLocked() {
	stalest := 0
	for i, entry := range l.entries {
		if entry.lastUpdated.Before(l.entries[stalest].lastUpdated) {
			stalest = i
		}
	}
	l.entries = append(l.entries[:stalest], l.entries[stalest+1:]...)
}

// GetBoostForVector returns the boost of the nearest tracked entry, or 1.0
// when no entry matches the vector.
func (l *InstantLoop) GetBoostForVector(vector []float32) float64 {
	if l.disabled || len(vector) == 0 {
		return 1.0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if entry := l.nearestLocked(vector); entry != nil {
		return entry.boost
	}
	return 1.0
}

// ApplyDecay moves every boost toward neutral and drops entries once they
// are within epsilon of 1.0. Returns the number of entries removed.
func (l *InstantLoop) ApplyDecay() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	removed := 0
	for _, entry := range l.entries {
		entry.boost += (1.0 - entry.boost) * l.decayRate
		if math.Abs(entry.boost-1.0) < l.epsilon {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	l.entries = kept
	return removed
}

// Reset clears all boost entries and zeroes the stats
func (l *InstantLoop) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]*boostEntry, 0)
	l.processed = 0
	l.positive = 0
	l.negative = 0
	l.totalTimeMs = 0
}

// GetStats returns a snapshot of the loop's counters
func (l *InstantLoop) GetStats() InstantStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := InstantStats{
		FeedbackProcessed: l.processed,
		PositiveBoosts:    l.positive,
		NegativeBoosts:    l.negative,
		PatternsTracked:   len(l.entries),
	}
	if l.processed > 0 {
		stats.AvgProcessingTimeMs = l.totalTimeMs / float64(l.processed)
	}
	return stats
}
