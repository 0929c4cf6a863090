package pattern

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/smallnest/sona"
	"github.com/smallnest/sona/log"
)

// FisherRecord is the per-pattern diagonal Fisher-information approximation:
// an exponential moving average of squared update deltas.
type FisherRecord struct {
	PatternID   string    `json:"pattern_id"`
	Importance  []float64 `json:"importance"`
	SampleCount int       `json:"sample_count"`
}

// ProtectionRecord marks a pattern as resistant to pruning and merging
type ProtectionRecord struct {
	PatternID       string  `json:"pattern_id"`
	ProtectionLevel float64 `json:"protection_level"`
	Reason          string  `json:"reason"`
}

// ConsolidationResult reports what a consolidation pass did
type ConsolidationResult struct {
	PatternsBefore     int `json:"patterns_before"`
	PatternsAfter      int `json:"patterns_after"`
	PatternsPruned     int `json:"patterns_pruned"`
	ProtectedPreserved int `json:"protected_preserved"`
}

// EngineConfig holds configuration for the consolidation engine
type EngineConfig struct {
	Lambda         float64 // EWC penalty strength, default 1.0
	FisherDecay    float64 // EMA decay for importance, default 0.95
	MergeThreshold float64 // Centroid cosine distance under which patterns merge, default 0.85
	MaxPatterns    int     // Prune target after merging, default 100
	Logger         log.Logger
}

// Engine is the EWC-style consolidation core. It accumulates Fisher
// importance per pattern, penalizes updates to important patterns, and
// merges/prunes pattern sets while preserving protected patterns.
type Engine struct {
	fisher     map[string]*FisherRecord
	protection map[string]*ProtectionRecord

	lambda      float64
	fisherDecay float64
	mergeAt     float64
	maxPatterns int
	logger      log.Logger
	mu          sync.RWMutex
}

// NewEngine creates a new consolidation engine
func NewEngine(config *EngineConfig) *Engine {
	if config == nil {
		config = &EngineConfig{}
	}

	lambda := config.Lambda
	if lambda <= 0 {
		lambda = 1.0
	}
	decay := config.FisherDecay
	if decay <= 0 || decay >= 1 {
		decay = 0.95
	}
	mergeAt := config.MergeThreshold
	if mergeAt <= 0 {
		mergeAt = 0.85
	}
	maxPatterns := config.MaxPatterns
	if maxPatterns <= 0 {
		maxPatterns = 100
	}
	logger := config.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}

	return &Engine{
		fisher:      make(map[string]*FisherRecord),
		protection:  make(map[string]*ProtectionRecord),
		lambda:      lambda,
		fisherDecay: decay,
		mergeAt:     mergeAt,
		maxPatterns: maxPatterns,
		logger:      logger,
	}
}

// UpdateFisherInfo folds an update delta into the pattern's importance:
// importance = decay*importance + (1-decay)*delta^2, element-wise. The record
// is created on first update and only removed by ClearFisher.
func (e *Engine) UpdateFisherInfo(patternID string, delta []float32) {
	if patternID == "" || len(delta) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.fisher[patternID]
	if !ok {
		rec = &FisherRecord{
			PatternID:  patternID,
			Importance: make([]float64, len(delta)),
		}
		e.fisher[patternID] = rec
	}

	if len(rec.Importance) < len(delta) {
		grown := make([]float64, len(delta))
		copy(grown, rec.Importance)
		rec.Importance = grown
	}

	for i, d := range delta {
		sq := float64(d) * float64(d)
		rec.Importance[i] = e.fisherDecay*rec.Importance[i] + (1-e.fisherDecay)*sq
	}
	rec.SampleCount++
}

// ComputeImportance reduces the importance diagonal to a scalar (mean of
// magnitudes). Untracked patterns yield 0.
func (e *Engine) ComputeImportance(patternID string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.fisher[patternID]
	if !ok || len(rec.Importance) == 0 {
		return 0
	}

	sum := 0.0
	for _, imp := range rec.Importance {
		sum += math.Abs(imp)
	}
	return sum / float64(len(rec.Importance))
}

// ComputePenalty returns lambda * importance . delta^2, scaled up by the
// protection level for protected patterns. Untracked patterns yield 0.
func (e *Engine) ComputePenalty(patternID string, delta []float32) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rec, ok := e.fisher[patternID]
	if !ok {
		return 0
	}

	penalty := 0.0
	for i, d := range delta {
		if i >= len(rec.Importance) {
			break
		}
		penalty += rec.Importance[i] * float64(d) * float64(d)
	}
	penalty *= e.lambda

	if prot, ok := e.protection[patternID]; ok {
		penalty *= 1 + prot.ProtectionLevel
	}
	return penalty
}

// ProtectCritical marks patterns as protected against pruning and merging.
// The level is clamped to [0,1].
func (e *Engine) ProtectCritical(patternIDs []string, reason string, level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range patternIDs {
		if id == "" {
			continue
		}
		e.protection[id] = &ProtectionRecord{
			PatternID:       id,
			ProtectionLevel: level,
			Reason:          reason,
		}
	}
}

// Unprotect removes protection from the given patterns
func (e *Engine) Unprotect(patternIDs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range patternIDs {
		delete(e.protection, id)
	}
}

// GetProtection returns the protection record for a pattern, or nil
func (e *Engine) GetProtection(patternID string) *ProtectionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.protection[patternID]
}

// GetProtectedIDs returns the ids of all protected patterns
func (e *Engine) GetProtectedIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]string, 0, len(e.protection))
	for id := range e.protection {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClearFisher discards all Fisher records
func (e *Engine) ClearFisher() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fisher = make(map[string]*FisherRecord)
}

// FisherSampleCount returns how many updates a pattern has accumulated
func (e *Engine) FisherSampleCount(patternID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if rec, ok := e.fisher[patternID]; ok {
		return rec.SampleCount
	}
	return 0
}

// Consolidate merges similar patterns and prunes low-quality ones down to
// the pattern cap. Protected patterns always survive as representatives and
// are never pruned. Empty input yields an all-zero result.
func (e *Engine) Consolidate(patterns []*sona.Pattern) ([]*sona.Pattern, *ConsolidationResult) {
	result := &ConsolidationResult{PatternsBefore: len(patterns)}
	if len(patterns) == 0 {
		return []*sona.Pattern{}, result
	}

	e.mu.RLock()
	protected := make(map[string]bool, len(e.protection))
	for id := range e.protection {
		protected[id] = true
	}
	mergeAt := e.mergeAt
	maxPatterns := e.maxPatterns
	e.mu.RUnlock()

	working := make([]*sona.Pattern, len(patterns))
	for i, p := range patterns {
		working[i] = p.Clone()
	}

	merged := e.mergePass(working, protected, mergeAt)

	// Prune the lowest-quality unprotected patterns while over the cap.
	pruned := 0
	if len(merged) > maxPatterns {
		sort.Slice(merged, func(i, j int) bool {
			// Protected patterns sort last, out of the prune's reach.
			pi, pj := protected[merged[i].ID], protected[merged[j].ID]
			if pi != pj {
				return pj
			}
			return merged[i].AvgQuality < merged[j].AvgQuality
		})

		for len(merged) > maxPatterns && !protected[merged[0].ID] {
			merged = merged[1:]
			pruned++
		}
	}

	for _, p := range merged {
		if protected[p.ID] {
			result.ProtectedPreserved++
		}
	}

	result.PatternsAfter = len(merged)
	result.PatternsPruned = pruned

	e.logger.Debug("consolidation: %d -> %d patterns (%d pruned, %d protected)",
		result.PatternsBefore, result.PatternsAfter, pruned, result.ProtectedPreserved)

	return merged, result
}

// mergePass greedily merges pattern pairs whose centroid cosine distance is
// under the merge threshold. A protected pattern is always the surviving
// representative; two protected patterns never merge.
func (e *Engine) mergePass(patterns []*sona.Pattern, protected map[string]bool, mergeAt float64) []*sona.Pattern {
	absorbed := make(map[string]bool)

	for i := 0; i < len(patterns); i++ {
		a := patterns[i]
		if absorbed[a.ID] {
			continue
		}

		for j := i + 1; j < len(patterns); j++ {
			b := patterns[j]
			if absorbed[b.ID] {
				continue
			}
			if protected[a.ID] && protected[b.ID] {
				continue
			}

			dist := 1 - sona.CosineSimilarity(a.Centroid, b.Centroid)
			if dist >= mergeAt {
				continue
			}

			survivor, victim := a, b
			if protected[b.ID] && !protected[a.ID] {
				survivor, victim = b, a
			}

			mergePatternInto(survivor, victim)
			absorbed[victim.ID] = true

			if victim == a {
				break
			}
		}
	}

	out := make([]*sona.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if !absorbed[p.ID] {
			out = append(out, p)
		}
	}
	return out
}

// mergePatternInto folds victim into survivor, weighting the centroid by
// cluster size and summing the sizes.
func mergePatternInto(survivor, victim *sona.Pattern) {
	ws := float64(survivor.ClusterSize)
	wv := float64(victim.ClusterSize)
	if ws <= 0 {
		ws = 1
	}
	if wv <= 0 {
		wv = 1
	}
	total := ws + wv

	dim := len(survivor.Centroid)
	for i := 0; i < dim; i++ {
		var v float64
		if i < len(victim.Centroid) {
			v = float64(victim.Centroid[i])
		}
		survivor.Centroid[i] = float32((float64(survivor.Centroid[i])*ws + v*wv) / total)
	}

	survivor.AvgQuality = (survivor.AvgQuality*ws + victim.AvgQuality*wv) / total
	survivor.Members = append(survivor.Members, victim.Members...)
	survivor.ClusterSize = int(total)
	survivor.LastUpdated = time.Now()
}
