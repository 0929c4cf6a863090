package feedback

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/sona"
)

func trajectoryWith(vec []float32, feedback float64) *sona.Trajectory {
	return &sona.Trajectory{
		ID:          sona.NewID(),
		Query:       "q",
		QueryVector: vec,
		ResultIDs:   []string{"r1"},
		Feedback:    &feedback,
		Timestamp:   time.Now(),
	}
}

func TestBackgroundRecordTrajectory(t *testing.T) {
	t.Run("BufferCapDropsOldest", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{MaxTrajectories: 3})
		var first *sona.Trajectory
		for i := 0; i < 5; i++ {
			tr := trajectoryWith([]float32{1, 0}, 0.8)
			if i == 0 {
				first = tr
			}
			loop.RecordTrajectory(tr)
		}
		assert.Equal(t, 3, loop.BufferSize())

		// The dropped ones are the oldest.
		loop.mu.RLock()
		defer loop.mu.RUnlock()
		for _, tr := range loop.buffer {
			assert.NotEqual(t, first.ID, tr.ID)
		}
	})

	t.Run("DisabledIsNoOp", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{Disabled: true})
		loop.RecordTrajectory(trajectoryWith([]float32{1, 0}, 0.8))
		assert.Equal(t, 0, loop.BufferSize())
	})

	t.Run("BuffersACopy", func(t *testing.T) {
		loop := NewBackgroundLoop(nil)
		tr := trajectoryWith([]float32{1, 0}, 0.9)
		loop.RecordTrajectory(tr)

		// Caller mutations after recording must not reach the buffer.
		tr.QueryVector[0] = 0
		*tr.Feedback = 0.1

		result := loop.RunCycle()
		require.Equal(t, 1, result.TrajectoriesProcessed)
		patterns := loop.GetPatterns()
		require.Len(t, patterns, 1)
		assert.Equal(t, float32(1), patterns[0].Centroid[0])
		assert.InDelta(t, 0.9, patterns[0].AvgQuality, 1e-9)
	})
}

func TestBackgroundNoteFeedback(t *testing.T) {
	t.Run("UpdatesBufferedTrajectory", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{QualityThreshold: 0.5})
		tr := &sona.Trajectory{
			ID:          sona.NewID(),
			QueryVector: []float32{1, 0},
			Timestamp:   time.Now(),
		}
		loop.RecordTrajectory(tr)

		// Unfed and without result scores, the trajectory would be dropped.
		loop.NoteFeedback(tr.ID, 0.9)

		result := loop.RunCycle()
		assert.Equal(t, 1, result.TrajectoriesProcessed)
		patterns := loop.GetPatterns()
		require.Len(t, patterns, 1)
		assert.InDelta(t, 0.9, patterns[0].AvgQuality, 1e-9)
	})

	t.Run("UnknownIDIsNoOp", func(t *testing.T) {
		loop := NewBackgroundLoop(nil)
		loop.NoteFeedback("missing", 0.9)
		assert.Equal(t, 0, loop.BufferSize())
	})

	t.Run("SafeWhileCycling", func(t *testing.T) {
		loop := NewBackgroundLoop(nil)

		ids := make([]string, 50)
		for i := range ids {
			tr := trajectoryWith([]float32{1, 0}, 0.9)
			tr.Feedback = nil
			tr.ResultScores = []float64{0.8}
			ids[i] = tr.ID
			loop.RecordTrajectory(tr)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, id := range ids {
				loop.NoteFeedback(id, 0.9)
			}
		}()
		go func() {
			defer wg.Done()
			loop.RunCycle()
		}()
		wg.Wait()

		loop.RunCycle()
		assert.Equal(t, 0, loop.BufferSize())
	})
}

func TestBackgroundRunCycle(t *testing.T) {
	t.Run("EmptyBufferIsSkipped", func(t *testing.T) {
		loop := NewBackgroundLoop(nil)
		result := loop.RunCycle()
		assert.True(t, result.Skipped)
		assert.Empty(t, loop.StatsHistory())
	})

	t.Run("DisabledIsSkipped", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{Disabled: true})
		assert.True(t, loop.RunCycle().Skipped)
	})

	t.Run("CreatesAndMergesPatterns", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{SimilarityThreshold: 0.85})
		loop.RecordTrajectory(trajectoryWith([]float32{1, 0, 0}, 0.9))
		loop.RecordTrajectory(trajectoryWith([]float32{0.99, 0.02, 0}, 0.8))
		loop.RecordTrajectory(trajectoryWith([]float32{0, 1, 0}, 0.7))

		result := loop.RunCycle()
		assert.False(t, result.Skipped)
		assert.Equal(t, 3, result.TrajectoriesProcessed)
		assert.Equal(t, 2, result.PatternsCreated)
		assert.Equal(t, 1, result.PatternsMerged)
		assert.Equal(t, 0, loop.BufferSize())

		patterns := loop.GetPatterns()
		require.Len(t, patterns, 2)

		var big *sona.Pattern
		for _, p := range patterns {
			if p.ClusterSize == 2 {
				big = p
			}
		}
		require.NotNil(t, big)
		assert.InDelta(t, 0.85, big.AvgQuality, 1e-9)
	})

	t.Run("FiltersLowQualityAndStale", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{
			QualityThreshold: 0.5,
			LookbackWindow:   time.Minute,
		})

		low := trajectoryWith([]float32{1, 0}, 0.2)
		stale := trajectoryWith([]float32{0, 1}, 0.9)
		stale.Timestamp = time.Now().Add(-time.Hour)
		loop.RecordTrajectory(low)
		loop.RecordTrajectory(stale)

		result := loop.RunCycle()
		assert.Equal(t, 0, result.TrajectoriesProcessed)
		assert.Empty(t, loop.GetPatterns())
	})

	t.Run("UnfedTrajectoryUsesResultScores", func(t *testing.T) {
		loop := NewBackgroundLoop(nil)
		tr := &sona.Trajectory{
			ID:           sona.NewID(),
			QueryVector:  []float32{1, 0},
			ResultIDs:    []string{"a", "b"},
			ResultScores: []float64{0.9, 0.7},
			Timestamp:    time.Now(),
		}
		loop.RecordTrajectory(tr)

		result := loop.RunCycle()
		assert.Equal(t, 1, result.TrajectoriesProcessed)
		patterns := loop.GetPatterns()
		require.Len(t, patterns, 1)
		assert.InDelta(t, 0.8, patterns[0].AvgQuality, 1e-9)
	})

	t.Run("StatsHistoryIsCapped", func(t *testing.T) {
		loop := NewBackgroundLoop(&BackgroundConfig{MaxStatsHistory: 2})
		for i := 0; i < 4; i++ {
			loop.RecordTrajectory(trajectoryWith([]float32{1, 0}, 0.9))
			loop.RunCycle()
		}
		assert.Len(t, loop.StatsHistory(), 2)
	})
}

func TestBackgroundReentrancy(t *testing.T) {
	loop := NewBackgroundLoop(nil)
	for i := 0; i < 50; i++ {
		loop.RecordTrajectory(trajectoryWith([]float32{1, 0}, 0.9))
	}

	var wg sync.WaitGroup
	skipped := make([]bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			skipped[i] = loop.RunCycle().Skipped
		}(i)
	}
	wg.Wait()

	ran := 0
	for _, s := range skipped {
		if !s {
			ran++
		}
	}
	// Concurrent invocations must not run the same buffer twice. At least
	// one call sees the buffer and at most one call per drain processes it.
	assert.GreaterOrEqual(t, ran, 1)
	assert.Equal(t, 0, loop.BufferSize())

	total := 0
	for _, r := range loop.StatsHistory() {
		total += r.TrajectoriesProcessed
	}
	assert.Equal(t, 50, total)
}

func TestBackgroundReset(t *testing.T) {
	loop := NewBackgroundLoop(nil)
	loop.RecordTrajectory(trajectoryWith([]float32{1, 0}, 0.9))
	loop.RunCycle()
	require.NotEmpty(t, loop.GetPatterns())

	loop.Reset()
	assert.Equal(t, 0, loop.BufferSize())
	assert.Empty(t, loop.GetPatterns())
	assert.Empty(t, loop.StatsHistory())
}

func TestBackgroundLifecycle(t *testing.T) {
	loop := NewBackgroundLoop(&BackgroundConfig{IntervalMs: 60000})
	assert.False(t, loop.IsActive())

	loop.Start()
	assert.True(t, loop.IsActive())
	loop.Start() // idempotent

	loop.Stop()
	assert.False(t, loop.IsActive())
	loop.Stop() // idempotent

	t.Run("DisabledNeverStarts", func(t *testing.T) {
		off := NewBackgroundLoop(&BackgroundConfig{Disabled: true})
		off.Start()
		assert.False(t, off.IsActive())
	})
}
