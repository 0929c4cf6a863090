package trajectory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/smallnest/sona"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestArchive(t *testing.T) *SQLiteArchive {
	t.Helper()
	archive, err := NewSQLiteArchive(SQLiteOptions{
		Path: filepath.Join(t.TempDir(), "trajectories.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })
	return archive
}

func TestSQLiteArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	archive := newTestArchive(t)

	feedback := 0.85
	trajectories := []*sona.Trajectory{
		{
			ID:           "t-1",
			Query:        "first query",
			QueryVector:  []float32{0.1, 0.2, 0.3},
			ResultIDs:    []string{"a", "b"},
			ResultScores: []float64{0.9, 0.4},
			Feedback:     &feedback,
			SessionID:    "s1",
			Metadata:     map[string]any{"source": "test"},
			Timestamp:    time.Now().Add(-time.Minute).UTC(),
		},
		{
			ID:           "t-2",
			Query:        "second query",
			QueryVector:  []float32{0.5, 0.6, 0.7},
			ResultIDs:    []string{"c"},
			ResultScores: []float64{0.3},
			Timestamp:    time.Now().UTC(),
		},
	}

	require.NoError(t, archive.Save(ctx, trajectories))

	loaded, err := archive.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Ordered by timestamp ascending.
	assert.Equal(t, "t-1", loaded[0].ID)
	assert.Equal(t, "first query", loaded[0].Query)
	assert.Equal(t, []string{"a", "b"}, loaded[0].ResultIDs)
	assert.InDeltaSlice(t, []float64{0.9, 0.4}, loaded[0].ResultScores, 1e-9)
	require.NotNil(t, loaded[0].Feedback)
	assert.InDelta(t, 0.85, *loaded[0].Feedback, 1e-9)
	assert.Equal(t, "test", loaded[0].Metadata["source"])

	assert.Equal(t, "t-2", loaded[1].ID)
	assert.Nil(t, loaded[1].Feedback)
}

func TestSQLiteArchiveUpsert(t *testing.T) {
	ctx := context.Background()
	archive := newTestArchive(t)

	traj := &sona.Trajectory{
		ID:          "t-1",
		Query:       "original",
		QueryVector: []float32{1},
		Timestamp:   time.Now().UTC(),
	}
	require.NoError(t, archive.Save(ctx, []*sona.Trajectory{traj}))

	traj.Query = "updated"
	require.NoError(t, archive.Save(ctx, []*sona.Trajectory{traj}))

	loaded, err := archive.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "updated", loaded[0].Query)
}

func TestSQLiteArchiveDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	archive := newTestArchive(t)

	require.NoError(t, archive.Save(ctx, []*sona.Trajectory{
		{ID: "t-1", Query: "q1", QueryVector: []float32{1}, Timestamp: time.Now().UTC()},
		{ID: "t-2", Query: "q2", QueryVector: []float32{1}, Timestamp: time.Now().UTC()},
	}))

	require.NoError(t, archive.Delete(ctx, "t-1"))
	loaded, err := archive.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)

	require.NoError(t, archive.Clear(ctx))
	loaded, err = archive.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
