package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/sona"
)

func sampleWith(vec []float32, score float64) *sona.PatternSample {
	return &sona.PatternSample{
		QueryVector:    vec,
		RelevanceScore: score,
	}
}

func TestStoreAddSample(t *testing.T) {
	t.Run("AcceptsAboveThreshold", func(t *testing.T) {
		store := NewStore(&StoreConfig{QualityThreshold: 0.5})
		store.AddSample(sampleWith([]float32{1, 0}, 0.8))
		assert.Equal(t, 1, store.GetSampleCount())
	})

	t.Run("RejectsBelowThresholdSilently", func(t *testing.T) {
		store := NewStore(&StoreConfig{QualityThreshold: 0.5})
		store.AddSample(sampleWith([]float32{1, 0}, 0.3))
		store.AddSample(nil)
		assert.Equal(t, 0, store.GetSampleCount())
	})

	t.Run("AssignsIDAndTimestamp", func(t *testing.T) {
		store := NewStore(nil)
		s := sampleWith([]float32{1, 0}, 0.9)
		store.AddSample(s)
		assert.NotEmpty(t, s.ID)
		assert.False(t, s.Timestamp.IsZero())
	})
}

func TestStoreAutoClustering(t *testing.T) {
	store := NewStore(&StoreConfig{MinSamplesPerCluster: 2, NewClusterThreshold: 0.75})

	// Two well-separated groups. The fourth sample reaches twice the
	// minimum and triggers clustering.
	store.AddSample(sampleWith([]float32{1, 0, 0}, 0.8))
	store.AddSample(sampleWith([]float32{0.98, 0.05, 0}, 0.9))
	store.AddSample(sampleWith([]float32{0, 1, 0}, 0.7))
	assert.Equal(t, 0, store.GetClusterCount())

	store.AddSample(sampleWith([]float32{0.05, 0.99, 0}, 0.85))
	assert.Equal(t, 2, store.GetClusterCount())
}

func TestStoreCluster(t *testing.T) {
	store := NewStore(nil)
	store.AddSample(sampleWith([]float32{1, 0}, 0.8))
	store.AddSample(sampleWith([]float32{0.99, 0.02}, 0.6))
	store.AddSample(sampleWith([]float32{0, 1}, 0.9))

	n := store.Cluster()
	assert.Equal(t, 2, n)

	clusters := store.Clusters()
	require.Len(t, clusters, 2)

	var big *sona.Pattern
	for _, c := range clusters {
		if c.ClusterSize == 2 {
			big = c
		}
	}
	require.NotNil(t, big, "expected a two-member cluster")
	assert.InDelta(t, 0.7, big.AvgQuality, 1e-9)
	assert.Len(t, big.Members, 2)
}

func TestStoreFindSimilar(t *testing.T) {
	store := NewStore(nil)

	t.Run("EmptyWithoutClusters", func(t *testing.T) {
		result := store.FindSimilar([]float32{1, 0}, 5)
		assert.Empty(t, result)
	})

	store.AddSample(sampleWith([]float32{1, 0}, 0.8))
	store.AddSample(sampleWith([]float32{0, 1}, 0.8))
	store.Cluster()

	t.Run("RankedBySimilarity", func(t *testing.T) {
		result := store.FindSimilar([]float32{0.9, 0.1}, 0)
		require.Len(t, result, 2)
		first := sona.CosineSimilarity([]float32{0.9, 0.1}, result[0].Centroid)
		second := sona.CosineSimilarity([]float32{0.9, 0.1}, result[1].Centroid)
		assert.GreaterOrEqual(t, first, second)
	})

	t.Run("LimitApplies", func(t *testing.T) {
		result := store.FindSimilar([]float32{1, 0}, 1)
		assert.Len(t, result, 1)
	})
}

func TestStoreUpdateFromFeedback(t *testing.T) {
	store := NewStore(nil)
	s := sampleWith([]float32{1, 0}, 0.6)
	store.AddSample(s)

	store.UpdateFromFeedback(s.ID, 0.95)
	assert.Equal(t, 0.95, s.RelevanceScore)

	// Unknown id is a no-op.
	store.UpdateFromFeedback("no-such-sample", 0.1)
}

func TestStoreExportImport(t *testing.T) {
	store := NewStore(nil)
	store.AddSample(sampleWith([]float32{1, 0}, 0.8))
	store.AddSample(sampleWith([]float32{0, 1}, 0.9))
	store.Cluster()

	data, err := store.Export()
	require.NoError(t, err)

	restored := NewStore(nil)
	require.NoError(t, restored.Import(data))
	assert.Equal(t, store.GetSampleCount(), restored.GetSampleCount())
	assert.Equal(t, store.GetClusterCount(), restored.GetClusterCount())
}

func TestStoreImportValidation(t *testing.T) {
	store := NewStore(nil)

	cases := []struct {
		name string
		data string
	}{
		{"NotJSON", `{{{`},
		{"MissingClusters", `{"samples": []}`},
		{"ClustersNotArray", `{"clusters": {"id": "x"}}`},
		{"ClusterWithoutID", `{"clusters": [{"centroid": [1, 0]}]}`},
		{"ClusterWithoutCentroid", `{"clusters": [{"id": "c1"}]}`},
		{"SampleWithoutID", `{"clusters": [{"id": "c1", "centroid": [1]}], "samples": [{"query_vector": [1]}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := store.Import([]byte(tc.data))
			require.Error(t, err)
			var verr *sona.ValidationError
			assert.True(t, errors.As(err, &verr), "expected a validation error, got %v", err)
		})
	}
}

func TestStoreImportFailureKeepsState(t *testing.T) {
	store := NewStore(nil)
	store.AddSample(sampleWith([]float32{1, 0}, 0.8))
	store.AddSample(sampleWith([]float32{0, 1}, 0.9))
	store.Cluster()

	samples := store.GetSampleCount()
	clusters := store.GetClusterCount()

	// Valid clusters, one malformed sample: nothing may change.
	bad := `{"clusters": [{"id": "c1", "centroid": [1, 0]}], "samples": [{"id": "s1", "query_vector": [1]}, {"query_vector": [2]}]}`
	err := store.Import([]byte(bad))
	require.Error(t, err)

	assert.Equal(t, samples, store.GetSampleCount())
	assert.Equal(t, clusters, store.GetClusterCount())
	for _, c := range store.Clusters() {
		assert.NotEqual(t, "c1", c.ID)
	}
}
