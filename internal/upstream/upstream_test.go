package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/risk"
)

// countingSource records how often each customer prediction is fetched.
type countingSource struct {
	calls map[string]int
	preds map[string]*risk.PredictionResult
	err   error
}

func (s *countingSource) Predict(_ context.Context, customerID string) (*risk.PredictionResult, error) {
	s.calls[customerID]++
	if s.err != nil {
		return nil, s.err
	}
	return s.preds[customerID], nil
}

func (s *countingSource) PopulationStats(_ context.Context, _ string) (anomaly.Stats, error) {
	return anomaly.Stats{Mean: 10, StdDev: 2, Count: 100}, nil
}

func TestPredictionCache_MemoizesHits(t *testing.T) {
	src := &countingSource{
		calls: map[string]int{},
		preds: map[string]*risk.PredictionResult{
			"CUST-001": {Probability: 0.82, Label: true, ModelVersion: "v3"},
		},
	}
	cache, err := NewPredictionCache(src, 16)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		pred, err := cache.Predict(context.Background(), "CUST-001")
		require.NoError(t, err)
		require.NotNil(t, pred)
		assert.Equal(t, 0.82, pred.Probability)
	}
	assert.Equal(t, 1, src.calls["CUST-001"], "repeated lookups should hit the cache")
}

func TestPredictionCache_CachesAbsentPredictions(t *testing.T) {
	src := &countingSource{calls: map[string]int{}, preds: map[string]*risk.PredictionResult{}}
	cache, err := NewPredictionCache(src, 16)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		pred, err := cache.Predict(context.Background(), "CUST-404")
		require.NoError(t, err)
		assert.Nil(t, pred)
	}
	assert.Equal(t, 1, src.calls["CUST-404"])
}

func TestPredictionCache_NeverCachesErrors(t *testing.T) {
	src := &countingSource{calls: map[string]int{}, err: ErrUpstreamUnavailable}
	cache, err := NewPredictionCache(src, 16)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := cache.Predict(context.Background(), "CUST-001")
		assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	}
	assert.Equal(t, 2, src.calls["CUST-001"], "errors must be retried, not cached")
}

func TestPredictionCache_PurgeDropsEntries(t *testing.T) {
	src := &countingSource{
		calls: map[string]int{},
		preds: map[string]*risk.PredictionResult{
			"CUST-001": {Probability: 0.5},
		},
	}
	cache, err := NewPredictionCache(src, 16)
	require.NoError(t, err)

	_, err = cache.Predict(context.Background(), "CUST-001")
	require.NoError(t, err)
	cache.Purge()
	_, err = cache.Predict(context.Background(), "CUST-001")
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls["CUST-001"], "purge should force a refetch")
}

func TestKPIClient_Snapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/kpis/churn", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"churn_rate_30d": 0.042, "nps": 38}`))
	}))
	defer server.Close()

	client := NewKPIClient(server.URL, 5*time.Second)
	snap, err := client.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0.042, snap.Values["churn_rate_30d"])
	assert.Equal(t, float64(38), snap.Values["nps"])
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestKPIClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewKPIClient(server.URL, 5*time.Second)
	_, err := client.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}
