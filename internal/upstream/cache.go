package upstream

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/risk"
)

// PredictionCache memoizes per-customer predictions for the duration of a
// cycle so retries and repeated lookups do not hit the warehouse twice.
// Population stats pass through uncached; the controller already fetches
// them once per metric.
type PredictionCache struct {
	inner PredictionSource
	cache *lru.Cache[string, *risk.PredictionResult]
}

// NewPredictionCache wraps a prediction source with an LRU of the given size.
func NewPredictionCache(inner PredictionSource, size int) (*PredictionCache, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, *risk.PredictionResult](size)
	if err != nil {
		return nil, err
	}
	return &PredictionCache{inner: inner, cache: cache}, nil
}

// Predict returns the cached prediction when present. Absent predictions
// (nil results) are cached too; upstream errors are never cached.
func (c *PredictionCache) Predict(ctx context.Context, customerID string) (*risk.PredictionResult, error) {
	if pred, ok := c.cache.Get(customerID); ok {
		return pred, nil
	}
	pred, err := c.inner.Predict(ctx, customerID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(customerID, pred)
	return pred, nil
}

// PopulationStats delegates to the wrapped source.
func (c *PredictionCache) PopulationStats(ctx context.Context, metric string) (anomaly.Stats, error) {
	return c.inner.PopulationStats(ctx, metric)
}

// Purge drops all cached predictions. Called at cycle boundaries so stale
// model output never leaks into the next cycle.
func (c *PredictionCache) Purge() {
	c.cache.Purge()
}
