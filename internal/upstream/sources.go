// Package upstream defines the contracts of the external collaborators the
// decision pipeline consumes (customer population, churn predictions,
// business KPIs) and the clients that implement them.
package upstream

import (
	"context"
	"errors"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/risk"
)

// ErrUpstreamUnavailable marks a source that could not be reached.
// Customer-scoped callers degrade to "unknown" signals and continue; only a
// total population fetch failure is cycle-fatal.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// PopulationSource yields the customer population for a cycle.
type PopulationSource interface {
	// ListCustomers returns the full customer population as immutable
	// snapshots.
	ListCustomers(ctx context.Context) ([]risk.CustomerRecord, error)
}

// PredictionSource yields churn model output and population statistics.
type PredictionSource interface {
	// Predict returns the churn prediction for one customer.
	// (nil, nil) means the customer has no model output; callers must
	// treat that as unknown risk.
	Predict(ctx context.Context, customerID string) (*risk.PredictionResult, error)

	// PopulationStats returns the population baseline for a metric,
	// computed over the full population. An undefined baseline (for
	// degenerate populations) is a valid result, not an error.
	PopulationStats(ctx context.Context, metric string) (anomaly.Stats, error)
}

// KPISource yields the shared business-KPI snapshot, fetched once per cycle.
type KPISource interface {
	Snapshot(ctx context.Context) (risk.KPISnapshot, error)
}
