package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/risk"
)

// KPIClient fetches named business metrics from the analytics service over
// HTTP. The endpoint returns a flat JSON object of metric name to value.
type KPIClient struct {
	baseURL string
	client  *http.Client
	logger  *logging.Logger
}

// NewKPIClient creates a KPI client with the given request timeout.
func NewKPIClient(baseURL string, timeout time.Duration) *KPIClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &KPIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logging.GetLogger("upstream.kpi"),
	}
}

// Snapshot fetches the current KPI values. The returned snapshot is shared
// read-only across all customers in a cycle.
func (c *KPIClient) Snapshot(ctx context.Context) (risk.KPISnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/kpis/churn", nil)
	if err != nil {
		return risk.KPISnapshot{}, fmt.Errorf("failed to build KPI request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return risk.KPISnapshot{}, fmt.Errorf("%w: KPI fetch: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return risk.KPISnapshot{}, fmt.Errorf("%w: KPI service returned %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var values map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&values); err != nil {
		return risk.KPISnapshot{}, fmt.Errorf("failed to decode KPI response: %w", err)
	}

	c.logger.Debug("fetched %d KPIs", len(values))
	return risk.KPISnapshot{
		Values:    values,
		FetchedAt: time.Now().UTC(),
	}, nil
}
