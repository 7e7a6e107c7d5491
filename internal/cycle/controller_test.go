package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/audit"
	"github.com/moolen/vigil/internal/dispatch"
	"github.com/moolen/vigil/internal/risk"
)

type stubPopulation struct {
	customers []risk.CustomerRecord
	err       error
}

func (s *stubPopulation) ListCustomers(_ context.Context) ([]risk.CustomerRecord, error) {
	return s.customers, s.err
}

type stubPredictions struct {
	preds   map[string]*risk.PredictionResult
	stats   map[string]anomaly.Stats
	predErr error
}

func (s *stubPredictions) Predict(_ context.Context, customerID string) (*risk.PredictionResult, error) {
	if s.predErr != nil {
		return nil, s.predErr
	}
	return s.preds[customerID], nil
}

func (s *stubPredictions) PopulationStats(_ context.Context, metric string) (anomaly.Stats, error) {
	return s.stats[metric], nil
}

type stubKPI struct {
	snap risk.KPISnapshot
	err  error
}

func (s *stubKPI) Snapshot(_ context.Context) (risk.KPISnapshot, error) {
	return s.snap, s.err
}

// thresholdAnalyzer alerts on severe anomalies or high churn probability and
// otherwise takes no action. It degrades when the context is already done.
type thresholdAnalyzer struct {
	mu   sync.Mutex
	seen []risk.AnalysisContext
}

func (a *thresholdAnalyzer) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.RootCauseAnalysis, risk.ActionDecision) {
	a.mu.Lock()
	a.seen = append(a.seen, actx)
	a.mu.Unlock()

	if ctx.Err() != nil {
		return risk.RootCauseAnalysis{PrimaryCause: risk.CauseUnknown, Degraded: true},
			risk.NoAction("reasoning unavailable")
	}

	highRisk := actx.RiskKnown() && actx.Prediction.Probability >= 0.7
	if highRisk || actx.HasSevereAnomaly() {
		return risk.RootCauseAnalysis{PrimaryCause: "declining_engagement", Confidence: 0.8},
			risk.ActionDecision{Type: risk.ActionAlert, Urgency: risk.UrgencyHigh, Confidence: 0.8}
	}
	return risk.RootCauseAnalysis{PrimaryCause: "healthy", Confidence: 0.9},
		risk.ActionDecision{Type: risk.ActionNone, Urgency: risk.UrgencyLow, Rationale: "nothing elevated", Confidence: 0.9}
}

type nullChannel struct {
	name      string
	mu        sync.Mutex
	delivered []string
}

func (c *nullChannel) Deliver(_ context.Context, payload dispatch.Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, payload.Customer.ID)
	return nil
}

func (c *nullChannel) Name() string { return c.name }

func definedStats() map[string]anomaly.Stats {
	stats := map[string]anomaly.Stats{}
	for _, m := range risk.DefaultMetrics {
		stats[m] = anomaly.Stats{Mean: 10, StdDev: 2, Count: 100}
	}
	return stats
}

func testCustomers() []risk.CustomerRecord {
	return []risk.CustomerRecord{
		// Severe anomaly: login frequency at z = -4.5
		{ID: "CUST-001", LoginFrequency30d: 1, PurchaseFrequency30d: 10, SupportTickets30d: 10, MonthlyRevenue: 10},
		// Unremarkable
		{ID: "CUST-002", LoginFrequency30d: 10, PurchaseFrequency30d: 10, SupportTickets30d: 10, MonthlyRevenue: 10},
		// Unremarkable metrics, high churn probability
		{ID: "CUST-003", LoginFrequency30d: 10, PurchaseFrequency30d: 10, SupportTickets30d: 10, MonthlyRevenue: 10},
	}
}

func newTestController(t *testing.T, population *stubPopulation, predictions *stubPredictions, kpi *stubKPI, cfg Config) (*Controller, *thresholdAnalyzer, *audit.MemoryTrail, *nullChannel) {
	t.Helper()
	analyzer := &thresholdAnalyzer{}
	trail := audit.NewMemoryTrail()
	alert := &nullChannel{name: "alert"}
	controller := NewController(
		population,
		predictions,
		kpi,
		anomaly.NewDetector(anomaly.DefaultModerateZ, anomaly.DefaultSevereZ),
		analyzer,
		dispatch.NewDispatcher(trail, alert),
		NewMetrics(prometheus.NewRegistry()),
		cfg,
	)
	return controller, analyzer, trail, alert
}

func TestController_Run(t *testing.T) {
	population := &stubPopulation{customers: testCustomers()}
	predictions := &stubPredictions{
		preds: map[string]*risk.PredictionResult{
			"CUST-001": {Probability: 0.85, Label: true, ModelVersion: "v3"},
			"CUST-002": {Probability: 0.1, ModelVersion: "v3"},
			"CUST-003": {Probability: 0.9, Label: true, ModelVersion: "v3"},
		},
		stats: definedStats(),
	}
	kpi := &stubKPI{snap: risk.KPISnapshot{Values: map[string]float64{"churn_rate_30d": 0.04}, FetchedAt: time.Now()}}

	controller, analyzer, trail, alert := newTestController(t, population, predictions, kpi, Config{})

	summary, err := controller.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Customers)
	assert.Equal(t, 2, summary.Actions[risk.ActionAlert])
	assert.Equal(t, 1, summary.Actions[risk.ActionNone])
	assert.Equal(t, 2, summary.Outcomes[audit.OutcomeSuccess])
	assert.Equal(t, 1, summary.Outcomes[audit.OutcomeSkipped])
	assert.Equal(t, 1, summary.Anomalies[anomaly.SeveritySevere])
	assert.Len(t, analyzer.seen, 3)
	assert.Len(t, alert.delivered, 2)

	// Every entry carries the same cycle correlation ID
	entries := trail.Entries()
	require.Len(t, entries, 3)
	for _, entry := range entries {
		assert.Equal(t, summary.CorrelationID, entry.CorrelationID)
	}
}

func TestController_PopulationFailureIsFatal(t *testing.T) {
	population := &stubPopulation{err: errors.New("warehouse down")}
	controller, _, _, _ := newTestController(t, population, &stubPredictions{stats: definedStats()}, &stubKPI{}, Config{})

	_, err := controller.Run(context.Background())
	assert.Error(t, err)
}

func TestController_PredictionFailureDegradesToUnknownRisk(t *testing.T) {
	population := &stubPopulation{customers: testCustomers()[:1]}
	predictions := &stubPredictions{predErr: errors.New("model service down"), stats: definedStats()}
	controller, analyzer, _, _ := newTestController(t, population, predictions, &stubKPI{}, Config{})

	summary, err := controller.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Customers)

	require.Len(t, analyzer.seen, 1)
	assert.False(t, analyzer.seen[0].RiskKnown(), "failed prediction must surface as unknown risk, not low")
}

func TestController_KPIFailureIsNotFatal(t *testing.T) {
	population := &stubPopulation{customers: testCustomers()[:1]}
	predictions := &stubPredictions{stats: definedStats()}
	kpi := &stubKPI{err: errors.New("analytics down")}
	controller, analyzer, _, _ := newTestController(t, population, predictions, kpi, Config{})

	_, err := controller.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, analyzer.seen, 1)
	assert.Empty(t, analyzer.seen[0].KPIs.Values)
}

func TestController_SingleCustomerPopulation(t *testing.T) {
	population := &stubPopulation{customers: testCustomers()[:1]}
	// Degenerate baselines: count 1, no variance
	stats := map[string]anomaly.Stats{}
	for _, m := range risk.DefaultMetrics {
		stats[m] = anomaly.Stats{Mean: 1, Count: 1}
	}
	predictions := &stubPredictions{stats: stats}
	controller, analyzer, _, _ := newTestController(t, population, predictions, &stubKPI{}, Config{})

	summary, err := controller.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summary.Anomalies, "undefined baselines must not produce anomalies")
	require.Len(t, analyzer.seen, 1)
	assert.False(t, analyzer.seen[0].HasSevereAnomaly())
}

func TestController_CancelledCycleSkipsRemainingCustomers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	population := &stubPopulation{customers: testCustomers()}
	predictions := &stubPredictions{stats: definedStats()}
	controller, _, trail, alert := newTestController(t, population, predictions, &stubKPI{}, Config{})

	summary, err := controller.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Outcomes[audit.OutcomeSkipped])
	assert.Empty(t, alert.delivered)
	for _, entry := range trail.Entries() {
		assert.Equal(t, audit.OutcomeSkipped, entry.Outcome)
		assert.Equal(t, "cycle cancelled", entry.Reason)
	}
}

func TestController_DuplicateCustomerNotCountedTwice(t *testing.T) {
	// The same customer listed twice: the second pass hits the duplicate
	// guard and must leave the summary and trail untouched.
	first := testCustomers()[:1]
	population := &stubPopulation{customers: append(first, first[0])}
	predictions := &stubPredictions{
		preds: map[string]*risk.PredictionResult{"CUST-001": {Probability: 0.95, Label: true}},
		stats: definedStats(),
	}
	controller, _, trail, alert := newTestController(t, population, predictions, &stubKPI{}, Config{Concurrency: 1})

	summary, err := controller.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, trail.Entries(), 1)
	assert.Len(t, alert.delivered, 1)
	assert.Equal(t, map[risk.ActionType]int{risk.ActionAlert: 1}, summary.Actions)
	assert.Equal(t, map[audit.Outcome]int{audit.OutcomeSuccess: 1}, summary.Outcomes)
}

func TestController_AtMostOneDispatchPerCustomer(t *testing.T) {
	population := &stubPopulation{customers: testCustomers()}
	predictions := &stubPredictions{
		preds: map[string]*risk.PredictionResult{
			"CUST-001": {Probability: 0.95, Label: true},
			"CUST-002": {Probability: 0.95, Label: true},
			"CUST-003": {Probability: 0.95, Label: true},
		},
		stats: definedStats(),
	}
	controller, _, trail, alert := newTestController(t, population, predictions, &stubKPI{}, Config{Concurrency: 8})

	_, err := controller.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, alert.delivered, 3)
	assert.Len(t, trail.Entries(), 3)
}
