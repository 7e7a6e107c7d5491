// Package cycle orchestrates one decision cycle: fetch the population, score
// anomalies, assemble per-customer context, reason, and dispatch actions.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/audit"
	"github.com/moolen/vigil/internal/dispatch"
	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/risk"
	"github.com/moolen/vigil/internal/upstream"
)

// Analyzer produces a root-cause analysis and an action decision for one
// assembled context. Implementations never fail; they degrade.
type Analyzer interface {
	Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.RootCauseAnalysis, risk.ActionDecision)
}

// ActionDispatcher executes one decision and records it on the audit trail.
type ActionDispatcher interface {
	Dispatch(ctx context.Context, dec risk.ActionDecision, rec risk.CustomerRecord, rca risk.RootCauseAnalysis, correlationID string) (audit.Entry, error)
}

// Config tunes a controller.
type Config struct {
	// Metrics is the set of metric names scored for anomalies each cycle.
	Metrics []string

	// Concurrency bounds the number of customers processed in parallel.
	Concurrency int

	// CustomerTimeout bounds the end-to-end processing of one customer,
	// including its reasoning calls.
	CustomerTimeout time.Duration
}

// DefaultConfig returns the controller defaults.
func DefaultConfig() Config {
	return Config{
		Metrics:         risk.DefaultMetrics,
		Concurrency:     4,
		CustomerTimeout: 2 * time.Minute,
	}
}

// Summary aggregates what one cycle did.
type Summary struct {
	CorrelationID string                   `json:"correlation_id"`
	Customers     int                      `json:"customers"`
	Actions       map[risk.ActionType]int  `json:"actions"`
	Outcomes      map[audit.Outcome]int    `json:"outcomes"`
	Anomalies     map[anomaly.Severity]int `json:"anomalies"`
	Degraded      int                      `json:"degraded"`
	Duration      time.Duration            `json:"duration"`
}

// Controller runs decision cycles over the customer population.
type Controller struct {
	population  upstream.PopulationSource
	predictions upstream.PredictionSource
	kpis        upstream.KPISource
	detector    *anomaly.Detector
	analyzer    Analyzer
	dispatcher  ActionDispatcher
	metrics     *Metrics
	cfg         Config
	logger      *logging.Logger
	tracer      trace.Tracer
}

// NewController wires a controller, filling zero config fields with defaults.
func NewController(
	population upstream.PopulationSource,
	predictions upstream.PredictionSource,
	kpis upstream.KPISource,
	detector *anomaly.Detector,
	analyzer Analyzer,
	dispatcher ActionDispatcher,
	metrics *Metrics,
	cfg Config,
) *Controller {
	def := DefaultConfig()
	if len(cfg.Metrics) == 0 {
		cfg.Metrics = def.Metrics
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.CustomerTimeout <= 0 {
		cfg.CustomerTimeout = def.CustomerTimeout
	}
	return &Controller{
		population:  population,
		predictions: predictions,
		kpis:        kpis,
		detector:    detector,
		analyzer:    analyzer,
		dispatcher:  dispatcher,
		metrics:     metrics,
		cfg:         cfg,
		logger:      logging.GetLogger("cycle"),
		tracer:      otel.Tracer("vigil/cycle"),
	}
}

// Run executes one full decision cycle. Only a failed population fetch is
// fatal; every other upstream failure degrades per customer and the cycle
// carries on. Each customer is dispatched at most once under the cycle's
// correlation ID.
func (c *Controller) Run(ctx context.Context) (Summary, error) {
	correlationID := "cycle-" + uuid.NewString()
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "cycle.run",
		trace.WithAttributes(attribute.String("cycle.correlation_id", correlationID)))
	defer span.End()

	logger := c.logger.WithField("correlation_id", correlationID)
	logger.InfoWithFields("starting decision cycle")

	customers, err := c.population.ListCustomers(ctx)
	if err != nil {
		c.metrics.CyclesTotal.WithLabelValues("failed").Inc()
		return Summary{CorrelationID: correlationID}, fmt.Errorf("population fetch failed: %w", err)
	}

	baselines := c.fetchBaselines(ctx, logger)
	kpiSnap := c.fetchKPIs(ctx, logger)

	summary := Summary{
		CorrelationID: correlationID,
		Customers:     len(customers),
		Actions:       map[risk.ActionType]int{},
		Outcomes:      map[audit.Outcome]int{},
		Anomalies:     map[anomaly.Severity]int{},
	}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, customer := range customers {
		g.Go(func() error {
			result := c.processCustomer(ctx, customer, baselines, kpiSnap, correlationID)

			mu.Lock()
			defer mu.Unlock()
			if result.recorded {
				summary.Actions[result.entry.ActionType]++
				summary.Outcomes[result.entry.Outcome]++
			}
			if result.degraded {
				summary.Degraded++
			}
			for _, score := range result.scores {
				if score.Severity != anomaly.SeverityNone {
					summary.Anomalies[score.Severity]++
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	c.metrics.CycleDuration.Observe(summary.Duration.Seconds())
	c.metrics.CyclesTotal.WithLabelValues("completed").Inc()

	logger.InfoWithFields("cycle complete",
		logging.Field("customers", summary.Customers),
		logging.Field("degraded", summary.Degraded),
		logging.Field("duration", summary.Duration.String()))
	return summary, nil
}

// fetchBaselines loads the population statistics for every configured
// metric. A failed metric degrades to an undefined baseline.
func (c *Controller) fetchBaselines(ctx context.Context, logger *logging.Logger) map[string]anomaly.Stats {
	baselines := make(map[string]anomaly.Stats, len(c.cfg.Metrics))
	for _, metric := range c.cfg.Metrics {
		stats, err := c.predictions.PopulationStats(ctx, metric)
		if err != nil {
			logger.ErrorWithErr("baseline fetch failed for metric %s, scoring disabled this cycle", err, metric)
			stats = anomaly.Stats{}
		}
		baselines[metric] = stats
	}
	return baselines
}

// fetchKPIs loads the shared KPI snapshot. A failure degrades to an empty
// snapshot rather than blocking the cycle.
func (c *Controller) fetchKPIs(ctx context.Context, logger *logging.Logger) risk.KPISnapshot {
	snap, err := c.kpis.Snapshot(ctx)
	if err != nil {
		logger.ErrorWithErr("KPI fetch failed, proceeding without business context", err)
		return risk.KPISnapshot{}
	}
	return snap
}

func (c *Controller) scoreCustomer(customer risk.CustomerRecord, baselines map[string]anomaly.Stats) []anomaly.Score {
	scores := make([]anomaly.Score, 0, len(c.cfg.Metrics))
	for _, metric := range c.cfg.Metrics {
		observed, ok := customer.Metric(metric)
		if !ok {
			continue
		}
		scores = append(scores, c.detector.Score(metric, observed, baselines[metric]))
	}
	return scores
}

// customerResult is what one per-customer pipeline pass feeds back into the
// cycle summary.
type customerResult struct {
	entry    audit.Entry
	recorded bool
	scores   []anomaly.Score
	degraded bool
}

// processCustomer runs the per-customer pipeline stages and returns what was
// recorded. It never fails the cycle.
func (c *Controller) processCustomer(ctx context.Context, customer risk.CustomerRecord, baselines map[string]anomaly.Stats, kpiSnap risk.KPISnapshot, correlationID string) customerResult {
	cctx, cancel := context.WithTimeout(ctx, c.cfg.CustomerTimeout)
	defer cancel()

	cctx, span := c.tracer.Start(cctx, "cycle.customer",
		trace.WithAttributes(attribute.String("customer.id", customer.ID)))
	defer span.End()

	c.metrics.CustomersProcessed.Inc()

	if ctx.Err() != nil {
		return c.record(cctx, risk.NoAction("cycle cancelled"), customer,
			risk.RootCauseAnalysis{PrimaryCause: risk.CauseUnknown, Degraded: true}, nil, correlationID)
	}

	pred, err := c.predictions.Predict(cctx, customer.ID)
	if err != nil {
		c.logger.ErrorWithErr("prediction fetch failed for customer %s, risk unknown", err, customer.ID)
		pred = nil
	}

	scores := c.scoreCustomer(customer, baselines)
	for _, score := range scores {
		if score.Severity != anomaly.SeverityNone {
			c.metrics.Anomalies.WithLabelValues(string(score.Severity)).Inc()
		}
	}

	actx := risk.Assemble(customer, pred, scores, kpiSnap)
	rca, dec := c.analyzer.Analyze(cctx, actx)

	return c.record(cctx, dec, customer, rca, scores, correlationID)
}

func (c *Controller) record(ctx context.Context, dec risk.ActionDecision, customer risk.CustomerRecord, rca risk.RootCauseAnalysis, scores []anomaly.Score, correlationID string) customerResult {
	entry, err := c.dispatcher.Dispatch(ctx, dec, customer, rca, correlationID)
	if errors.Is(err, dispatch.ErrDuplicateDispatch) {
		// Nothing was appended, so nothing to count.
		c.logger.Warn("customer %s already dispatched in %s", customer.ID, correlationID)
		return customerResult{scores: scores, degraded: dec.Degraded}
	}
	if err != nil {
		c.logger.ErrorWithErr("dispatch failed for customer %s", err, customer.ID)
	}
	c.metrics.Actions.WithLabelValues(string(entry.ActionType), string(entry.Outcome)).Inc()
	if dec.Degraded {
		c.metrics.DegradedDecisions.Inc()
	}
	return customerResult{entry: entry, recorded: true, scores: scores, degraded: dec.Degraded}
}
