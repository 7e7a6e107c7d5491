package upstream

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/risk"
)

// metricColumns whitelists metric names against mart columns. Statistics
// queries interpolate the column name, so only known metrics are allowed.
var metricColumns = map[string]string{
	risk.MetricLoginFrequency:    "login_frequency_30d",
	risk.MetricPurchaseFrequency: "purchase_frequency_30d",
	risk.MetricSupportTickets:    "support_tickets_30d",
	risk.MetricMonthlyRevenue:    "monthly_revenue",
}

// Warehouse reads customer snapshots, churn predictions and population
// statistics from the customer mart. It implements both PopulationSource
// and PredictionSource.
type Warehouse struct {
	pool   *pgxpool.Pool
	logger *logging.Logger
}

// NewWarehouse connects to the mart and verifies connectivity.
func NewWarehouse(ctx context.Context, dsn string) (*Warehouse, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to warehouse: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return &Warehouse{
		pool:   pool,
		logger: logging.GetLogger("upstream.warehouse"),
	}, nil
}

// ListCustomers fetches the active customer population.
func (w *Warehouse) ListCustomers(ctx context.Context) ([]risk.CustomerRecord, error) {
	rows, err := w.pool.Query(ctx,
		`SELECT customer_id, subscription_id, COALESCE(email, ''),
		        subscription_start_date, COALESCE(subscription_end_date, 'epoch'::timestamptz),
		        monthly_revenue, total_revenue,
		        days_since_last_purchase, days_since_last_login,
		        login_frequency_30d, purchase_frequency_30d,
		        support_tickets_30d, feature_usage_count
		 FROM customers
		 WHERE churned_flag IS NULL
		 ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("%w: listing customers: %v", ErrUpstreamUnavailable, err)
	}
	defer rows.Close()

	var records []risk.CustomerRecord
	for rows.Next() {
		var r risk.CustomerRecord
		if err := rows.Scan(
			&r.ID, &r.SubscriptionID, &r.Email,
			&r.SubscriptionStart, &r.SubscriptionEnd,
			&r.MonthlyRevenue, &r.TotalRevenue,
			&r.DaysSinceLastPurchase, &r.DaysSinceLastLogin,
			&r.LoginFrequency30d, &r.PurchaseFrequency30d,
			&r.SupportTickets30d, &r.FeatureUsageCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading customers: %v", ErrUpstreamUnavailable, err)
	}

	w.logger.Debug("fetched %d customers from warehouse", len(records))
	return records, nil
}

// Predict returns the latest churn prediction for one customer, or
// (nil, nil) if the customer has no model output.
func (w *Warehouse) Predict(ctx context.Context, customerID string) (*risk.PredictionResult, error) {
	var pred risk.PredictionResult
	err := w.pool.QueryRow(ctx,
		`SELECT churn_probability, predicted_churned_flag, model_version
		 FROM churn_predictions
		 WHERE customer_id = $1
		 ORDER BY scored_at DESC
		 LIMIT 1`,
		customerID).Scan(&pred.Probability, &pred.Label, &pred.ModelVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: prediction for %s: %v", ErrUpstreamUnavailable, customerID, err)
	}
	return &pred, nil
}

// PopulationStats computes the mean and standard deviation of a metric over
// the full population. Unknown metrics and degenerate populations yield an
// undefined baseline.
func (w *Warehouse) PopulationStats(ctx context.Context, metric string) (anomaly.Stats, error) {
	column, ok := metricColumns[metric]
	if !ok {
		return anomaly.Stats{}, fmt.Errorf("unknown metric: %s", metric)
	}

	var (
		mean   sql.NullFloat64
		stddev sql.NullFloat64
		count  int
	)
	// column comes from the whitelist above, never from user input
	query := fmt.Sprintf(
		`SELECT AVG(%s), STDDEV(%s), COUNT(*) FROM customers WHERE churned_flag IS NULL`,
		column, column)
	if err := w.pool.QueryRow(ctx, query).Scan(&mean, &stddev, &count); err != nil {
		return anomaly.Stats{}, fmt.Errorf("%w: stats for %s: %v", ErrUpstreamUnavailable, metric, err)
	}

	stats := anomaly.Stats{Count: count}
	if mean.Valid {
		stats.Mean = mean.Float64
	}
	if stddev.Valid {
		stats.StdDev = stddev.Float64
	}
	return stats, nil
}

// Close releases the connection pool.
func (w *Warehouse) Close() {
	w.pool.Close()
}
