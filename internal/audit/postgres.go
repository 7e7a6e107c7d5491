package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moolen/vigil/internal/logging"
)

// PostgresTrail persists audit entries to the action_logs table, the same
// store the retraining pipeline reads from.
type PostgresTrail struct {
	pool    *pgxpool.Pool
	logger  *logging.Logger
	timeout time.Duration
}

// NewPostgresTrail connects to the warehouse and verifies connectivity.
func NewPostgresTrail(ctx context.Context, dsn string) (*PostgresTrail, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit store unreachable: %w", err)
	}
	return &PostgresTrail{
		pool:    pool,
		logger:  logging.GetLogger("audit.postgres"),
		timeout: 10 * time.Second,
	}, nil
}

// Append inserts one entry into action_logs.
func (t *PostgresTrail) Append(entry Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	_, err := t.pool.Exec(ctx,
		`INSERT INTO action_logs
		 (customer_id, correlation_id, action_type, urgency, outcome, reason, cause, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.CustomerID, entry.CorrelationID, string(entry.ActionType),
		string(entry.Urgency), string(entry.Outcome), entry.Reason, entry.Cause,
		entry.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// Seen queries the store for an existing (customer, correlation) record.
// A failed lookup is reported as unseen; duplicate prevention degrades rather
// than blocking the cycle on a read error.
func (t *PostgresTrail) Seen(customerID, correlationID string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	var seen bool
	err := t.pool.QueryRow(ctx,
		`SELECT EXISTS(
		   SELECT 1 FROM action_logs
		   WHERE customer_id = $1 AND correlation_id = $2)`,
		customerID, correlationID).Scan(&seen)
	if err != nil {
		t.logger.ErrorWithErr("audit lookup failed for customer %s", err, customerID)
		return false
	}
	return seen
}

// Close releases the connection pool.
func (t *PostgresTrail) Close() error {
	t.pool.Close()
	return nil
}
