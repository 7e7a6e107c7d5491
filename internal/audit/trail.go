// Package audit provides the append-only action log of the decision
// pipeline. Every customer processed in a cycle produces exactly one entry,
// keyed by (customer id, correlation id), which is also the idempotency
// record consulted before any external dispatch.
package audit

import (
	"time"

	"github.com/moolen/vigil/internal/risk"
)

// Outcome classifies what happened to a dispatched action.
type Outcome string

const (
	// OutcomeSuccess - the channel accepted the payload
	OutcomeSuccess Outcome = "success"
	// OutcomeFailure - the channel invocation failed
	OutcomeFailure Outcome = "failure"
	// OutcomeSkipped - no external call was made
	OutcomeSkipped Outcome = "skipped"
)

// Entry is one persisted audit record. Entries are append-only; the core
// never updates or deletes them.
type Entry struct {
	CustomerID    string          `json:"customer_id"`
	CorrelationID string          `json:"correlation_id"`
	ActionType    risk.ActionType `json:"action_type"`
	Urgency       risk.Urgency    `json:"urgency,omitempty"`
	Outcome       Outcome         `json:"outcome"`
	Reason        string          `json:"reason,omitempty"`
	Cause         string          `json:"cause,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Key returns the idempotency key for an entry.
func (e Entry) Key() string {
	return Key(e.CustomerID, e.CorrelationID)
}

// Key builds the idempotency key for a (customer, correlation) pair.
func Key(customerID, correlationID string) string {
	return customerID + "\x00" + correlationID
}

// Trail is an append-only audit log with an idempotency lookup.
// Append must be safe for concurrent use; it is the serialization point when
// customers are processed in parallel.
type Trail interface {
	// Append persists one entry.
	Append(entry Entry) error

	// Seen reports whether an entry for the (customer, correlation) pair
	// has already been appended.
	Seen(customerID, correlationID string) bool

	// Close flushes and releases the underlying resources.
	Close() error
}
