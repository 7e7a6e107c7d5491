// Package dispatch delivers action decisions to downstream channels (alert
// webhook, ticketing system, customer outreach) and records every outcome on
// the audit trail exactly once per customer per cycle.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/moolen/vigil/internal/risk"
)

// ErrDuplicateDispatch is returned when a customer/cycle pair has already
// been recorded on the audit trail.
var ErrDuplicateDispatch = errors.New("duplicate dispatch")

// Payload is the material a channel delivers for one decision.
type Payload struct {
	Customer      risk.CustomerRecord    `json:"customer"`
	Decision      risk.ActionDecision    `json:"decision"`
	Analysis      risk.RootCauseAnalysis `json:"analysis"`
	CorrelationID string                 `json:"correlation_id"`
}

// Channel delivers a payload to one downstream system.
type Channel interface {
	Deliver(ctx context.Context, payload Payload) error
	Name() string
}

// Classification buckets a delivery failure for the audit record.
type Classification string

const (
	// ClassTransient - network failures and 5xx responses, likely to
	// succeed in a later cycle
	ClassTransient Classification = "transient"
	// ClassPermanent - rejected requests (4xx), retrying will not help
	ClassPermanent Classification = "permanent"
)

// DispatchError wraps a channel delivery failure with its classification.
type DispatchError struct {
	Channel        string
	Classification Classification
	Err            error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s delivery failed (%s): %v", e.Channel, e.Classification, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a failure classification.
func classifyStatus(status int) Classification {
	if status >= 400 && status < 500 {
		return ClassPermanent
	}
	return ClassTransient
}
