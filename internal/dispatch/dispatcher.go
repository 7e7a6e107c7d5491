package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moolen/vigil/internal/audit"
	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/risk"
)

// Dispatcher routes decisions to their channels and records every outcome
// on the audit trail. Each customer/cycle pair is dispatched at most once;
// failed deliveries are recorded and left for a later cycle, never retried
// within the same cycle.
type Dispatcher struct {
	trail    audit.Trail
	channels map[risk.ActionType]Channel
	logger   *logging.Logger
}

// NewDispatcher creates a dispatcher over the given trail and channels.
func NewDispatcher(trail audit.Trail, channels ...Channel) *Dispatcher {
	byType := make(map[risk.ActionType]Channel, len(channels))
	for _, ch := range channels {
		byType[risk.ActionType(ch.Name())] = ch
	}
	return &Dispatcher{
		trail:    trail,
		channels: byType,
		logger:   logging.GetLogger("dispatch"),
	}
}

// Dispatch executes one decision and appends the outcome to the audit trail.
// The returned entry is what was recorded. ErrDuplicateDispatch is returned
// without any side effect when the pair was already recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, dec risk.ActionDecision, rec risk.CustomerRecord, rca risk.RootCauseAnalysis, correlationID string) (audit.Entry, error) {
	if d.trail.Seen(rec.ID, correlationID) {
		return audit.Entry{}, fmt.Errorf("customer %s in cycle %s: %w", rec.ID, correlationID, ErrDuplicateDispatch)
	}

	entry := audit.Entry{
		CustomerID:    rec.ID,
		CorrelationID: correlationID,
		ActionType:    dec.Type,
		Urgency:       dec.Urgency,
		Cause:         rca.PrimaryCause,
		Timestamp:     time.Now().UTC(),
	}

	if dec.Type == risk.ActionNone {
		entry.Outcome = audit.OutcomeSkipped
		entry.Reason = dec.Rationale
		return entry, d.trail.Append(entry)
	}

	channel, ok := d.channels[dec.Type]
	if !ok {
		err := &DispatchError{
			Channel:        string(dec.Type),
			Classification: ClassPermanent,
			Err:            fmt.Errorf("no channel configured for action type %s", dec.Type),
		}
		entry.Outcome = audit.OutcomeFailure
		entry.Reason = err.Error()
		if appendErr := d.trail.Append(entry); appendErr != nil {
			return entry, appendErr
		}
		return entry, err
	}

	if err := channel.Deliver(ctx, Payload{
		Customer:      rec,
		Decision:      dec,
		Analysis:      rca,
		CorrelationID: correlationID,
	}); err != nil {
		var dispatchErr *DispatchError
		if !errors.As(err, &dispatchErr) {
			dispatchErr = &DispatchError{
				Channel:        channel.Name(),
				Classification: ClassTransient,
				Err:            err,
			}
		}
		d.logger.ErrorWithErr("delivery failed for customer %s", dispatchErr, rec.ID)

		entry.Outcome = audit.OutcomeFailure
		entry.Reason = dispatchErr.Error()
		if appendErr := d.trail.Append(entry); appendErr != nil {
			return entry, appendErr
		}
		return entry, dispatchErr
	}

	d.logger.Info("dispatched %s (%s) for customer %s", dec.Type, dec.Urgency, rec.ID)
	entry.Outcome = audit.OutcomeSuccess
	return entry, d.trail.Append(entry)
}
