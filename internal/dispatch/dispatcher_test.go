package dispatch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/vigil/internal/audit"
	"github.com/moolen/vigil/internal/risk"
)

// recordingChannel counts deliveries and optionally fails.
type recordingChannel struct {
	name      string
	delivered int
	err       error
}

func (c *recordingChannel) Deliver(_ context.Context, _ Payload) error {
	c.delivered++
	return c.err
}

func (c *recordingChannel) Name() string { return c.name }

func testDecision(actionType risk.ActionType) risk.ActionDecision {
	return risk.ActionDecision{
		Type:       actionType,
		Urgency:    risk.UrgencyHigh,
		Rationale:  "login frequency collapsed",
		Confidence: 0.8,
	}
}

var testAnalysis = risk.RootCauseAnalysis{
	PrimaryCause: "declining_engagement",
	Confidence:   0.85,
}

func TestDispatcher_SuccessfulDelivery(t *testing.T) {
	trail := audit.NewMemoryTrail()
	alert := &recordingChannel{name: "alert"}
	d := NewDispatcher(trail, alert)

	entry, err := d.Dispatch(context.Background(), testDecision(risk.ActionAlert),
		risk.CustomerRecord{ID: "CUST-001"}, testAnalysis, "cycle-1")
	require.NoError(t, err)

	assert.Equal(t, 1, alert.delivered)
	assert.Equal(t, audit.OutcomeSuccess, entry.Outcome)
	assert.Equal(t, risk.ActionAlert, entry.ActionType)
	assert.Equal(t, "declining_engagement", entry.Cause)
	assert.True(t, trail.Seen("CUST-001", "cycle-1"))
}

func TestDispatcher_NoActionIsSkippedButAudited(t *testing.T) {
	trail := audit.NewMemoryTrail()
	alert := &recordingChannel{name: "alert"}
	d := NewDispatcher(trail, alert)

	entry, err := d.Dispatch(context.Background(), risk.NoAction("nothing elevated"),
		risk.CustomerRecord{ID: "CUST-002"}, testAnalysis, "cycle-1")
	require.NoError(t, err)

	assert.Zero(t, alert.delivered)
	assert.Equal(t, audit.OutcomeSkipped, entry.Outcome)
	assert.Equal(t, "nothing elevated", entry.Reason)
	assert.True(t, trail.Seen("CUST-002", "cycle-1"))
}

func TestDispatcher_DuplicateIsRejectedWithoutDelivery(t *testing.T) {
	trail := audit.NewMemoryTrail()
	alert := &recordingChannel{name: "alert"}
	d := NewDispatcher(trail, alert)

	_, err := d.Dispatch(context.Background(), testDecision(risk.ActionAlert),
		risk.CustomerRecord{ID: "CUST-001"}, testAnalysis, "cycle-1")
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), testDecision(risk.ActionAlert),
		risk.CustomerRecord{ID: "CUST-001"}, testAnalysis, "cycle-1")
	assert.ErrorIs(t, err, ErrDuplicateDispatch)

	assert.Equal(t, 1, alert.delivered, "duplicate must not reach the channel")
	assert.Len(t, trail.Entries(), 1, "duplicate must not be recorded twice")
}

func TestDispatcher_SameCustomerNewCycleDispatches(t *testing.T) {
	trail := audit.NewMemoryTrail()
	alert := &recordingChannel{name: "alert"}
	d := NewDispatcher(trail, alert)

	_, err := d.Dispatch(context.Background(), testDecision(risk.ActionAlert),
		risk.CustomerRecord{ID: "CUST-001"}, testAnalysis, "cycle-1")
	require.NoError(t, err)
	_, err = d.Dispatch(context.Background(), testDecision(risk.ActionAlert),
		risk.CustomerRecord{ID: "CUST-001"}, testAnalysis, "cycle-2")
	require.NoError(t, err)

	assert.Equal(t, 2, alert.delivered)
}

func TestDispatcher_DeliveryFailureIsRecorded(t *testing.T) {
	trail := audit.NewMemoryTrail()
	ticket := &recordingChannel{name: "ticket", err: &DispatchError{
		Channel:        "ticket",
		Classification: ClassTransient,
		Err:            errors.New("connection refused"),
	}}
	d := NewDispatcher(trail, ticket)

	entry, err := d.Dispatch(context.Background(), testDecision(risk.ActionTicket),
		risk.CustomerRecord{ID: "CUST-003"}, testAnalysis, "cycle-1")

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ClassTransient, dispatchErr.Classification)

	assert.Equal(t, audit.OutcomeFailure, entry.Outcome)
	assert.Contains(t, entry.Reason, "connection refused")
	// The pair is consumed for this cycle; no in-cycle retry
	assert.True(t, trail.Seen("CUST-003", "cycle-1"))
	assert.Equal(t, 1, ticket.delivered)
}

func TestDispatcher_MissingChannelIsPermanentFailure(t *testing.T) {
	trail := audit.NewMemoryTrail()
	d := NewDispatcher(trail)

	entry, err := d.Dispatch(context.Background(), testDecision(risk.ActionOutreach),
		risk.CustomerRecord{ID: "CUST-004"}, testAnalysis, "cycle-1")

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ClassPermanent, dispatchErr.Classification)
	assert.Equal(t, audit.OutcomeFailure, entry.Outcome)
}

func TestAlertChannel_Deliver(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewAlertChannel(server.URL+"/hooks/retention", 5*time.Second)
	err := ch.Deliver(context.Background(), Payload{
		Customer:      risk.CustomerRecord{ID: "CUST-001"},
		Decision:      testDecision(risk.ActionAlert),
		Analysis:      testAnalysis,
		CorrelationID: "cycle-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "/hooks/retention", gotPath)
}

func TestTicketChannel_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ch := NewTicketChannel(server.URL, "RET", "bot", "token", 5*time.Second)
	err := ch.Deliver(context.Background(), Payload{
		Customer: risk.CustomerRecord{ID: "CUST-001"},
		Decision: testDecision(risk.ActionTicket),
		Analysis: testAnalysis,
	})

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ClassTransient, dispatchErr.Classification)
}

func TestTicketChannel_RejectionIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	ch := NewTicketChannel(server.URL, "RET", "bot", "token", 5*time.Second)
	err := ch.Deliver(context.Background(), Payload{
		Customer: risk.CustomerRecord{ID: "CUST-001"},
		Decision: testDecision(risk.ActionTicket),
		Analysis: testAnalysis,
	})

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ClassPermanent, dispatchErr.Classification)
}

func TestOutreachChannel_MissingEmailIsPermanent(t *testing.T) {
	ch := NewOutreachChannel("http://mail.invalid", "key", "retention@example.com", time.Second)
	err := ch.Deliver(context.Background(), Payload{
		Customer: risk.CustomerRecord{ID: "CUST-001", Email: ""},
		Decision: testDecision(risk.ActionOutreach),
		Analysis: testAnalysis,
	})

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, ClassPermanent, dispatchErr.Classification)
}

func TestOutreachChannel_Deliver(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	ch := NewOutreachChannel(server.URL, "key", "retention@example.com", 5*time.Second)
	err := ch.Deliver(context.Background(), Payload{
		Customer: risk.CustomerRecord{ID: "CUST-001", Email: "jo@example.com"},
		Decision: testDecision(risk.ActionOutreach),
		Analysis: testAnalysis,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer key", gotAuth)
}
