package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/vigil/internal/risk"
)

func TestParseRootCause_StrictJSON(t *testing.T) {
	raw := `{"primary_cause": "declining_engagement", "confidence": 0.85,
		"supporting_evidence": ["login frequency dropped 4 sigma below mean"],
		"summary": "Customer has stopped logging in."}`

	rca, status := ParseRootCause(raw)
	require.Equal(t, StatusParsed, status)
	assert.Equal(t, "declining_engagement", rca.PrimaryCause)
	assert.Equal(t, 0.85, rca.Confidence)
	assert.Len(t, rca.Factors, 1)
	assert.False(t, rca.Degraded)
}

func TestParseRootCause_FencedJSON(t *testing.T) {
	raw := "Here is my analysis:\n```json\n{\"primary_cause\": \"support_friction\", \"confidence\": 0.7, \"summary\": \"s\"}\n```\nLet me know if you need more."

	rca, status := ParseRootCause(raw)
	require.Equal(t, StatusParsed, status)
	assert.Equal(t, "support_friction", rca.PrimaryCause)
}

func TestParseRootCause_KeywordFallback(t *testing.T) {
	raw := "The customer's login activity has collapsed and engagement is way down."

	rca, status := ParseRootCause(raw)
	require.Equal(t, StatusDegraded, status)
	assert.Equal(t, "declining_engagement", rca.PrimaryCause)
	assert.Equal(t, degradedConfidence, rca.Confidence)
	assert.True(t, rca.Degraded)
}

func TestParseRootCause_TotalFailure(t *testing.T) {
	rca, status := ParseRootCause("I cannot help with that.")
	require.Equal(t, StatusFailed, status)
	assert.Equal(t, risk.CauseUnknown, rca.PrimaryCause)
	assert.Zero(t, rca.Confidence)
	assert.True(t, rca.Degraded)
}

func TestParseRootCause_OutOfRangeConfidence(t *testing.T) {
	raw := `{"primary_cause": "price_sensitivity", "confidence": 1.7, "summary": "s"}`
	// Bad confidence invalidates the strict parse; the keyword path still
	// recovers the cause from the raw text.
	rca, status := ParseRootCause(raw)
	require.Equal(t, StatusDegraded, status)
	assert.Equal(t, "price_sensitivity", rca.PrimaryCause)
	assert.Equal(t, degradedConfidence, rca.Confidence)
}

func TestParseAction_StrictJSON(t *testing.T) {
	raw := `{"action_type": "ticket", "urgency": "high", "rationale": "support backlog", "confidence": 0.9}`

	dec, status := ParseAction(raw)
	require.Equal(t, StatusParsed, status)
	assert.Equal(t, risk.ActionTicket, dec.Type)
	assert.Equal(t, risk.UrgencyHigh, dec.Urgency)
	assert.Equal(t, 0.9, dec.Confidence)
	assert.False(t, dec.Degraded)
}

func TestParseAction_InvalidEnumFallsBack(t *testing.T) {
	raw := `{"action_type": "escalate", "urgency": "asap", "rationale": "open a ticket urgently", "confidence": 0.9}`

	dec, status := ParseAction(raw)
	require.Equal(t, StatusDegraded, status)
	assert.Equal(t, risk.ActionTicket, dec.Type)
	assert.Equal(t, risk.UrgencyHigh, dec.Urgency)
	assert.Equal(t, degradedConfidence, dec.Confidence)
	assert.True(t, dec.Degraded)
}

func TestParseAction_KeywordFallback(t *testing.T) {
	raw := "We should reach out to the customer directly, this is critical."

	dec, status := ParseAction(raw)
	require.Equal(t, StatusDegraded, status)
	assert.Equal(t, risk.ActionOutreach, dec.Type)
	assert.Equal(t, risk.UrgencyCritical, dec.Urgency)
}

func TestParseAction_TotalFailure(t *testing.T) {
	_, status := ParseAction("As an analyst I would consider several options.")
	assert.Equal(t, StatusFailed, status)
}

func TestParseAction_Deterministic(t *testing.T) {
	raw := "gibberish reply %%%"
	first, firstStatus := ParseAction(raw)
	second, secondStatus := ParseAction(raw)
	assert.Equal(t, firstStatus, secondStatus)
	assert.Equal(t, first, second)
}

func TestExtractJSON_BracesInsideStrings(t *testing.T) {
	raw := `prefix {"summary": "value with } brace", "primary_cause": "unknown", "confidence": 0.1} suffix`
	doc, ok := extractJSON(raw)
	require.True(t, ok)
	assert.Contains(t, doc, "value with } brace")
}
