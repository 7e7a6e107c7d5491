// Package risk defines the core data model of the churn decision pipeline:
// customer snapshots, prediction results, the per-customer analysis context,
// and the bounded decision types produced by reasoning.
package risk

import (
	"time"

	"github.com/moolen/vigil/internal/anomaly"
)

// Metric names monitored for anomalies. These match the column names of the
// customer mart.
const (
	MetricLoginFrequency    = "login_frequency_30d"
	MetricPurchaseFrequency = "purchase_frequency_30d"
	MetricSupportTickets    = "support_tickets_30d"
	MetricMonthlyRevenue    = "monthly_revenue"
)

// DefaultMetrics is the default set of metrics scored each cycle.
var DefaultMetrics = []string{
	MetricLoginFrequency,
	MetricPurchaseFrequency,
	MetricSupportTickets,
	MetricMonthlyRevenue,
}

// CustomerRecord is an immutable snapshot of one customer, sourced from the
// customer mart once per cycle. The core never mutates it.
type CustomerRecord struct {
	ID                    string    `json:"customer_id"`
	SubscriptionID        string    `json:"subscription_id"`
	Email                 string    `json:"email,omitempty"`
	SubscriptionStart     time.Time `json:"subscription_start_date"`
	SubscriptionEnd       time.Time `json:"subscription_end_date,omitempty"`
	MonthlyRevenue        float64   `json:"monthly_revenue"`
	TotalRevenue          float64   `json:"total_revenue"`
	DaysSinceLastPurchase int       `json:"days_since_last_purchase"`
	DaysSinceLastLogin    int       `json:"days_since_last_login"`
	LoginFrequency30d     int       `json:"login_frequency_30d"`
	PurchaseFrequency30d  int       `json:"purchase_frequency_30d"`
	SupportTickets30d     int       `json:"support_tickets_30d"`
	FeatureUsageCount     int       `json:"feature_usage_count"`
}

// Metric returns the value of a monitored metric by name.
// The second return is false for unknown metric names.
func (r CustomerRecord) Metric(name string) (float64, bool) {
	switch name {
	case MetricLoginFrequency:
		return float64(r.LoginFrequency30d), true
	case MetricPurchaseFrequency:
		return float64(r.PurchaseFrequency30d), true
	case MetricSupportTickets:
		return float64(r.SupportTickets30d), true
	case MetricMonthlyRevenue:
		return r.MonthlyRevenue, true
	default:
		return 0, false
	}
}

// PredictionResult holds the churn model output for one customer.
// A missing result (upstream outage, customer not scored) is represented by
// a nil *PredictionResult, never by a zero probability.
type PredictionResult struct {
	Probability  float64 `json:"churn_probability"`
	Label        bool    `json:"predicted_churn"`
	ModelVersion string  `json:"model_version"`
}

// KPISnapshot is the business-KPI context fetched once per cycle and shared
// read-only across all customers in that cycle.
type KPISnapshot struct {
	Values    map[string]float64 `json:"values"`
	FetchedAt time.Time          `json:"fetched_at"`
}

// AnalysisContext is the unit of work handed to the reasoning adapter: one
// customer with its prediction, anomaly scores and the shared KPI snapshot.
// It is assembled fresh per customer per cycle and never persisted.
type AnalysisContext struct {
	Customer   CustomerRecord    `json:"customer"`
	Prediction *PredictionResult `json:"prediction,omitempty"`
	Anomalies  []anomaly.Score   `json:"anomalies"`
	KPIs       KPISnapshot       `json:"kpis"`
}

// RiskKnown reports whether a churn prediction is available.
// When false the customer's risk is unknown, which is distinct from low.
func (c AnalysisContext) RiskKnown() bool {
	return c.Prediction != nil
}

// HasSevereAnomaly reports whether any metric scored a severe anomaly.
func (c AnalysisContext) HasSevereAnomaly() bool {
	for _, s := range c.Anomalies {
		if s.Severity == anomaly.SeveritySevere {
			return true
		}
	}
	return false
}

// CauseUnknown is the primary-cause value used when reasoning could not
// produce an explanation.
const CauseUnknown = "unknown"

// RootCauseAnalysis is the reasoning service's explanation of a customer's
// risk. Produced once per customer per cycle and attached to the audit
// record; never mutated after creation.
type RootCauseAnalysis struct {
	PrimaryCause string   `json:"primary_cause"`
	Confidence   float64  `json:"confidence"`
	Factors      []string `json:"supporting_evidence"`
	Summary      string   `json:"summary"`
	// Degraded marks an analysis recovered by the fallback parser.
	Degraded bool `json:"degraded,omitempty"`
}

// ActionType is the bounded set of interventions the pipeline can take.
type ActionType string

const (
	ActionNone     ActionType = "none"
	ActionAlert    ActionType = "alert"
	ActionTicket   ActionType = "ticket"
	ActionOutreach ActionType = "outreach"
)

// ParseActionType validates a raw action type string.
func ParseActionType(s string) (ActionType, bool) {
	switch ActionType(s) {
	case ActionNone, ActionAlert, ActionTicket, ActionOutreach:
		return ActionType(s), true
	}
	return "", false
}

// Urgency expresses how quickly an action should be taken.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

var urgencyRank = map[Urgency]int{
	UrgencyLow:      0,
	UrgencyMedium:   1,
	UrgencyHigh:     2,
	UrgencyCritical: 3,
}

// ParseUrgency validates a raw urgency string.
func ParseUrgency(s string) (Urgency, bool) {
	if _, ok := urgencyRank[Urgency(s)]; ok {
		return Urgency(s), true
	}
	return "", false
}

// MaxUrgency returns the higher of two urgencies.
func MaxUrgency(a, b Urgency) Urgency {
	if urgencyRank[a] >= urgencyRank[b] {
		return a
	}
	return b
}

// ActionDecision is the bounded outcome of the reasoning step.
// A Type of none means no downstream dispatch occurs and Urgency is ignored.
type ActionDecision struct {
	Type       ActionType `json:"action_type"`
	Urgency    Urgency    `json:"urgency"`
	Rationale  string     `json:"rationale"`
	Confidence float64    `json:"confidence"`
	// Degraded marks a decision recovered by the fallback parser or the
	// deterministic no-action fallthrough.
	Degraded bool `json:"degraded,omitempty"`
}

// NoAction is the deterministic decision used when reasoning fails entirely:
// no action, low urgency, zero confidence.
func NoAction(rationale string) ActionDecision {
	return ActionDecision{
		Type:       ActionNone,
		Urgency:    UrgencyLow,
		Rationale:  rationale,
		Confidence: 0,
		Degraded:   true,
	}
}
