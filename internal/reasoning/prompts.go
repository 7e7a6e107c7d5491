package reasoning

import (
	"encoding/json"
	"fmt"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/risk"
)

const rootCauseSystemPrompt = `You are a customer retention analyst for a subscription business.
You are given one customer's behavioral snapshot, their churn prediction and
statistical anomalies against the customer population. Identify the most
likely primary cause of their churn risk.

Respond with a single JSON object and nothing else:
{
  "primary_cause": "<short cause label, e.g. declining_engagement, support_friction, price_sensitivity, low_feature_adoption, unknown>",
  "confidence": <number between 0 and 1>,
  "supporting_evidence": ["<observation>", ...],
  "summary": "<one or two sentences>"
}`

const actionSystemPrompt = `You are a customer retention analyst deciding the next intervention for
an at-risk customer. You are given the customer's snapshot and a root-cause
analysis of their churn risk.

Respond with a single JSON object and nothing else:
{
  "action_type": "none" | "alert" | "ticket" | "outreach",
  "urgency": "low" | "medium" | "high" | "critical",
  "rationale": "<one or two sentences>",
  "confidence": <number between 0 and 1>
}

Choose "none" when no intervention is warranted. Choose "alert" to notify the
retention team, "ticket" to open a case for account management, "outreach" to
contact the customer directly.`

// promptContext is the customer evidence serialized into both prompts.
type promptContext struct {
	Customer  risk.CustomerRecord    `json:"customer"`
	RiskKnown bool                   `json:"risk_known"`
	Predicted *risk.PredictionResult `json:"prediction,omitempty"`
	Anomalies []anomaly.Score        `json:"anomalies"`
	KPIs      map[string]float64     `json:"business_kpis,omitempty"`
}

func buildRootCausePrompt(actx risk.AnalysisContext) string {
	evidence, err := json.MarshalIndent(promptContext{
		Customer:  actx.Customer,
		RiskKnown: actx.RiskKnown(),
		Predicted: actx.Prediction,
		Anomalies: actx.Anomalies,
		KPIs:      actx.KPIs.Values,
	}, "", "  ")
	if err != nil {
		// CustomerRecord and Score marshal without error; keep the prompt usable anyway
		evidence = []byte("{}")
	}
	return fmt.Sprintf("Analyze this customer's churn risk:\n\n%s", evidence)
}

func buildActionPrompt(actx risk.AnalysisContext, rca risk.RootCauseAnalysis) string {
	evidence, err := json.MarshalIndent(promptContext{
		Customer:  actx.Customer,
		RiskKnown: actx.RiskKnown(),
		Predicted: actx.Prediction,
		Anomalies: actx.Anomalies,
		KPIs:      actx.KPIs.Values,
	}, "", "  ")
	if err != nil {
		evidence = []byte("{}")
	}
	analysis, err := json.MarshalIndent(rca, "", "  ")
	if err != nil {
		analysis = []byte("{}")
	}
	return fmt.Sprintf("Customer:\n\n%s\n\nRoot-cause analysis:\n\n%s\n\nDecide the next action.", evidence, analysis)
}
