package reasoning

import (
	"github.com/moolen/vigil/internal/risk"
)

// DefaultProbabilityThreshold is the churn probability above which a
// customer counts as high risk for the urgency floor.
const DefaultProbabilityThreshold = 0.7

// UrgencyFloor derives the minimum acceptable urgency from the hard signals
// in the analysis context, independent of what the model says:
//
//	high churn probability AND a severe anomaly  -> critical
//	high churn probability alone                 -> high
//	a severe anomaly alone                       -> medium
//	otherwise                                    -> low
//
// An unknown prediction never counts as high risk.
func UrgencyFloor(actx risk.AnalysisContext, threshold float64) risk.Urgency {
	highRisk := actx.RiskKnown() && actx.Prediction.Probability >= threshold
	severe := actx.HasSevereAnomaly()

	switch {
	case highRisk && severe:
		return risk.UrgencyCritical
	case highRisk:
		return risk.UrgencyHigh
	case severe:
		return risk.UrgencyMedium
	default:
		return risk.UrgencyLow
	}
}

// ApplyFloor raises a decision's urgency to the floor when the model scored
// it lower. The action type is never changed, and decisions that take no
// action keep their urgency untouched.
func ApplyFloor(dec risk.ActionDecision, floor risk.Urgency) risk.ActionDecision {
	if dec.Type == risk.ActionNone {
		return dec
	}
	dec.Urgency = risk.MaxUrgency(dec.Urgency, floor)
	return dec
}
