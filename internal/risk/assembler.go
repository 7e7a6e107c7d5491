package risk

import "github.com/moolen/vigil/internal/anomaly"

// Assemble merges a customer record, its optional prediction, its anomaly
// scores and the shared KPI snapshot into one analysis context.
//
// It is a pure function and always succeeds: a missing prediction (upstream
// outage, unscored customer) yields a context whose risk is unknown, so the
// reasoning adapter can reason about missing data explicitly instead of
// treating it as low risk.
func Assemble(record CustomerRecord, pred *PredictionResult, scores []anomaly.Score, kpis KPISnapshot) AnalysisContext {
	return AnalysisContext{
		Customer:   record,
		Prediction: pred,
		Anomalies:  scores,
		KPIs:       kpis,
	}
}
