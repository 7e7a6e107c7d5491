// Package anomaly computes statistical deviation scores for customer metrics
// against a population baseline.
package anomaly

// Severity buckets an anomaly score by the magnitude of its z-score.
type Severity string

const (
	// SeverityNone - the metric is within normal population range
	SeverityNone Severity = "none"
	// SeverityModerate - the metric deviates noticeably from the population
	SeverityModerate Severity = "moderate"
	// SeveritySevere - the metric is an extreme outlier
	SeveritySevere Severity = "severe"
)

// Stats holds the population baseline for a single metric, computed once per
// cycle over the full customer population.
type Stats struct {
	Mean   float64
	StdDev float64
	Count  int
}

// Defined reports whether the baseline supports a meaningful z-score.
// Populations with fewer than two members or zero variance do not.
func (s Stats) Defined() bool {
	return s.Count >= 2 && s.StdDev > 0
}

// Score is the deviation of one customer's metric from the population.
// When Defined is false the score carries no anomaly signal: Z is zero and
// Severity is none, never an infinite or NaN value.
type Score struct {
	Metric   string   `json:"metric"`
	Observed float64  `json:"observed"`
	Mean     float64  `json:"mean"`
	StdDev   float64  `json:"stddev"`
	Z        float64  `json:"z_score"`
	Defined  bool     `json:"defined"`
	Severity Severity `json:"severity"`
}
