package anomaly

import (
	"math"

	"github.com/moolen/vigil/internal/logging"
)

// Default z-score bucket boundaries.
const (
	DefaultModerateZ = 2.0
	DefaultSevereZ   = 3.0
)

// Detector scores individual metrics against population baselines.
// Metrics are always scored independently; combining signals across metrics
// is the context assembler's job.
type Detector struct {
	moderateZ float64
	severeZ   float64
	logger    *logging.Logger
}

// NewDetector creates a detector with the given severity bucket boundaries.
// Non-positive or inverted boundaries fall back to the defaults.
func NewDetector(moderateZ, severeZ float64) *Detector {
	if moderateZ <= 0 || severeZ <= moderateZ {
		moderateZ = DefaultModerateZ
		severeZ = DefaultSevereZ
	}
	return &Detector{
		moderateZ: moderateZ,
		severeZ:   severeZ,
		logger:    logging.GetLogger("anomaly"),
	}
}

// Score computes the deviation of an observed metric value from the
// population baseline. A degenerate baseline (undefined stats) yields an
// undefined score rather than an error, so a single-customer population can
// never crash a cycle.
func (d *Detector) Score(metric string, observed float64, stats Stats) Score {
	score := Score{
		Metric:   metric,
		Observed: observed,
		Mean:     stats.Mean,
		StdDev:   stats.StdDev,
		Severity: SeverityNone,
	}

	if !stats.Defined() {
		d.logger.Debug("baseline undefined for metric %s (count=%d, stddev=%f)",
			metric, stats.Count, stats.StdDev)
		return score
	}

	score.Z = (observed - stats.Mean) / stats.StdDev
	score.Defined = true
	score.Severity = d.classify(math.Abs(score.Z))
	return score
}

func (d *Detector) classify(absZ float64) Severity {
	switch {
	case absZ >= d.severeZ:
		return SeveritySevere
	case absZ >= d.moderateZ:
		return SeverityModerate
	default:
		return SeverityNone
	}
}

// ComputeStats derives a population baseline from raw observations.
// Used when the prediction source cannot supply warehouse-side statistics.
func ComputeStats(values []float64) Stats {
	n := len(values)
	if n == 0 {
		return Stats{}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	if n < 2 {
		return Stats{Mean: mean, Count: n}
	}

	var sqDiff float64
	for _, v := range values {
		sqDiff += (v - mean) * (v - mean)
	}
	// Sample standard deviation, matching warehouse STDDEV semantics
	return Stats{
		Mean:   mean,
		StdDev: math.Sqrt(sqDiff / float64(n-1)),
		Count:  n,
	}
}
