package reasoning

import (
	"context"
	"time"

	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/risk"
)

// AdapterConfig tunes the adapter's retry and risk-floor behavior.
type AdapterConfig struct {
	// ProbabilityThreshold is the churn probability above which the urgency
	// floor treats a customer as high risk.
	ProbabilityThreshold float64

	// MaxRetries is the number of additional attempts after a failed call.
	MaxRetries int

	// CallTimeout bounds each individual provider call.
	CallTimeout time.Duration

	// InitialBackoff is the delay before the first retry; it doubles per
	// attempt up to a fixed cap.
	InitialBackoff time.Duration
}

// DefaultAdapterConfig returns the adapter defaults.
func DefaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		MaxRetries:           2,
		CallTimeout:          30 * time.Second,
		InitialBackoff:       500 * time.Millisecond,
	}
}

const maxBackoff = 10 * time.Second

// Adapter runs the two-step reasoning flow for one customer: a root-cause
// call followed by an action call that sees the root-cause result. It never
// returns an error; every failure mode degrades to a deterministic decision.
type Adapter struct {
	provider Provider
	cfg      AdapterConfig
	logger   *logging.Logger
}

// NewAdapter creates an adapter around a provider, filling zero config
// fields with defaults.
func NewAdapter(provider Provider, cfg AdapterConfig) *Adapter {
	def := DefaultAdapterConfig()
	if cfg.ProbabilityThreshold <= 0 || cfg.ProbabilityThreshold > 1 {
		cfg.ProbabilityThreshold = def.ProbabilityThreshold
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	return &Adapter{
		provider: provider,
		cfg:      cfg,
		logger:   logging.GetLogger("reasoning"),
	}
}

// Analyze produces a root-cause analysis and an action decision for one
// customer. Transport failures after retries and unparseable replies both
// degrade: the root cause becomes unknown and the decision becomes a
// deterministic no-action. The final urgency never falls below the floor
// derived from the customer's hard risk signals.
func (a *Adapter) Analyze(ctx context.Context, actx risk.AnalysisContext) (risk.RootCauseAnalysis, risk.ActionDecision) {
	floor := UrgencyFloor(actx, a.cfg.ProbabilityThreshold)

	raw, err := a.generate(ctx, rootCauseSystemPrompt, buildRootCausePrompt(actx))
	if err != nil {
		a.logger.ErrorWithErr("root-cause call failed for customer %s", err, actx.Customer.ID)
		rca := risk.RootCauseAnalysis{PrimaryCause: risk.CauseUnknown, Degraded: true}
		return rca, risk.NoAction("reasoning unavailable")
	}

	rca, status := ParseRootCause(raw)
	if status != StatusParsed {
		a.logger.Warn("root-cause reply for customer %s recovered as %s", actx.Customer.ID, status)
	}

	raw, err = a.generate(ctx, actionSystemPrompt, buildActionPrompt(actx, rca))
	if err != nil {
		a.logger.ErrorWithErr("action call failed for customer %s", err, actx.Customer.ID)
		return rca, risk.NoAction("reasoning unavailable")
	}

	dec, status := ParseAction(raw)
	if status == StatusFailed {
		a.logger.Warn("action reply for customer %s could not be parsed", actx.Customer.ID)
		return rca, risk.NoAction("unparseable action response")
	}
	if status == StatusDegraded {
		a.logger.Warn("action reply for customer %s recovered by keyword extraction", actx.Customer.ID)
	}

	return rca, ApplyFloor(dec, floor)
}

// generate calls the provider with a per-call timeout and bounded
// exponential backoff between attempts.
func (a *Adapter) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	backoff := a.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Debug("retrying provider call (attempt %d/%d) after %v", attempt, a.cfg.MaxRetries, backoff)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
		out, err := a.provider.Generate(callCtx, systemPrompt, userPrompt)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return "", lastErr
}
