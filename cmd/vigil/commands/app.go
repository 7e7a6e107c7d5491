package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/moolen/vigil/internal/anomaly"
	"github.com/moolen/vigil/internal/audit"
	"github.com/moolen/vigil/internal/config"
	"github.com/moolen/vigil/internal/cycle"
	"github.com/moolen/vigil/internal/dispatch"
	"github.com/moolen/vigil/internal/reasoning"
	"github.com/moolen/vigil/internal/risk"
	"github.com/moolen/vigil/internal/upstream"
)

// pipeline bundles a wired controller with the resources behind it.
type pipeline struct {
	controller *cycle.Controller
	cache      *upstream.PredictionCache
	warehouse  *upstream.Warehouse
	trail      audit.Trail
}

// runCycle executes one cycle and drops the per-cycle prediction cache so
// the next cycle sees fresh model output.
func (p *pipeline) runCycle(ctx context.Context) (cycle.Summary, error) {
	defer p.cache.Purge()
	return p.controller.Run(ctx)
}

// close releases the pipeline's resources.
func (p *pipeline) close() {
	if err := p.trail.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close audit trail: %v\n", err)
	}
	p.warehouse.Close()
}

// noKPI is used when no analytics service is configured.
type noKPI struct{}

func (noKPI) Snapshot(_ context.Context) (risk.KPISnapshot, error) {
	return risk.KPISnapshot{}, nil
}

// buildProvider selects the reasoning backend from config.
func buildProvider(cfg *config.Config) (reasoning.Provider, error) {
	providerCfg := reasoning.Config{
		Model:     cfg.Reasoning.Model,
		MaxTokens: cfg.Reasoning.MaxTokens,
	}
	switch cfg.Reasoning.Provider {
	case "anthropic":
		return reasoning.NewAnthropicProvider(providerCfg)
	case "openai":
		return reasoning.NewOpenAIProvider(os.Getenv("OPENAI_API_KEY"), providerCfg)
	case "mock":
		return reasoning.LoadScenario(cfg.Reasoning.ScenarioPath)
	default:
		return nil, fmt.Errorf("unknown reasoning provider: %s", cfg.Reasoning.Provider)
	}
}

// buildTrail constructs the audit trail, optionally mirrored to Kafka.
func buildTrail(ctx context.Context, cfg *config.Config) (audit.Trail, error) {
	var trail audit.Trail
	var err error
	if cfg.Audit.PostgresDSN != "" {
		trail, err = audit.NewPostgresTrail(ctx, cfg.Audit.PostgresDSN)
	} else {
		trail, err = audit.NewFileTrail(cfg.Audit.FilePath)
	}
	if err != nil {
		return nil, err
	}
	if len(cfg.Audit.Kafka.Brokers) > 0 {
		trail = audit.NewPublisher(trail, cfg.Audit.Kafka.Brokers, cfg.Audit.Kafka.Topic)
	}
	return trail, nil
}

// buildChannels wires the dispatch channels that are configured.
func buildChannels(cfg *config.Config) []dispatch.Channel {
	timeout := time.Duration(cfg.Channels.TimeoutSeconds) * time.Second
	var channels []dispatch.Channel
	if cfg.Channels.Alert.WebhookURL != "" {
		channels = append(channels, dispatch.NewAlertChannel(cfg.Channels.Alert.WebhookURL, timeout))
	}
	if cfg.Channels.Ticket.BaseURL != "" {
		t := cfg.Channels.Ticket
		channels = append(channels, dispatch.NewTicketChannel(t.BaseURL, t.ProjectKey, t.Username, t.APIToken, timeout))
	}
	if cfg.Channels.Outreach.URL != "" {
		o := cfg.Channels.Outreach
		channels = append(channels, dispatch.NewOutreachChannel(o.URL, o.APIKey, o.FromEmail, timeout))
	}
	return channels
}

// buildPipeline wires the full decision pipeline from config. The metrics
// object is passed in so it survives pipeline rebuilds on config reload.
func buildPipeline(ctx context.Context, cfg *config.Config, metrics *cycle.Metrics) (*pipeline, error) {
	warehouse, err := upstream.NewWarehouse(ctx, cfg.Warehouse.DSN)
	if err != nil {
		return nil, fmt.Errorf("warehouse: %w", err)
	}

	cache, err := upstream.NewPredictionCache(warehouse, cfg.Warehouse.PredictionCacheSize)
	if err != nil {
		warehouse.Close()
		return nil, fmt.Errorf("prediction cache: %w", err)
	}

	var kpiSource upstream.KPISource = noKPI{}
	if cfg.KPI.URL != "" {
		kpiSource = upstream.NewKPIClient(cfg.KPI.URL, time.Duration(cfg.KPI.TimeoutSeconds)*time.Second)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		warehouse.Close()
		return nil, fmt.Errorf("reasoning provider: %w", err)
	}
	adapter := reasoning.NewAdapter(provider, reasoning.AdapterConfig{
		ProbabilityThreshold: cfg.Reasoning.ProbabilityThreshold,
		MaxRetries:           cfg.Reasoning.MaxRetries,
		CallTimeout:          time.Duration(cfg.Reasoning.CallTimeoutSeconds) * time.Second,
	})

	trail, err := buildTrail(ctx, cfg)
	if err != nil {
		warehouse.Close()
		return nil, fmt.Errorf("audit trail: %w", err)
	}

	controller := cycle.NewController(
		warehouse,
		cache,
		kpiSource,
		anomaly.NewDetector(cfg.Cycle.ModerateZ, cfg.Cycle.SevereZ),
		adapter,
		dispatch.NewDispatcher(trail, buildChannels(cfg)...),
		metrics,
		cycle.Config{
			Metrics:         cfg.Cycle.Metrics,
			Concurrency:     cfg.Cycle.Concurrency,
			CustomerTimeout: time.Duration(cfg.Cycle.CustomerTimeoutSeconds) * time.Second,
		},
	)

	return &pipeline{
		controller: controller,
		cache:      cache,
		warehouse:  warehouse,
		trail:      trail,
	}, nil
}
