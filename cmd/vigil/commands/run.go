package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/moolen/vigil/internal/config"
	"github.com/moolen/vigil/internal/cycle"
	"github.com/moolen/vigil/internal/tracing"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a single decision cycle and print its summary",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		HandleError(err, "failed to load config")
		HandleError(setupLog(cfg.LogLevel), "failed to initialize logging")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tracer, err := tracing.NewProvider(tracing.Config{
			Enabled:  cfg.Tracing.Enabled,
			Endpoint: cfg.Tracing.Endpoint,
		})
		HandleError(err, "failed to initialize tracing")
		defer func() { _ = tracer.Shutdown(context.Background()) }()

		p, err := buildPipeline(ctx, cfg, cycle.NewMetrics(prometheus.NewRegistry()))
		HandleError(err, "failed to build pipeline")
		defer p.close()

		summary, err := p.runCycle(ctx)
		HandleError(err, "cycle failed")

		out, err := json.MarshalIndent(summary, "", "  ")
		HandleError(err, "failed to encode summary")
		fmt.Println(string(out))
	},
}
