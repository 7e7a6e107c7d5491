package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/moolen/vigil/internal/config"
	"github.com/moolen/vigil/internal/cycle"
	"github.com/moolen/vigil/internal/logging"
	"github.com/moolen/vigil/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run decision cycles on a schedule",
	Long: `Serve runs a decision cycle immediately and then on a fixed interval.
The config file is watched for changes; edits are applied by rebuilding the
pipeline before the next cycle.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		HandleError(err, "failed to load config")
		HandleError(setupLog(cfg.LogLevel), "failed to initialize logging")

		logger := logging.GetLogger("serve")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tracer, err := tracing.NewProvider(tracing.Config{
			Enabled:  cfg.Tracing.Enabled,
			Endpoint: cfg.Tracing.Endpoint,
		})
		HandleError(err, "failed to initialize tracing")
		defer func() { _ = tracer.Shutdown(context.Background()) }()

		registry := prometheus.NewRegistry()
		startMetricsServer(ctx, cfg.Server.MetricsAddr, registry, logger)

		metrics := cycle.NewMetrics(registry)
		p, err := buildPipeline(ctx, cfg, metrics)
		HandleError(err, "failed to build pipeline")

		// Hot reload: deliver new configs to the serve loop. The initial
		// callback fires for the already-loaded config and is dropped.
		reloads := make(chan *config.Config, 1)
		first := true
		watcher, err := config.NewWatcher(config.WatcherConfig{FilePath: configPath}, func(next *config.Config) error {
			if first {
				first = false
				return nil
			}
			select {
			case reloads <- next:
			default:
			}
			return nil
		})
		HandleError(err, "failed to create config watcher")
		HandleError(watcher.Start(ctx), "failed to start config watcher")
		defer func() { _ = watcher.Stop() }()

		interval := time.Duration(cfg.Cycle.IntervalMinutes) * time.Minute
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.Info("serving decision cycles every %s", interval)

		runOnce := func() {
			summary, err := p.runCycle(ctx)
			if err != nil {
				logger.ErrorWithErr("cycle failed", err)
				return
			}
			logger.Info("cycle %s: %d customers, %d degraded",
				summary.CorrelationID, summary.Customers, summary.Degraded)
		}
		runOnce()

		for {
			select {
			case <-ctx.Done():
				logger.Info("shutting down")
				p.close()
				return

			case next := <-reloads:
				logger.Info("config changed, rebuilding pipeline")
				rebuilt, err := buildPipeline(ctx, next, metrics)
				if err != nil {
					logger.ErrorWithErr("rebuild failed, keeping previous pipeline", err)
					continue
				}
				p.close()
				p = rebuilt
				if next.Cycle.IntervalMinutes != cfg.Cycle.IntervalMinutes {
					interval = time.Duration(next.Cycle.IntervalMinutes) * time.Minute
					ticker.Reset(interval)
					logger.Info("cycle interval changed to %s", interval)
				}
				cfg = next

			case <-ticker.C:
				runOnce()
			}
		}
	},
}

// startMetricsServer exposes /metrics and /healthz in the background.
func startMetricsServer(ctx context.Context, addr string, registry *prometheus.Registry, logger *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("metrics server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr("metrics server failed", err)
		}
	}()
}
