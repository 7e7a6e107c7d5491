package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/moolen/vigil/internal/config"
	"github.com/moolen/vigil/internal/upstream"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the configured collaborators without dispatching anything",
	Long: `Check validates the configuration and probes each collaborator: the
customer warehouse, the analytics service, the reasoning provider and the
audit trail. Nothing is dispatched. Exits non-zero if any probe fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(configPath)
		HandleError(err, "failed to load config")
		HandleError(setupLog(cfg.LogLevel), "failed to initialize logging")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		failed := false
		probe := func(name string, fn func() error) {
			if err := fn(); err != nil {
				fmt.Printf("FAIL  %-12s %v\n", name, err)
				failed = true
				return
			}
			fmt.Printf("OK    %s\n", name)
		}

		probe("warehouse", func() error {
			warehouse, err := upstream.NewWarehouse(ctx, cfg.Warehouse.DSN)
			if err != nil {
				return err
			}
			defer warehouse.Close()
			customers, err := warehouse.ListCustomers(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("      %d active customers\n", len(customers))
			return nil
		})

		probe("kpi", func() error {
			if cfg.KPI.URL == "" {
				return nil // not configured, KPIs are optional
			}
			client := upstream.NewKPIClient(cfg.KPI.URL, time.Duration(cfg.KPI.TimeoutSeconds)*time.Second)
			_, err := client.Snapshot(ctx)
			return err
		})

		probe("reasoning", func() error {
			_, err := buildProvider(cfg)
			return err
		})

		probe("audit", func() error {
			trail, err := buildTrail(ctx, cfg)
			if err != nil {
				return err
			}
			return trail.Close()
		})

		if failed {
			os.Exit(1)
		}
	},
}
