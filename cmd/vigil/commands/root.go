// Package commands implements the vigil CLI.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/moolen/vigil/internal/logging"
)

const Version = "0.1.0"

var (
	configPath   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - churn-risk decision pipeline",
	Long: `Vigil watches the customer population for churn risk. Each cycle it scores
behavioral anomalies against the population, asks an LLM for a root cause and
an intervention, and dispatches the chosen action with a full audit trail.`,
	Version: Version,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "vigil.yaml",
		"Path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
}

// HandleError prints error and exits.
func HandleError(err error, msg string) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
		os.Exit(1)
	}
}

// setupLog initializes logging from config, with the CLI flag taking
// precedence.
func setupLog(configLevel string) error {
	level := configLevel
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	return logging.Initialize(level)
}
