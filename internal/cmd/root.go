package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "testflow",
	Short: "Parallel test runner with isolated worker processes",
	Long: `Testflow schedules declared test commands across a bounded pool of
isolated worker processes, with per-test retries, fail-fast, and a
persistent run history.

Tests are declared in testflow.yaml (or a standalone suite file):

  tests:
    - id: api-smoke
      command: ./scripts/smoke.sh
      timeout: 30s
      retries: 1`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configure()
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./testflow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Settings that hold without a config file. Everything under execution.*
	// can also come from flags (bound in run.go) or TESTFLOW_* env vars.
	viper.SetDefault("execution.workers", 4)
	viper.SetDefault("history.path", ".testflow/history.db")
	viper.SetDefault("history.retention_days", 0)
}

// configure resolves the configuration sources and installs the global
// logger. Runs once, before any subcommand.
//
// Precedence, highest first: flags, TESTFLOW_* environment variables
// (TESTFLOW_EXECUTION_WORKERS, TESTFLOW_DEBUG_WORKER_STDERR, ...), the
// config file, defaults.
func configure() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("testflow")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("TESTFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing testflow.yaml is fine (the suite may come from --suite);
		// an unreadable or malformed one is not.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level := slog.LevelInfo
	if verbose || viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	if used := viper.ConfigFileUsed(); used != "" {
		slog.Debug("Loaded configuration", "file", used)
	}
	return nil
}
