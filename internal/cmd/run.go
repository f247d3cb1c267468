package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpequegn/testflow/internal/dispatch"
	"github.com/jpequegn/testflow/internal/reporter"
	"github.com/jpequegn/testflow/internal/storage"
	"github.com/jpequegn/testflow/internal/suite"
	"github.com/jpequegn/testflow/internal/summary"
	"github.com/jpequegn/testflow/internal/worker"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the test suite",
	Long: `Run all tests defined in the configuration or a suite file.

Example:
  testflow run --config testflow.yaml
  testflow run --suite suites/smoke.yaml --workers 4 --max-failures 1`,
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Run-specific flags
	runCmd.Flags().StringP("suite", "s", "", "standalone suite file (.yaml or .json)")
	runCmd.Flags().IntP("workers", "w", 0, "maximum number of worker processes (default from config)")
	runCmd.Flags().Int("max-failures", 0, "stop after N unexpected failures (0 = run everything)")
	runCmd.Flags().Int("repeat-each", 0, "run every test N times")
	runCmd.Flags().String("project", "", "run only tests of this project")
	runCmd.Flags().Bool("no-history", false, "skip writing the run to the history database")

	_ = viper.BindPFlag("execution.workers", runCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("execution.max_failures", runCmd.Flags().Lookup("max-failures"))
	_ = viper.BindPFlag("execution.repeat_each", runCmd.Flags().Lookup("repeat-each"))
}

func runTests(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	suiteFile, _ := cmd.Flags().GetString("suite")
	manifest, err := loadSuite(suiteFile)
	if err != nil {
		return fmt.Errorf("failed to load suite: %w", err)
	}

	project, _ := cmd.Flags().GetString("project")
	groups, err := suite.BuildGroups(manifest, suite.BuildOptions{
		RepeatEach: viper.GetInt("execution.repeat_each"),
		Project:    project,
	})
	if err != nil {
		return err
	}

	cfg := dispatch.Config{
		Workers:     viper.GetInt("execution.workers"),
		MaxFailures: viper.GetInt("execution.max_failures"),
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	testCount := 0
	for _, g := range groups {
		testCount += len(g.Tests)
	}
	slog.Info("Loaded suite",
		"tests", testCount,
		"groups", len(groups),
		"workers", cfg.Workers,
		"maxFailures", cfg.MaxFailures)

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve worker binary: %w", err)
	}
	inheritStderr := viper.GetBool("debug.worker_stderr")
	spawn := func(index int) (dispatch.Worker, error) {
		return worker.Spawn(worker.Options{
			Index:         index,
			Command:       []string{exe, "worker"},
			InheritStderr: inheritStderr,
		})
	}

	// Lifecycle events go to the log, captured test output to the real
	// standard streams.
	rep := reporter.Multi{
		reporter.NewConsole(slog.Default()),
		reporter.NewStdio(os.Stdout, os.Stderr),
	}

	d, err := dispatch.New(newSuiteLoader(cfg, groups), groups, rep, spawn)
	if err != nil {
		return err
	}

	slog.Info("Starting test run...")
	startTime := time.Now()
	runErr := d.Run(ctx)
	d.Stop()
	duration := time.Since(startTime)

	sum := summary.Summarize(groups, duration)
	printSummary(sum, d.HasWorkerErrors())

	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		if err := saveHistory(sum, groups, d.HasWorkerErrors(), startTime); err != nil {
			slog.Warn("Failed to save run history", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("run interrupted: %w", runErr)
	}
	if sum.Unexpected > 0 {
		return fmt.Errorf("%d test(s) failed", sum.Unexpected)
	}
	if d.HasWorkerErrors() {
		return fmt.Errorf("worker errors occurred")
	}
	return nil
}

// printSummary writes the run summary block to stderr
func printSummary(sum *summary.RunSummary, workerErrors bool) {
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Test Run Summary\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "Total tests: %d\n", sum.Total)
	fmt.Fprintf(os.Stderr, "Total duration: %v\n", sum.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Passed: %d\n", sum.Expected)
	fmt.Fprintf(os.Stderr, "Failed: %d\n", sum.Unexpected)
	if sum.Flaky > 0 {
		fmt.Fprintf(os.Stderr, "Flaky: %d\n", sum.Flaky)
	}
	if sum.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "Skipped: %d\n", sum.Skipped)
	}
	if workerErrors {
		fmt.Fprintf(os.Stderr, "Worker errors: yes\n")
	}
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════\n\n")

	for _, slow := range sum.Slowest {
		fmt.Fprintf(os.Stderr, "  • %s: %v\n", slow.Name, slow.Duration.Round(time.Millisecond))
	}
	if len(sum.Slowest) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
	}
}

// saveHistory persists the run to the history database
func saveHistory(sum *summary.RunSummary, groups []*suite.TestGroup, workerErrors bool, startTime time.Time) error {
	path := viper.GetString("history.path")
	if path == "" {
		path = ".testflow/history.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Init(); err != nil {
		return err
	}

	run := &storage.RunRecord{
		ID:           uuid.NewString(),
		Timestamp:    startTime,
		Duration:     sum.Duration,
		Total:        sum.Total,
		Expected:     sum.Expected,
		Unexpected:   sum.Unexpected,
		Flaky:        sum.Flaky,
		Skipped:      sum.Skipped,
		WorkerErrors: workerErrors,
	}
	if err := store.SaveRun(run, groups); err != nil {
		return err
	}

	if retention := viper.GetInt("history.retention_days"); retention > 0 {
		if err := store.Cleanup(retention); err != nil {
			return err
		}
	}
	return nil
}
