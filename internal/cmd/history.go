package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jpequegn/testflow/internal/storage"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent test runs",
	Long: `Show recent runs from the history database.

Example:
  testflow history
  testflow history --limit 20`,
	RunE: showHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntP("limit", "l", 10, "number of runs to show")
}

func showHistory(cmd *cobra.Command, args []string) error {
	path := viper.GetString("history.path")
	if path == "" {
		path = ".testflow/history.db"
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no history database at %s", path)
	}

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Init(); err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.GetRecent(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	fmt.Printf("%-36s  %-20s  %8s  %6s  %6s  %6s  %6s\n",
		"RUN", "WHEN", "DURATION", "TOTAL", "PASS", "FAIL", "FLAKY")
	for _, run := range runs {
		fmt.Printf("%-36s  %-20s  %8s  %6d  %6d  %6d  %6d\n",
			run.ID,
			run.Timestamp.Format(time.DateTime),
			run.Duration.Round(time.Millisecond),
			run.Total,
			run.Expected,
			run.Unexpected,
			run.Flaky)
	}
	return nil
}
