package reporter

import (
	"log/slog"
	"time"

	"github.com/jpequegn/testflow/internal/suite"
)

// Console logs test lifecycle events through slog
type Console struct {
	logger *slog.Logger
}

// NewConsole creates a console reporter. A nil logger uses the default.
func NewConsole(logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{logger: logger}
}

func (c *Console) OnTestBegin(test *suite.TestCase) {
	c.logger.Debug("Started",
		"test", test.Name,
		"attempt", len(test.Results))
}

func (c *Console) OnTestEnd(test *suite.TestCase, result *suite.TestResult) {
	attrs := []any{
		"test", test.Name,
		"status", string(result.Status),
		"duration", result.Duration.Round(time.Millisecond),
	}
	if result.Error != nil {
		attrs = append(attrs, "error", result.Error.Value)
	}

	switch {
	case result.Status == suite.StatusSkipped:
		c.logger.Info("Skipped", attrs...)
	case result.Status == test.ExpectedStatus:
		c.logger.Info("Completed", attrs...)
	case len(test.Results) <= test.Retries && test.ExpectedStatus == suite.StatusPassed:
		c.logger.Warn("Failed, will retry", attrs...)
	default:
		c.logger.Error("Failed", attrs...)
	}
}

func (c *Console) OnStdOut(chunk suite.StreamChunk, test *suite.TestCase) {}

func (c *Console) OnStdErr(chunk suite.StreamChunk, test *suite.TestCase) {}

func (c *Console) OnError(err *suite.TestError) {
	c.logger.Error("Worker error", "error", err.Value)
}
