package reporter

import (
	"io"

	"github.com/jpequegn/testflow/internal/suite"
)

// Stdio forwards captured test output chunks to a pair of writers, the way
// the test commands would have printed had they run in the foreground. It
// ignores the lifecycle callbacks; pair it with Console in a Multi.
type Stdio struct {
	out io.Writer
	err io.Writer
}

// NewStdio creates a stdio reporter writing to the given streams
func NewStdio(out, err io.Writer) *Stdio {
	return &Stdio{out: out, err: err}
}

func (s *Stdio) OnTestBegin(*suite.TestCase) {}
func (s *Stdio) OnTestEnd(*suite.TestCase, *suite.TestResult) {}
func (s *Stdio) OnError(*suite.TestError) {}

func (s *Stdio) OnStdOut(chunk suite.StreamChunk, test *suite.TestCase) {
	writeChunk(s.out, chunk)
}

func (s *Stdio) OnStdErr(chunk suite.StreamChunk, test *suite.TestCase) {
	writeChunk(s.err, chunk)
}

func writeChunk(w io.Writer, chunk suite.StreamChunk) {
	if chunk.Text != "" {
		_, _ = io.WriteString(w, chunk.Text)
		return
	}
	if len(chunk.Buffer) > 0 {
		_, _ = w.Write(chunk.Buffer)
	}
}
