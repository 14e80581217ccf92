package buildtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"git.home.luguber.info/inful/siteqa/internal/metrics"
)

// Runner executes build tests in a fixed sequence and stops at the first
// failure. It owns the human-readable pass/fail banner; structured logging and
// metrics are emitted alongside.
type Runner struct {
	out      io.Writer
	recorder metrics.Recorder
}

// NewRunner creates a runner writing its banner to out (os.Stdout when nil).
// recorder may be nil; a NoopRecorder is substituted.
func NewRunner(out io.Writer, recorder metrics.Recorder) *Runner {
	if out == nil {
		out = os.Stdout
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Runner{out: out, recorder: recorder}
}

// Run executes the tests in order. It returns nil when every test passes, a
// *FailureError for the first failing Result, or the underlying error when a
// test aborts without producing a Result.
func (r *Runner) Run(ctx context.Context, tests ...BuildTest) error {
	for _, bt := range tests {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintf(r.out, "\nTesting %s\n", bt.Name())

		start := time.Now()
		result, err := bt.Check(ctx)
		r.recorder.ObserveTestDuration(bt.Name(), time.Since(start))

		if err != nil {
			r.recorder.IncTestResult(bt.Name(), metrics.ResultFatal)
			fmt.Fprintln(r.out, "  - Fail!")
			slog.Error("Build test aborted", "test", bt.Name(), "error", err)
			return fmt.Errorf("build test %q: %w", bt.Name(), err)
		}

		if !result.Passed {
			r.recorder.IncTestResult(bt.Name(), metrics.ResultFail)
			fmt.Fprintln(r.out, "  - Fail!")
			if len(result.Output) > 0 {
				fmt.Fprintln(r.out, "Output:")
				for _, line := range result.Output {
					fmt.Fprintf(r.out, "  %s\n", line)
				}
			}
			r.printWarnings(result.Warnings)
			slog.Error("Build test failed", "test", bt.Name(), "findings", len(result.Output))
			return &FailureError{Test: bt.Name(), Result: result}
		}

		label := metrics.ResultPass
		if len(result.Warnings) > 0 {
			label = metrics.ResultWarning
		}
		r.recorder.IncTestResult(bt.Name(), label)
		fmt.Fprintln(r.out, "  - Pass")
		r.printWarnings(result.Warnings)
		slog.Debug("Build test passed", "test", bt.Name(), "duration", time.Since(start))
	}
	return nil
}

func (r *Runner) printWarnings(lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintln(r.out, "Additional Warnings:")
	for _, line := range lines {
		fmt.Fprintf(r.out, "  %s\n", line)
	}
}
