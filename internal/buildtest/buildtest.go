// Package buildtest defines the build test contract shared by all site
// verification checks, and the runner that sequences them before publishing.
package buildtest

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Result is the outcome of a single build test execution. Output is empty on
// success; on failure it holds one diagnostic line per finding. Warnings are
// informational lines printed regardless of the verdict and never affect
// Passed. A Result is immutable once constructed.
type Result struct {
	Passed   bool
	Output   []string
	Warnings []string
}

// Pass returns a passing Result.
func Pass() Result {
	return Result{Passed: true}
}

// Fail returns a failing Result carrying the given diagnostic lines.
func Fail(output ...string) Result {
	return Result{Passed: false, Output: output}
}

// WithWarnings returns a copy of r carrying the given informational lines.
func (r Result) WithWarnings(lines ...string) Result {
	r.Warnings = lines
	return r
}

// BuildTest is a single unit of pre-publish verification. Check performs the
// verification and reports a Result; a non-nil error means the test could not
// complete (for example an intolerable transport failure) and the whole batch
// must abort, independent of any Result.
type BuildTest interface {
	Name() string
	Check(ctx context.Context) (Result, error)
}

// FailureError signals that a build test produced a failing Result. The
// runner returns it so callers can distinguish an assertion failure (expected,
// reportable) from an execution error, and inspect the diagnostics before the
// process exits nonzero.
type FailureError struct {
	Test   string
	Result Result
}

func (e *FailureError) Error() string {
	if len(e.Result.Output) == 0 {
		return fmt.Sprintf("build test %q failed", e.Test)
	}
	return fmt.Sprintf("build test %q failed:\n  %s", e.Test, strings.Join(e.Result.Output, "\n  "))
}

// AsFailure extracts a FailureError from err, if present.
func AsFailure(err error) (*FailureError, bool) {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
