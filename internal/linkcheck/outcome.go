package linkcheck

import (
	"fmt"
	"sort"
)

// Kind classifies the terminal state of one URL verification.
type Kind int

const (
	// KindSuccess means the URL answered with status 200.
	KindSuccess Kind = iota
	// KindFailure means the URL answered with a non-200 status (redirects
	// included; the engine never follows them).
	KindFailure
	// KindTransportError means the request did not complete at the HTTP
	// level; ErrKind holds the classification.
	KindTransportError
	// KindSkipped means no network request was made this run (for example a
	// cached known-good result).
	KindSkipped
)

// ErrorKind distinguishes transport failure classes for policy decisions.
type ErrorKind string

const (
	ErrKindTLS        ErrorKind = "tls"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindConnection ErrorKind = "connection"
	ErrKindHTTP       ErrorKind = "http"
)

// Outcome is the per-URL verification result.
type Outcome struct {
	URL     string
	Kind    Kind
	Status  int       // HTTP status for Success/Failure (and cached Skipped)
	ErrKind ErrorKind // set when Kind == KindTransportError
	Detail  string    // underlying error text, when any
}

// Line renders the diagnostic form "<url>: <status-or-kind>".
func (o Outcome) Line() string {
	switch o.Kind {
	case KindTransportError:
		return fmt.Sprintf("%s: %s", o.URL, o.ErrKind)
	default:
		return fmt.Sprintf("%s: %d", o.URL, o.Status)
	}
}

func (o Outcome) metricLabel() string {
	switch o.Kind {
	case KindSuccess:
		return "ok"
	case KindFailure:
		return "failure"
	case KindSkipped:
		return "skipped"
	default:
		return string(o.ErrKind)
	}
}

// Report aggregates one engine run. Failures and Warnings are sorted by URL
// so output is reproducible regardless of completion order.
type Report struct {
	RunID    string
	Checked  int       // distinct URLs after fragment-stripping dedup
	Failures []Outcome // non-200 responses; these fail the run
	Warnings []Outcome // tolerated transport errors; informational only
}

// Passed reports whether the run produced no failures. Tolerated warnings do
// not affect the verdict.
func (r *Report) Passed() bool {
	return len(r.Failures) == 0
}

// Diagnostics returns one line per failing URL, sorted by URL.
func (r *Report) Diagnostics() []string {
	return outcomeLines(r.Failures)
}

// WarningLines returns one line per tolerated failure, sorted by URL.
func (r *Report) WarningLines() []string {
	return outcomeLines(r.Warnings)
}

func outcomeLines(outcomes []Outcome) []string {
	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		lines = append(lines, o.Line())
	}
	sort.Strings(lines)
	return lines
}
