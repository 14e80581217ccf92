package metrics

import "time"

// ResultLabel enumerates build test result categories for counters.
type ResultLabel string

const (
	ResultPass    ResultLabel = "pass"
	ResultFail    ResultLabel = "fail"
	ResultWarning ResultLabel = "warning"
	ResultFatal   ResultLabel = "fatal"
)

// Recorder defines observability hooks for the verification harness.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be cheap and safe to call from concurrent link workers.
type Recorder interface {
	ObserveTestDuration(test string, d time.Duration)
	IncTestResult(test string, result ResultLabel)
	ObserveLinkCheckDuration(d time.Duration)
	IncLinkOutcome(outcome string) // outcome: ok|failure|tls|timeout|connection|http|skipped
	SetLinkConcurrency(n int)
	AddLinksChecked(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTestDuration(string, time.Duration) {}
func (NoopRecorder) IncTestResult(string, ResultLabel)         {}
func (NoopRecorder) ObserveLinkCheckDuration(time.Duration)    {}
func (NoopRecorder) IncLinkOutcome(string)                     {}
func (NoopRecorder) SetLinkConcurrency(int)                    {}
func (NoopRecorder) AddLinksChecked(int)                       {}
