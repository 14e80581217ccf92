package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	testDuration    *prom.HistogramVec
	testResults     *prom.CounterVec
	linkDuration    prom.Histogram
	linkOutcomes    *prom.CounterVec
	linkConcurrency prom.Gauge
	linksChecked    prom.Counter
}

// NewPrometheusRecorder constructs a recorder and registers its metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		testDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "siteqa",
			Name:      "test_duration_seconds",
			Help:      "Duration of individual build tests",
			Buckets:   prom.DefBuckets,
		}, []string{"test"}),
		testResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteqa",
			Name:      "test_results_total",
			Help:      "Build test result counts by outcome",
		}, []string{"test", "result"}),
		linkDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "siteqa",
			Name:      "link_check_duration_seconds",
			Help:      "Duration of individual link verification requests",
			Buckets:   prom.DefBuckets,
		}),
		linkOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "siteqa",
			Name:      "link_outcomes_total",
			Help:      "Link verification outcomes by classification",
		}, []string{"outcome"}),
		linkConcurrency: prom.NewGauge(prom.GaugeOpts{
			Namespace: "siteqa",
			Name:      "link_concurrency",
			Help:      "Configured link verification concurrency limit",
		}),
		linksChecked: prom.NewCounter(prom.CounterOpts{
			Namespace: "siteqa",
			Name:      "links_checked_total",
			Help:      "Total distinct URLs verified",
		}),
	}
	reg.MustRegister(pr.testDuration, pr.testResults, pr.linkDuration, pr.linkOutcomes, pr.linkConcurrency, pr.linksChecked)
	return pr
}

func (p *PrometheusRecorder) ObserveTestDuration(test string, d time.Duration) {
	p.testDuration.WithLabelValues(test).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTestResult(test string, result ResultLabel) {
	p.testResults.WithLabelValues(test, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveLinkCheckDuration(d time.Duration) {
	p.linkDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncLinkOutcome(outcome string) {
	p.linkOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) SetLinkConcurrency(n int) {
	p.linkConcurrency.Set(float64(n))
}

func (p *PrometheusRecorder) AddLinksChecked(n int) {
	p.linksChecked.Add(float64(n))
}
