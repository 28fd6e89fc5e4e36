package reporter

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"pewunit/internal/eventbus"
	"pewunit/internal/runner"
)

const metricsNamespace = "pewunit"

// Metrics collects run statistics into a private registry and writes them
// as a Prometheus text file (node_exporter textfile collector format).
type Metrics struct {
	registry *prometheus.Registry

	tests        *prometheus.CounterVec
	assertions   *prometheus.CounterVec
	testDuration prometheus.Histogram
	modules      prometheus.Counter
	errors       prometheus.Counter
	runs         *prometheus.CounterVec
	lastRun      prometheus.Gauge
	lastDuration prometheus.Gauge
	lastFailed   prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		tests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tests_total",
			Help:      "Finished tests by status",
		}, []string{"status"}),
		assertions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "assertions_total",
			Help:      "Recorded assertions by result",
		}, []string{"result"}),
		testDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "test_duration_seconds",
			Help:      "Wall time of finished tests",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		modules: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "modules_done_total",
			Help:      "Modules that reported completion",
		}),
		errors: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uncaught_errors_total",
			Help:      "Errors reported outside any test",
		}),
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Finished runs by status",
		}, []string{"status"}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run ended",
		}),
		lastDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastFailed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_failed_tests",
			Help:      "Failed tests in the last run",
		}),
	}
}

// Handle is a bus listener.
func (m *Metrics) Handle(e eventbus.Event) {
	switch d := e.Data.(type) {
	case runner.TestDoneEvent:
		m.tests.WithLabelValues(d.Status).Inc()
		if !d.Skipped {
			m.testDuration.Observe(d.Runtime.Seconds())
		}
	case runner.AssertionEvent:
		if d.Passed {
			m.assertions.WithLabelValues("passed").Inc()
		} else {
			m.assertions.WithLabelValues("failed").Inc()
		}
	case runner.ModuleDoneEvent:
		m.modules.Inc()
	case runner.ErrorEvent:
		m.errors.Inc()
	case runner.RunEndEvent:
		status := d.Status
		if d.Aborted {
			status = runner.StatusAborted
		}
		m.runs.WithLabelValues(status).Inc()
		m.lastRun.Set(float64(e.Time.Unix()))
		m.lastDuration.Set(d.Runtime.Seconds())
		m.lastFailed.Set(float64(d.TestCounts.Failed))
	}
}

// Registry exposes the collectors, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Write writes all metrics to a Prometheus text file. The file is replaced
// atomically so collectors never read a partial exposition.
func (m *Metrics) Write(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
