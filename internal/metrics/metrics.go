// Package metrics counts validation outcomes in a Prometheus registry and
// writes them as a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ppiankov/certgrade/internal/model"
)

const namespace = "certgrade"

// Recorder implements validate.Recorder on a private registry
type Recorder struct {
	registry           *prometheus.Registry
	runs               *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	verdicts           *prometheus.CounterVec
	extractionFailures *prometheus.CounterVec
	documents          *prometheus.CounterVec
}

// NewRecorder creates a recorder with its own registry
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Validation runs by final state.",
		}, []string{"state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Validation run duration by final state.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"state"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Comparison results by verdict.",
		}, []string{"verdict"}),
		extractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Failed property extractions by kind.",
		}, []string{"kind"}),
		documents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Documents processed by outcome (pass, fail, error).",
		}, []string{"outcome"}),
	}

	r.registry.MustRegister(r.runs, r.duration, r.verdicts, r.extractionFailures, r.documents)

	// pre-create label sets so a scrape shows zeros rather than missing series
	for _, v := range model.Verdicts() {
		r.verdicts.WithLabelValues(string(v))
	}
	for _, k := range model.Kinds() {
		r.extractionFailures.WithLabelValues(string(k))
	}
	return r
}

// Registry exposes the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveRun counts a finished run
func (r *Recorder) ObserveRun(state model.RunState, elapsed time.Duration) {
	label := strings.ToLower(string(state))
	r.runs.WithLabelValues(label).Inc()
	r.duration.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ObserveVerdicts adds per-verdict counts
func (r *Recorder) ObserveVerdicts(counts map[model.Verdict]int) {
	for v, n := range counts {
		r.verdicts.WithLabelValues(string(v)).Add(float64(n))
	}
}

// ObserveExtractionFailure counts a failed extraction
func (r *Recorder) ObserveExtractionFailure(kind model.PropertyKind) {
	r.extractionFailures.WithLabelValues(string(kind)).Inc()
}

// ObserveDocument counts a processed document: pass, fail, or error when no report was produced
func (r *Recorder) ObserveDocument(report *model.ValidationReport, err error) {
	outcome := "error"
	switch {
	case err != nil || report == nil:
	case report.OverallPass:
		outcome = "pass"
	default:
		outcome = "fail"
	}
	r.documents.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry in text exposition format; the file is replaced atomically
func (r *Recorder) WriteTextfile(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create metrics directory: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
