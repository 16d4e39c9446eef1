// Package wsmetrics publishes the expirer's sweep counters and durations,
// modeled on the teacher's pkg/metrics (Timer, counters/histograms). Unlike
// the teacher, which registers onto the global Prometheus default registry,
// this package registers onto an explicit Registry so a single process can
// run several sweeps (tests, multiple filesystems) without colliding on the
// package-level default.
package wsmetrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry is the set of collectors one expirer run publishes to.
type Registry struct {
	reg *prometheus.Registry

	SweepCyclesTotal    *prometheus.CounterVec
	SweepDuration       *prometheus.HistogramVec
	StrayDirectoriesFound *prometheus.CounterVec
	EntriesExpired      *prometheus.CounterVec
	EntriesPurged       *prometheus.CounterVec
	SweepErrorsTotal    *prometheus.CounterVec
}

// NewRegistry builds and registers a fresh collector set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		SweepCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_expirer_sweep_cycles_total",
				Help: "Total number of expirer sweep cycles completed, by filesystem.",
			},
			[]string{"filesystem"},
		),
		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ws_expirer_sweep_duration_seconds",
				Help:    "Wall-clock duration of one filesystem's sweep (phase A + phase B).",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"filesystem"},
		),
		StrayDirectoriesFound: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_expirer_stray_directories_total",
				Help: "Stray workspace or grace directories found during phase A reconciliation.",
			},
			[]string{"filesystem", "kind"},
		),
		EntriesExpired: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_expirer_entries_expired_total",
				Help: "Live entries transitioned to grace during phase B.",
			},
			[]string{"filesystem"},
		),
		EntriesPurged: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_expirer_entries_purged_total",
				Help: "Grace entries purged (tree removed, entry deleted) during phase B.",
			},
			[]string{"filesystem"},
		),
		SweepErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ws_expirer_sweep_errors_total",
				Help: "Per-entry or per-directory failures logged and skipped during a sweep.",
			},
			[]string{"filesystem", "stage"},
		),
	}
	reg.MustRegister(
		r.SweepCyclesTotal,
		r.SweepDuration,
		r.StrayDirectoriesFound,
		r.EntriesExpired,
		r.EntriesPurged,
		r.SweepErrorsTotal,
	)
	return r
}

// Gatherer exposes the underlying registry for a textfile-collector dump
// (node-exporter style), mirroring the teacher's metrics.Handler, but
// without serving an HTTP endpoint (no metrics endpoint is required by the
// spec).
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile dumps every collected metric in the node_exporter textfile
// collector format to path, atomically (write to a temp file, then rename),
// so a concurrently-scraping node_exporter never observes a half-written
// file.
func WriteTextfile(r *Registry, path string) error {
	families, err := r.Gatherer().Gather()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-metrics-*")
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Timer is a helper for timing a sweep, carried over from the teacher's
// metrics.Timer.
type Timer struct{ start time.Time }

// NewTimer starts a timer.
func NewTimer() Timer { return Timer{start: time.Now()} }

// ObserveDuration records the elapsed time onto a histogram vec.
func (t Timer) ObserveDuration(h *prometheus.HistogramVec, labels ...string) {
	h.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
