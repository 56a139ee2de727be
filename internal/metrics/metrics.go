// Package metrics collects batch-run counters and writes them in the
// Prometheus text format for node-exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles pipeline metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	FragmentsTotal *prometheus.CounterVec
	RowsWritten    *prometheus.CounterVec
	RequestsTotal  *prometheus.CounterVec
	DownloadsTotal *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	LastRun        *prometheus.GaugeVec
}

// New constructs metrics and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		FragmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridetl_fragments_total",
				Help: "CSV fragments read from archives by dataset and result",
			},
			[]string{"dataset", "result"},
		),
		RowsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridetl_rows_written_total",
				Help: "Hourly rows written by dataset",
			},
			[]string{"dataset"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridetl_nsrdb_requests_total",
				Help: "NSRDB download requests by result",
			},
			[]string{"result"},
		),
		DownloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridetl_nsrdb_downloads_total",
				Help: "NSRDB file downloads by result",
			},
			[]string{"result"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gridetl_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 4, 8),
			},
			[]string{"stage"},
		),
		LastRun: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gridetl_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run by tool and result",
			},
			[]string{"tool", "result"},
		),
	}
	m.Registry.MustRegister(
		m.FragmentsTotal,
		m.RowsWritten,
		m.RequestsTotal,
		m.DownloadsTotal,
		m.StageDuration,
		m.LastRun,
	)
	return m
}

// Fragment counts one archive fragment as read or skipped.
func (m *Metrics) Fragment(dataset string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "skipped"
	}
	m.FragmentsTotal.WithLabelValues(dataset, result).Inc()
}

// Rows adds n written rows for dataset.
func (m *Metrics) Rows(dataset string, n int) {
	if m == nil {
		return
	}
	m.RowsWritten.WithLabelValues(dataset).Add(float64(n))
}

// Request counts one NSRDB request outcome.
func (m *Metrics) Request(result string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(result).Inc()
}

// Download counts one NSRDB download outcome.
func (m *Metrics) Download(result string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(result).Inc()
}

// Stage starts timing a stage; call the returned func when it ends.
func (m *Metrics) Stage(stage string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Finish records the completion time of a tool run.
func (m *Metrics) Finish(tool string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.LastRun.WithLabelValues(tool, result).SetToCurrentTime()
}

// WriteTextfile writes every metric to path atomically. An empty path is a
// no-op.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
