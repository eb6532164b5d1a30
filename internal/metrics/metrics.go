// Package metrics records run-level counters for the ETL job and pushes them
// to a Prometheus Pushgateway when one is configured.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "etl"

type Metrics struct {
	registry *prometheus.Registry

	recordsRead   *prometheus.CounterVec
	rowsWritten   *prometheus.CounterVec
	filesWritten  *prometheus.CounterVec
	bytesWritten  *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	lastSuccess   prometheus.Gauge
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		recordsRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_read_total",
			Help:      "Source records decoded, by source dataset.",
		}, []string{"source"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written, by output table.",
		}, []string{"table"}),
		filesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_written_total",
			Help:      "Parquet files written, by output table.",
		}, []string{"table"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Parquet bytes written, by output table.",
		}, []string{"table"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"stage", "status"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last completed run.",
		}),
	}
	registry.MustRegister(m.recordsRead, m.rowsWritten, m.filesWritten, m.bytesWritten, m.stageDuration, m.lastSuccess)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordsRead(source string, n int) {
	m.recordsRead.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) TableWritten(table string, rows, files int, bytes int64) {
	m.rowsWritten.WithLabelValues(table).Add(float64(rows))
	m.filesWritten.WithLabelValues(table).Add(float64(files))
	m.bytesWritten.WithLabelValues(table).Add(float64(bytes))
}

func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (m *Metrics) MarkSuccess(t time.Time) {
	m.lastSuccess.Set(float64(t.Unix()))
}

// Pusher sends a registry to a Pushgateway, the usual sink for batch jobs.
type Pusher struct {
	endpoint string
	job      string
	grouping map[string]string
}

func NewPusher(endpoint, job string, grouping map[string]string) *Pusher {
	return &Pusher{
		endpoint: strings.TrimSpace(endpoint),
		job:      strings.TrimSpace(job),
		grouping: grouping,
	}
}

func (p *Pusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	if p.endpoint == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(registry)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}
	return pusher.PushContext(ctx)
}
