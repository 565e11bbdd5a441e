package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/eventlive/streamgate"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Admission metrics
	SessionsCreatedTotal   metric.Int64Counter
	SessionsReclaimedTotal metric.Int64Counter
	AdmissionRejectedTotal metric.Int64Counter

	// Lifecycle metrics
	HeartbeatsTotal      metric.Int64Counter
	SessionsEndedTotal   metric.Int64Counter
	SessionsExpiredTotal metric.Int64Counter

	// Gauge of sessions currently holding a viewer slot
	ActiveSessions metric.Int64UpDownCounter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}

	m.SessionsCreatedTotal, _ = meter.Int64Counter(
		"streamgate.sessions.created.total",
		metric.WithDescription("Total number of streaming sessions admitted"),
		metric.WithUnit("{session}"),
	)

	m.SessionsReclaimedTotal, _ = meter.Int64Counter(
		"streamgate.sessions.reclaimed.total",
		metric.WithDescription("Total number of admissions that reclaimed a same-browser slot"),
		metric.WithUnit("{session}"),
	)

	m.AdmissionRejectedTotal, _ = meter.Int64Counter(
		"streamgate.admission.rejected.total",
		metric.WithDescription("Total number of admissions rejected at the concurrency limit"),
		metric.WithUnit("{request}"),
	)

	m.HeartbeatsTotal, _ = meter.Int64Counter(
		"streamgate.sessions.heartbeats.total",
		metric.WithDescription("Total number of accepted heartbeats"),
		metric.WithUnit("{heartbeat}"),
	)

	m.SessionsEndedTotal, _ = meter.Int64Counter(
		"streamgate.sessions.ended.total",
		metric.WithDescription("Total number of sessions ended explicitly"),
		metric.WithUnit("{session}"),
	)

	m.SessionsExpiredTotal, _ = meter.Int64Counter(
		"streamgate.sessions.expired.total",
		metric.WithDescription("Total number of sessions reaped after missing heartbeats"),
		metric.WithUnit("{session}"),
	)

	m.ActiveSessions, _ = meter.Int64UpDownCounter(
		"streamgate.sessions.active",
		metric.WithDescription("Number of currently active streaming sessions"),
		metric.WithUnit("{session}"),
	)

	return m
}
