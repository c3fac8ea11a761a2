// Package telemetry provides OpenTelemetry instrumentation for the seed
// fetch service.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// FetchMetricsMeterName is the name used for the seed fetch meter.
	FetchMetricsMeterName = "github.com/varserve/seed-fetcher/seed"
)

// FetchMetrics holds the OpenTelemetry instruments for seed fetch telemetry.
// The result codes and metric names are a contract with historical
// dashboards and must remain stable across versions.
type FetchMetrics struct {
	fetchResult metric.Int64Counter
	fetchTime   metric.Float64Histogram
	connectTime metric.Float64Histogram
}

// NewFetchMetrics creates a new FetchMetrics instance with the given meter
// provider. If provider is nil, it returns nil (no-op metrics).
func NewFetchMetrics(provider metric.MeterProvider) (*FetchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(FetchMetricsMeterName)

	fetchResult, err := meter.Int64Counter(
		"seedfetch_firstrun_result_total",
		metric.WithDescription("Seed fetch outcomes by result code (HTTP status, or a negative failure class)"),
	)
	if err != nil {
		return nil, err
	}

	fetchTime, err := meter.Float64Histogram(
		"seedfetch_firstrun_fetch_time_ms",
		metric.WithDescription("Total time to fetch and deliver the first-run seed"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 25, 50, 100, 250, 500, 1000, 2000, 4000),
	)
	if err != nil {
		return nil, err
	}

	connectTime, err := meter.Float64Histogram(
		"seedfetch_firstrun_connect_time_ms",
		metric.WithDescription("Time from connection setup until seed response headers were received"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(10, 25, 50, 100, 250, 500, 1000, 2000, 4000),
	)
	if err != nil {
		return nil, err
	}

	return &FetchMetrics{
		fetchResult: fetchResult,
		fetchTime:   fetchTime,
		connectTime: connectTime,
	}, nil
}

// RecordFetchResult records one outcome sample tagged with the stable result
// code.
func (m *FetchMetrics) RecordFetchResult(ctx context.Context, code int) {
	if m == nil || m.fetchResult == nil {
		return
	}

	m.fetchResult.Add(ctx, 1, metric.WithAttributes(
		attribute.Int("result_code", code),
	))
}

// RecordFetchTime records the total fetch duration in milliseconds.
func (m *FetchMetrics) RecordFetchTime(ctx context.Context, elapsed time.Duration) {
	if m == nil || m.fetchTime == nil {
		return
	}

	m.fetchTime.Record(ctx, float64(elapsed.Milliseconds()))
}

// RecordConnectTime records the connect duration in milliseconds.
func (m *FetchMetrics) RecordConnectTime(ctx context.Context, elapsed time.Duration) {
	if m == nil || m.connectTime == nil {
		return
	}

	m.connectTime.Record(ctx, float64(elapsed.Milliseconds()))
}
