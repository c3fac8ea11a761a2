package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewMeterProvider returns a Prometheus-backed meter provider registered
// with the given registerer, or nil when telemetry is disabled. A nil return
// makes every FetchMetrics instrument a no-op.
func NewMeterProvider(reg prometheus.Registerer, enabled bool) (*sdkmetric.MeterProvider, error) {
	if !enabled {
		return nil, nil
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)), nil
}
