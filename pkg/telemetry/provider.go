package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Provider owns the SDK meter provider behind a manual reader, so the
// daemon can expose current values on demand without a push exporter.
type Provider struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewProvider installs a meter provider as the global one. Instruments
// created by NewMetrics afterwards record into it.
func NewProvider(serviceName string) (*Provider, error) {
	res, err := resource.Merge(resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)
	return &Provider{reader: reader, provider: provider}, nil
}

// Collect snapshots all instruments.
func (p *Provider) Collect(ctx context.Context) (*metricdata.ResourceMetrics, error) {
	rm := &metricdata.ResourceMetrics{}
	if err := p.reader.Collect(ctx, rm); err != nil {
		return nil, fmt.Errorf("failed to collect metrics: %w", err)
	}
	return rm, nil
}

func (p *Provider) Shutdown(ctx context.Context) error {
	return p.provider.Shutdown(ctx)
}
