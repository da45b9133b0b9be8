package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/identra/identra"

// Metrics bundles the OpenTelemetry instruments of the core. All methods
// are safe on a nil receiver so instrumentation stays optional.
type Metrics struct {
	eventsPushed      metric.Int64Counter
	pushConflicts     metric.Int64Counter
	eventsProjected   metric.Int64Counter
	projectionErrors  metric.Int64Counter
	projectionLag     metric.Float64Gauge
	projectionLatency metric.Float64Histogram
}

// NewMetrics registers the instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.GetMeterProvider().Meter(meterName)

	m := &Metrics{}
	var err error
	if m.eventsPushed, err = meter.Int64Counter("eventstore.events.pushed",
		metric.WithDescription("Events appended to the store")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.pushConflicts, err = meter.Int64Counter("eventstore.push.conflicts",
		metric.WithDescription("Pushes rejected by optimistic concurrency")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.eventsProjected, err = meter.Int64Counter("projection.events.processed",
		metric.WithDescription("Events applied by projections")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.projectionErrors, err = meter.Int64Counter("projection.errors",
		metric.WithDescription("Events a projection failed to apply")); err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	if m.projectionLag, err = meter.Float64Gauge("projection.lag",
		metric.WithDescription("Distance between the head position and a projection's cursor")); err != nil {
		return nil, fmt.Errorf("failed to create gauge: %w", err)
	}
	if m.projectionLatency, err = meter.Float64Histogram("projection.apply.duration",
		metric.WithDescription("Time to apply one event"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create histogram: %w", err)
	}
	return m, nil
}

func (m *Metrics) EventsPushed(ctx context.Context, count int64) {
	if m == nil {
		return
	}
	m.eventsPushed.Add(ctx, count)
}

func (m *Metrics) PushConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.pushConflicts.Add(ctx, 1)
}

func (m *Metrics) EventProjected(ctx context.Context, projection string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("projection", projection))
	m.eventsProjected.Add(ctx, 1, attrs)
	m.projectionLatency.Record(ctx, seconds, attrs)
}

func (m *Metrics) ProjectionError(ctx context.Context, projection string) {
	if m == nil {
		return
	}
	m.projectionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("projection", projection)))
}

func (m *Metrics) ProjectionLag(ctx context.Context, projection string, lag float64) {
	if m == nil {
		return
	}
	m.projectionLag.Record(ctx, lag, metric.WithAttributes(attribute.String("projection", projection)))
}
