package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	stepCounter   otelmetric.Int64Counter
	stepDuration  otelmetric.Float64Histogram
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	stepCounter, _ := meter.Int64Counter(
		"intake.steps.processed",
		otelmetric.WithDescription("Number of intake steps processed"),
	)

	stepDuration, _ := meter.Float64Histogram(
		"intake.steps.duration",
		otelmetric.WithDescription("Step processing duration"),
		otelmetric.WithUnit("ms"),
	)

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		stepCounter:   stepCounter,
		stepDuration:  stepDuration,
	}
}

func (o *Observability) RecordStepProcessed(ctx context.Context, step, status string) {
	if o.stepCounter != nil {
		o.stepCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("step", step),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordStepDuration(ctx context.Context, duration time.Duration, step string) {
	if o.stepDuration != nil {
		o.stepDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("step", step),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
