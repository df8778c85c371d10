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
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// AttemptRecorder has the shape of executor.Recorder.
type AttemptRecorder interface {
	RecordAttempt(strategy string, success bool, duration time.Duration)
}

// Observability owns the OpenTelemetry providers. Every recording method
// is a no-op when an instrument could not be created.
type Observability struct {
	meterProvider  *metric.MeterProvider
	tracerProvider *sdktrace.TracerProvider

	jobCounter      otelmetric.Int64Counter
	jobDuration     otelmetric.Float64Histogram
	attemptCounter  otelmetric.Int64Counter
	attemptDuration otelmetric.Float64Histogram
}

// New installs a meter provider exported through the Prometheus registry.
func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}
	return newWithReader(serviceName, exporter)
}

func newWithReader(serviceName string, reader metric.Reader) *Observability {
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	o := &Observability{meterProvider: provider}
	var err error
	if o.jobCounter, err = meter.Int64Counter("nlq.jobs.processed",
		otelmetric.WithDescription("Zeebe jobs handled, by task type and outcome")); err != nil {
		log.Printf("jobs.processed counter: %v", err)
	}
	if o.jobDuration, err = meter.Float64Histogram("nlq.jobs.duration",
		otelmetric.WithDescription("Zeebe job handling time"),
		otelmetric.WithUnit("ms")); err != nil {
		log.Printf("jobs.duration histogram: %v", err)
	}
	if o.attemptCounter, err = meter.Int64Counter("nlq.resolver.attempts",
		otelmetric.WithDescription("Statements executed, by fallback strategy and outcome")); err != nil {
		log.Printf("resolver.attempts counter: %v", err)
	}
	if o.attemptDuration, err = meter.Float64Histogram("nlq.resolver.attempt.duration",
		otelmetric.WithDescription("Time spent executing one fallback attempt"),
		otelmetric.WithUnit("ms")); err != nil {
		log.Printf("resolver.attempt.duration histogram: %v", err)
	}
	return o
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o.jobCounter != nil {
		o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o.jobDuration != nil {
		o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("task_type", taskType),
			attribute.String("status", status),
		))
	}
}

// RecordAttempt counts one execution attempt of the fallback chain.
func (o *Observability) RecordAttempt(strategy string, success bool, duration time.Duration) {
	attrs := otelmetric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	)
	if o.attemptCounter != nil {
		o.attemptCounter.Add(context.Background(), 1, attrs)
	}
	if o.attemptDuration != nil {
		o.attemptDuration.Record(context.Background(), float64(duration.Milliseconds()), attrs)
	}
}

// Tee returns a recorder that reports each attempt to o and to others.
func (o *Observability) Tee(others ...AttemptRecorder) AttemptRecorder {
	return teeRecorder(append([]AttemptRecorder{o}, others...))
}

type teeRecorder []AttemptRecorder

func (t teeRecorder) RecordAttempt(strategy string, success bool, duration time.Duration) {
	for _, r := range t {
		if r != nil {
			r.RecordAttempt(strategy, success, duration)
		}
	}
}

func (o *Observability) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if o.meterProvider != nil {
		_ = o.meterProvider.Shutdown(ctx)
	}
	if o.tracerProvider != nil {
		_ = o.tracerProvider.Shutdown(ctx)
	}
}
