package observability

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// EnableTracing installs a global tracer provider that batches spans to the
// Jaeger collector at endpoint.
func (o *Observability) EnableTracing(serviceName, endpoint string) error {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return fmt.Errorf("create jaeger exporter: %w", err)
	}
	o.installTracer(serviceName, sdktrace.WithBatcher(exporter))
	return nil
}

func (o *Observability) installTracer(serviceName string, opts ...sdktrace.TracerProviderOption) {
	opts = append(opts, sdktrace.WithResource(resource.NewSchemaless(
		attribute.String("service.name", serviceName),
	)))
	o.tracerProvider = sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(o.tracerProvider)
}
