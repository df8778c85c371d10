package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRecordersToleratePartialSetup(t *testing.T) {
	o := &Observability{}

	assert.NotPanics(t, func() {
		o.RecordJobProcessed(context.Background(), "resolve-nl-query", "completed")
		o.RecordJobDuration(context.Background(), "resolve-nl-query", time.Second, "completed")
		o.Shutdown()
	})
}

func TestInstallTracer_SetsGlobalProvider(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	o := &Observability{}
	o.installTracer("nlq-resolver-test", sdktrace.WithSyncer(exporter))
	defer o.Shutdown()

	_, span := otel.Tracer("test").Start(context.Background(), "resolver.Resolve")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "resolver.Resolve", spans[0].Name)
}

type countingRecorder struct{ attempts []string }

func (c *countingRecorder) RecordAttempt(strategy string, success bool, _ time.Duration) {
	c.attempts = append(c.attempts, strategy)
}

func TestRecordAttempt_ExportsCounter(t *testing.T) {
	reader := metric.NewManualReader()
	o := newWithReader("nlq-resolver-test", reader)
	defer o.Shutdown()

	other := &countingRecorder{}
	rec := o.Tee(other, nil)
	rec.RecordAttempt("primary", false, 12*time.Millisecond)
	rec.RecordAttempt("basic_select", true, 3*time.Millisecond)
	o.RecordJobProcessed(context.Background(), "resolve-nl-query", "completed")

	assert.Equal(t, []string{"primary", "basic_select"}, other.attempts)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["nlq.resolver.attempts"])
	assert.Equal(t, int64(1), sums["nlq.jobs.processed"])
}
