package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestResolverRecorder_RecordAttempt(t *testing.T) {
	r := NewResolverRecorder()
	before := testutil.ToFloat64(FallbackAttempts.WithLabelValues("simplify_query", "false"))

	r.RecordAttempt("simplify_query", false, 15*time.Millisecond)
	r.RecordAttempt("simplify_query", true, 5*time.Millisecond)

	assert.Equal(t, before+1, testutil.ToFloat64(FallbackAttempts.WithLabelValues("simplify_query", "false")))
	assert.GreaterOrEqual(t, testutil.ToFloat64(FallbackAttempts.WithLabelValues("simplify_query", "true")), 1.0)
}

func TestResolverRecorder_RecordResolution(t *testing.T) {
	r := NewResolverRecorder()
	before := testutil.ToFloat64(QueriesResolved.WithLabelValues("lookup", "success"))

	r.RecordResolution("lookup", "success", 0.8)

	assert.Equal(t, before+1, testutil.ToFloat64(QueriesResolved.WithLabelValues("lookup", "success")))
}
