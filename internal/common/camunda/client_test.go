package camunda

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nlq-resolver/internal/common/errors"
)

var fastRetry = &RetryConfig{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

// ==========================
// Error Classification
// ==========================

func TestIsRetryableZeebeError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"rpc error: code = Unavailable desc = connection refused", true},
		{"context deadline exceeded", true},
		{"write: broken pipe", true},
		{"rpc error: code = NotFound desc = no job found", false},
		{"rpc error: code = PermissionDenied", false},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableZeebeError(errors.New(tt.msg)))
		})
	}
}

func TestMapZeebeError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		code apperrors.ErrorCode
	}{
		{"timeout", "context deadline exceeded", "TIMEOUT_ERROR"},
		{"not found", "job with key 1 not found", apperrors.ErrCodeInvalidConfiguration},
		{"permission", "permission denied", apperrors.ErrCodeInvalidConfiguration},
		{"unavailable", "connection refused", "EXTERNAL_SERVICE_ERROR"},
		{"unknown", "boom", "EXTERNAL_SERVICE_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapZeebeError(errors.New(tt.msg), "complete-job", 2)
			stdErr, ok := apperrors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Contains(t, stdErr.Details+stdErr.Message, "complete-job")
		})
	}
}

// ==========================
// Retry
// ==========================

func TestExecuteWithRetry_RecoversFromTransientErrors(t *testing.T) {
	calls := 0
	result, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection reset by peer")
		}
		return "ok", nil
	}, "topology")

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, calls)
}

func TestExecuteWithRetry_StopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("resource not found")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	_, err := executeWithRetry(context.Background(), fastRetry, func(context.Context) (interface{}, error) {
		calls++
		return nil, errors.New("unavailable")
	}, "topology")

	require.Error(t, err)
	assert.Equal(t, fastRetry.MaxRetries+1, calls)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.True(t, stdErr.Retryable)
}

func TestExecuteWithRetry_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := &RetryConfig{MaxRetries: 3, BaseDelay: time.Hour, MaxDelay: time.Hour}

	_, err := executeWithRetry(ctx, slow, func(context.Context) (interface{}, error) {
		return nil, errors.New("timeout")
	}, "topology")

	assert.ErrorIs(t, err, context.Canceled)
}

// ==========================
// Deployment
// ==========================

func TestDeployProcess_ReadsModelsBeforeSending(t *testing.T) {
	c := &Client{config: &ClientConfig{RetryConfig: fastRetry}}

	processes, err := c.DeployProcess(context.Background())
	require.NoError(t, err)
	assert.Empty(t, processes)

	_, err = c.DeployProcess(context.Background(), filepath.Join(t.TempDir(), "missing.bpmn"))
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeInvalidConfiguration, stdErr.Code)
}

// ==========================
// Instrumentation
// ==========================

type fakeRecorder struct {
	processed []string
	durations int
}

func (f *fakeRecorder) RecordJobProcessed(_ context.Context, taskType, status string) {
	f.processed = append(f.processed, taskType+":"+status)
}

func (f *fakeRecorder) RecordJobDuration(context.Context, string, time.Duration, string) {
	f.durations++
}

func TestInstrument(t *testing.T) {
	handled := 0
	handler := func(worker.JobClient, entities.Job) { handled++ }
	job := entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 7}}

	rec := &fakeRecorder{}
	Instrument("resolve-nl-query", handler, rec)(nil, job)

	assert.Equal(t, 1, handled)
	assert.Equal(t, []string{"resolve-nl-query:handled"}, rec.processed)
	assert.Equal(t, 1, rec.durations)

	Instrument("resolve-nl-query", handler, nil)(nil, job)
	assert.Equal(t, 2, handled)
}
