package resolvenlquery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver"
)

// ==========================
// Mock Resolver
// ==========================

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, query string) (*resolver.Response, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*resolver.Response), args.Error(1)
}

// ==========================
// Test Helpers
// ==========================

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func createMockJob(key int64, variables map[string]interface{}) entities.Job {
	variablesJSON, _ := json.Marshal(variables)
	return entities.Job{ActivatedJob: &pb.ActivatedJob{
		Key:                key,
		Type:               TaskType,
		ProcessInstanceKey: key * 10,
		BpmnProcessId:      "nl-query-resolution",
		Retries:            3,
		Variables:          string(variablesJSON),
	}}
}

func createResponse(success bool, rows int) *resolver.Response {
	data := make([]models.Row, 0, rows)
	for i := 0; i < rows; i++ {
		data = append(data, models.NewRow([]string{"id"}, []interface{}{i}))
	}
	resp := &resolver.Response{
		RequestID: "req-1",
		SQL:       "SELECT customers.id FROM customers LIMIT 100",
		Context:   models.QueryContext{BusinessIntent: models.IntentAnalytics},
		Plan:      models.QueryPlan{ConfidenceScore: 0.8},
		Result: models.ExecutionResult{
			Success:     success,
			Data:        data,
			ColumnNames: []string{"id"},
			RowCount:    rows,
			SQLExecuted: "SELECT customers.id FROM customers LIMIT 100",
		},
		Attempts: []models.FallbackAttempt{},
		Warnings: []*errors.StandardError{errors.NewLowConfidenceError(0.2, 0.3)},
	}
	if !success {
		resp.Result.ErrorMessage = "relation does not exist"
		resp.Attempts = []models.FallbackAttempt{{AttemptNumber: 1, Strategy: "primary"}}
	}
	return resp
}

func newHandler(t *testing.T, cfg *Config, res QueryResolver) *Handler {
	t.Helper()
	h, err := NewHandler(cfg, res, createTestLogger(t))
	require.NoError(t, err)
	return h
}

// ==========================
// Handler Creation Tests
// ==========================

func TestNewHandler(t *testing.T) {
	log := logger.NewNoOpLogger()

	_, err := NewHandler(nil, &MockResolver{}, log)
	assert.NoError(t, err)

	_, err = NewHandler(DefaultConfig(), nil, log)
	assert.Error(t, err)

	_, err = NewHandler(&Config{Timeout: 0}, &MockResolver{}, log)
	assert.Error(t, err)
}

// ==========================
// Input Parsing Tests
// ==========================

func TestHandler_ParseInput(t *testing.T) {
	h := newHandler(t, nil, &MockResolver{})

	tests := []struct {
		name      string
		variables map[string]interface{}
		wantErr   bool
		wantQuery string
	}{
		{"valid", map[string]interface{}{"query": "list customers", "maxRows": 10}, false, "list customers"},
		{"missing query", map[string]interface{}{"maxRows": 10}, true, ""},
		{"empty query", map[string]interface{}{"query": ""}, true, ""},
		{"max rows out of range", map[string]interface{}{"query": "x", "maxRows": 0}, true, ""},
		{"wrong type", map[string]interface{}{"query": 42}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := h.parseInput(createMockJob(1, tt.variables))
			if tt.wantErr {
				require.Error(t, err)
				stdErr, ok := errors.AsStandardError(err)
				require.True(t, ok)
				assert.Equal(t, errors.ErrCodeInvalidInput, stdErr.Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQuery, input.Query)
		})
	}
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	res := &MockResolver{}
	res.On("Resolve", mock.Anything, "list customers").Return(createResponse(true, 3), nil)
	h := newHandler(t, nil, res)

	out, err := h.Execute(context.Background(), &Input{Query: "list customers"})
	require.NoError(t, err)

	assert.Equal(t, "req-1", out.RequestID)
	assert.True(t, out.Success)
	assert.Equal(t, 3, out.RowCount)
	assert.Len(t, out.Rows, 3)
	assert.False(t, out.Truncated)
	assert.Equal(t, string(models.IntentAnalytics), out.Intent)
	assert.Equal(t, []string{string(errors.ErrCodeLowConfidence)}, out.Warnings)
	res.AssertExpectations(t)
}

func TestHandler_Execute_RowLimits(t *testing.T) {
	includeNone := false

	tests := []struct {
		name          string
		cfg           *Config
		input         *Input
		wantRows      int
		wantTruncated bool
	}{
		{"job max rows", DefaultConfig(), &Input{Query: "q", MaxRows: 2}, 2, true},
		{"config cap", &Config{Timeout: time.Second, IncludeRows: true, MaxOutputRows: 4}, &Input{Query: "q", MaxRows: 10}, 4, true},
		{"no cap", &Config{Timeout: time.Second, IncludeRows: true}, &Input{Query: "q"}, 5, false},
		{"rows excluded", DefaultConfig(), &Input{Query: "q", IncludeRows: &includeNone}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := &MockResolver{}
			res.On("Resolve", mock.Anything, "q").Return(createResponse(true, 5), nil)
			h := newHandler(t, tt.cfg, res)

			out, err := h.Execute(context.Background(), tt.input)
			require.NoError(t, err)
			assert.Len(t, out.Rows, tt.wantRows)
			assert.Equal(t, tt.wantTruncated, out.Truncated)
			assert.Equal(t, 5, out.RowCount)
		})
	}
}

func TestHandler_Execute_Exhausted(t *testing.T) {
	t.Run("completes with success false by default", func(t *testing.T) {
		res := &MockResolver{}
		res.On("Resolve", mock.Anything, "q").Return(createResponse(false, 0), nil)
		h := newHandler(t, nil, res)

		out, err := h.Execute(context.Background(), &Input{Query: "q"})
		require.NoError(t, err)
		assert.False(t, out.Success)
		assert.Equal(t, "relation does not exist", out.ErrorMessage)
		assert.Len(t, out.Attempts, 1)
	})

	t.Run("fails when configured", func(t *testing.T) {
		res := &MockResolver{}
		res.On("Resolve", mock.Anything, "q").Return(createResponse(false, 0), nil)
		cfg := DefaultConfig()
		cfg.FailOnExhausted = true
		h := newHandler(t, cfg, res)

		_, err := h.Execute(context.Background(), &Input{Query: "q"})
		stdErr, ok := errors.AsStandardError(err)
		require.True(t, ok)
		assert.Equal(t, errors.ErrCodeExhaustedFallbacks, stdErr.Code)
	})
}

func TestHandler_Execute_ResolverError(t *testing.T) {
	res := &MockResolver{}
	res.On("Resolve", mock.Anything, "q").Return(nil, errors.NewMetadataUnavailableError("redis", assert.AnError))
	h := newHandler(t, nil, res)

	_, err := h.Execute(context.Background(), &Input{Query: "q"})
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeMetadataUnavailable, stdErr.Code)
	assert.True(t, stdErr.Retryable)
}

func TestHandler_Execute_NilInput(t *testing.T) {
	h := newHandler(t, nil, &MockResolver{})
	_, err := h.Execute(context.Background(), nil)
	assert.Error(t, err)
}
