package extractquerycontext

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/fixtures"
)

type staticSource struct {
	md  *models.SemanticMetadata
	err error
}

func (s staticSource) Load(context.Context) (*models.SemanticMetadata, error) { return s.md, s.err }

func createTestLogger(t *testing.T) logger.Logger {
	return logger.NewZapAdapter(zaptest.NewLogger(t))
}

func newHandler(t *testing.T, source MetadataSource) *Handler {
	t.Helper()
	h, err := NewHandler(nil, nil, source, createTestLogger(t))
	require.NoError(t, err)
	return h
}

func threshold(v float64) *float64 { return &v }

// ==========================
// Handler Creation Tests
// ==========================

func TestNewHandler(t *testing.T) {
	log := logger.NewNoOpLogger()

	_, err := NewHandler(nil, nil, nil, log)
	assert.NoError(t, err, "metadata source is optional")

	_, err = NewHandler(&Config{Timeout: 1, MinConfidence: 2}, nil, nil, log)
	assert.Error(t, err)
}

func TestHandler_ParseInput(t *testing.T) {
	h := newHandler(t, nil)

	vars, _ := json.Marshal(map[string]interface{}{"query": "count orders", "minConfidence": 1.5})
	_, err := h.parseInput(entities.Job{ActivatedJob: &pb.ActivatedJob{Key: 1, Variables: string(vars)}})
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInvalidInput, stdErr.Code)
}

// ==========================
// Execute Tests
// ==========================

func TestHandler_Execute(t *testing.T) {
	h := newHandler(t, staticSource{md: fixtures.CommerceMetadata()})

	out, err := h.Execute(context.Background(), &Input{
		Query: "show me customers from orders placed after 2023-01-01 with total amount greater than 100",
	})
	require.NoError(t, err)

	assert.True(t, out.SchemaAware)
	assert.False(t, out.LowConfidence)
	assert.Contains(t, out.Context.EntitiesMentioned, "customers")
	assert.Contains(t, out.Context.EntitiesMentioned, "orders")
	assert.NotEmpty(t, out.Context.Filters)
}

func TestHandler_Execute_LowConfidence(t *testing.T) {
	h := newHandler(t, staticSource{md: fixtures.CommerceMetadata()})

	out, err := h.Execute(context.Background(), &Input{Query: "weather tomorrow", MinConfidence: threshold(0.5)})
	require.NoError(t, err)
	assert.True(t, out.LowConfidence)
	assert.Empty(t, out.Context.EntitiesMentioned)
}

func TestHandler_Execute_MetadataUnavailable(t *testing.T) {
	h := newHandler(t, staticSource{err: assert.AnError})

	out, err := h.Execute(context.Background(), &Input{Query: "list all customers"})
	require.NoError(t, err)
	assert.False(t, out.SchemaAware)
	assert.Contains(t, out.Context.EntitiesMentioned, "customers")
}

func TestHandler_Execute_EmptyQuery(t *testing.T) {
	h := newHandler(t, nil)

	_, err := h.Execute(context.Background(), &Input{Query: "   "})
	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeInvalidInput, stdErr.Code)
}
