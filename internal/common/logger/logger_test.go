package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestForComponent_AddsField(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := ForComponent(NewZapAdapter(zap.New(core)), "matcher")

	l.Warn("semantic search degraded", map[string]interface{}{"error": errors.New("timeout")})

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "matcher", fields["component"])
		assert.Equal(t, "timeout", fields["error"])
	}
}

func TestForComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		ForComponent(nil, "planner").Info("ok", nil)
	})
}
