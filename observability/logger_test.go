package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := logrustest.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	logger := NewLogrusLogger(base)

	logger.WithFields(map[string]interface{}{"session_id": "s-1"}).
		WithErr(errors.New("boom")).
		Error("dispatch failed")

	require.Len(t, hook.Entries, 1)
	entry := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "dispatch failed", entry.Message)
	assert.Equal(t, "s-1", entry.Data["session_id"])
	assert.EqualError(t, entry.Data[ErrorLogField].(error), "boom")
}

func TestLogrusLoggerNilFallback(t *testing.T) {
	logger := NewLogrusLogger(nil)
	assert.NotNil(t, logger)
	logger.WithContext(context.Background()).Debug("ok")
}

func TestZapLoggerFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := NewZapLogger(zap.New(core))

	logger.WithFields(map[string]interface{}{"tool": "start_workflow"}).Info("dispatched")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "dispatched", entry.Message)
	assert.Equal(t, "start_workflow", entry.ContextMap()["tool"])
}

func TestNullLoggerChains(t *testing.T) {
	logger := NewNullLogger()

	chained := logger.
		WithFields(map[string]interface{}{"k": "v"}).
		WithContext(context.Background()).
		WithErr(errors.New("ignored"))
	require.NotNil(t, chained)
	chained.Debug("dropped")
	chained.Info("dropped")
	chained.Warn("dropped")
	chained.Error("dropped")
}
