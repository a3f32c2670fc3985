package infrastructure

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureTraceID(t *testing.T) {
	ctx := EnsureTraceID(context.Background())
	first := GetTraceID(ctx)
	require.NotEmpty(t, first)

	// An existing trace id is kept
	ctx = EnsureTraceID(ctx)
	assert.Equal(t, first, GetTraceID(ctx))
}

func TestGenerateTraceIDUnique(t *testing.T) {
	assert.NotEqual(t, GenerateTraceID(), GenerateTraceID())
}

func TestTraceHandlerInjectsTraceID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(&traceHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := WithTraceID(context.Background(), "trace-123")
	logger.InfoContext(ctx, "ping")

	assert.Contains(t, buf.String(), `"trace_id":"trace-123"`)
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	prev := globalLogger
	globalLogger = slog.New(slog.NewJSONHandler(&buf, nil))
	t.Cleanup(func() { globalLogger = prev })

	ctx := WithTraceID(context.Background(), "trace-456")
	LoggerWithContext(ctx).Info("ping")

	assert.Contains(t, buf.String(), `"trace_id":"trace-456"`)
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := WithComponent(slog.New(slog.NewJSONHandler(&buf, nil)), "engine")
	logger.Info("ping")

	assert.Contains(t, buf.String(), `"component":"engine"`)
}
