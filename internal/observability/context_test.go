package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDContext(t *testing.T) {
	t.Run("stores and retrieves request ID", func(t *testing.T) {
		ctx := WithRequestID(context.Background(), "req-123")
		assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	})

	t.Run("returns empty string when not set", func(t *testing.T) {
		assert.Equal(t, "", RequestIDFromContext(context.Background()))
	})
}

func TestCorrelationAndProjectContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithCorrelationID(ctx, "corr-1")
	ctx = WithProjectID(ctx, "proj-1")

	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
	assert.Equal(t, "proj-1", ProjectIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(ctx))
}

func TestContextOverwrite(t *testing.T) {
	ctx := WithProjectID(context.Background(), "first")
	ctx = WithProjectID(ctx, "second")
	assert.Equal(t, "second", ProjectIDFromContext(ctx))
}

func TestLoggerWithContext(t *testing.T) {
	t.Run("stamps present identifiers", func(t *testing.T) {
		var buf bytes.Buffer
		ctx := WithRequestID(context.Background(), "req-9")
		ctx = WithProjectID(ctx, "proj-9")

		logger := LoggerWithContext(ctx, zerolog.New(&buf))
		logger.Info().Msg("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "req-9", entry["request_id"])
		assert.Equal(t, "proj-9", entry["project_id"])
		_, hasCorrelation := entry["correlation_id"]
		assert.False(t, hasCorrelation)
	})
}
