package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for name, want := range tests {
		assert.Equal(t, want, ParseLevel(name), name)
	}
}

func TestNewLoggerJSONWithRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "info", Format: "json", Output: &buf})

	runID := NewRunID()
	_, err := uuid.Parse(runID)
	require.NoError(t, err)

	logger.WithRunID(runID).Info("hydrated", slog.Int("objects", 3))
	logger.Debug("suppressed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hydrated", entry["msg"])
	assert.Equal(t, runID, entry["run_id"])
	assert.EqualValues(t, 3, entry["objects"])
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", GetRunID(ctx))
	assert.NotNil(t, FromContext(ctx).Logger)

	logger := NewLogger(Config{Output: &bytes.Buffer{}})
	ctx = WithLogger(WithRunIDContext(ctx, "run-1"), logger)
	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Same(t, logger, FromContext(ctx))
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := newMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("component", "diff")
	logger.Info("only first")
	logger.Warn("both")

	assert.Contains(t, a.String(), "only first")
	assert.Contains(t, a.String(), "both")
	assert.NotContains(t, b.String(), "only first")
	assert.Contains(t, b.String(), "component=diff")
}
