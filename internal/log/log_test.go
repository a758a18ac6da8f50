package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/scan-trigger/internal/log"
)

func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, slog.LevelInfo)

	ctx := log.ContextAttrs(context.Background(), slog.String("request_id", "r1"))
	child := log.ContextAttrs(ctx, slog.String("invocation_id", "i1"))

	logger.With("component", "test").InfoContext(child, "hello")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "r1", rec["request_id"])
	require.Equal(t, "i1", rec["invocation_id"])
	require.Equal(t, "test", rec["component"])

	// parent is not affected by the child's attrs
	buf.Reset()
	logger.InfoContext(ctx, "parent")
	rec = nil
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.NotContains(t, rec, "invocation_id")
}

func TestLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, slog.LevelWarn)
	logger.Info("dropped")
	require.Zero(t, buf.Len())

	for in, want := range map[string]slog.Level{
		"":      slog.LevelInfo,
		"DEBUG": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := log.ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := log.ParseLevel("loud")
	require.Error(t, err)
}
