package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{ReplaceAttr: NewReplaceAttr()}))
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	return entry
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, defaultLogger, FromContext(nil)) //nolint:staticcheck // nil guard
	assert.Equal(t, defaultLogger, FromContext(context.Background()))

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Equal(t, custom, FromContext(WithContext(context.Background(), custom)))
}

func TestContextEnrichment(t *testing.T) {
	var buf bytes.Buffer

	ctx := WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	ctx = Enricher(KeyRequestID)(ctx, "req-123")
	ctx = Enricher(KeyCorrelationID)(ctx, "corr-789")
	ctx = WithClient(ctx, "kitchen")
	ctx = With(ctx, "quote_id", "q1")

	FromContext(ctx).InfoContext(ctx, "served card")

	entry := decode(t, &buf)
	assert.Equal(t, "req-123", entry["request_id"])
	assert.Equal(t, "corr-789", entry["correlation_id"])
	assert.Equal(t, "kitchen", entry["client"])
	assert.Equal(t, "q1", entry["quote_id"])
}

func TestWith_LeavesParentUntouched(t *testing.T) {
	var buf bytes.Buffer

	parent := WithContext(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	_ = WithClient(parent, "hall")

	FromContext(parent).Info("sync finished")

	assert.NotContains(t, decode(t, &buf), "client")
}

func TestSetDefault(t *testing.T) {
	original := defaultLogger
	t.Cleanup(func() { SetDefault(original) })

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	SetDefault(custom)

	assert.Equal(t, custom, FromContext(context.Background()))
	assert.Equal(t, custom, slog.Default())
}

func TestNew(t *testing.T) {
	assert.NotNil(t, New(&Config{Level: "info", Format: "json", Service: "ditto", Version: "1.0.0"}))
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "info", Format: "json", Service: "ditto", Version: "1.0.0"}, &buf)
	logger.Info("sync complete", slog.Int("synced", 12))

	entry := decode(t, &buf)
	assert.Equal(t, "sync complete", entry["msg"])
	assert.Equal(t, "ditto", entry["service_name"])
	assert.Equal(t, "1.0.0", entry["service_version"])
	assert.InDelta(t, 12, entry["synced"], 0)
}

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "debug", Format: "text", Service: "ditto"}, &buf)
	logger.Debug("fitted card text")

	assert.Contains(t, buf.String(), "fitted card text")
	assert.Contains(t, buf.String(), "service_name=ditto")
}

func TestNewWithWriter_PrettyFormat(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "info", Format: "pretty", Service: "ditto"}, &buf)
	logger.Info("pretty message", slog.String("notion_token", "secret_abcdefghijklmnopqrstuvwxyz"))
	logger.Debug("hidden below info")

	out := buf.String()
	assert.Contains(t, out, "pretty message")
	assert.NotContains(t, out, "secret_abcdefghijklmnopqrstuvwxyz")
	assert.NotContains(t, out, "hidden below info")
}

func TestNewWithWriter_TraceLevel(t *testing.T) {
	var buf bytes.Buffer

	logger := NewWithWriter(&Config{Level: "trace", Format: "json"}, &buf)
	logger.Log(context.Background(), LevelTrace, "upstream attempt")

	assert.Contains(t, buf.String(), "upstream attempt")

	buf.Reset()

	logger = NewWithWriter(&Config{Level: "debug", Format: "json"}, &buf)
	logger.Log(context.Background(), LevelTrace, "upstream attempt")

	assert.Empty(t, buf.String())
}

func TestNewWithWriter_WithFileConfig(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "ditto.log")

	var buf bytes.Buffer

	logger := NewWithWriter(&Config{
		Level:   "info",
		Format:  "pretty",
		Service: "ditto",
		File: FileConfig{
			Enabled:    true,
			Path:       logFile,
			MaxSizeMB:  1,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
	}, &buf)

	logger.Info("test message to file", slog.String("password", "hunter2"))

	assert.Contains(t, buf.String(), "test message to file")

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(content), "test message to file")
	assert.NotContains(t, string(content), "hunter2")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"trace", LevelTrace},
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelDebug},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.input))
		})
	}
}

func TestSlogToCharmLevel(t *testing.T) {
	tests := []struct {
		name     string
		input    slog.Level
		expected log.Level
	}{
		{"trace maps to debug", LevelTrace, log.DebugLevel},
		{"debug", slog.LevelDebug, log.DebugLevel},
		{"info", slog.LevelInfo, log.InfoLevel},
		{"warn", slog.LevelWarn, log.WarnLevel},
		{"error", slog.LevelError, log.ErrorLevel},
		{"very high maps to error", slog.Level(12), log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, slogToCharmLevel(tt.input))
		})
	}
}

func TestMultiHandler(t *testing.T) {
	var a, b bytes.Buffer

	info := slog.NewJSONHandler(&a, &slog.HandlerOptions{Level: slog.LevelInfo})
	errs := slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelError})

	multi := NewMultiHandler(info, errs)
	assert.True(t, multi.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, multi.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(multi).With(slog.String("component", "sync")).WithGroup("run")
	logger.Info("started", slog.Int("items", 3))
	logger.Error("failed")

	assert.Contains(t, a.String(), "started")
	assert.Contains(t, a.String(), "failed")
	assert.Contains(t, a.String(), `"component":"sync"`)
	assert.Contains(t, a.String(), `"run":{"items":3}`)
	assert.NotContains(t, b.String(), "started")
	assert.Contains(t, b.String(), "failed")
}

func TestMultiHandler_DropsNilOutputs(t *testing.T) {
	var buf bytes.Buffer

	multi := NewMultiHandler(nil, slog.NewJSONHandler(&buf, nil))
	require.Len(t, multi, 1)

	slog.New(multi).Info("synced", slog.Int("quotes", 2))
	assert.Contains(t, buf.String(), `"quotes":2`)
}

func TestNewReplaceAttr(t *testing.T) {
	tests := []struct {
		field  string
		value  string
		redact bool
	}{
		{"password", "hunter2", true},
		{"token", "my-token", true},
		{"notion_token", "plain-value", true},
		{"api_key", "key-value", true},
		{"authorization", "Bearer abc123", true},
		{"secret_config", "sensitive-data", true},
		{"database_id", "secret_0123456789abcdefghijKLMNOP", true},
		{"client", "kitchen", false},
		{"quote_id", "2b1c-page", false},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			var buf bytes.Buffer

			jsonLogger(&buf).Info("test", slog.String(tt.field, tt.value))

			out := buf.String()
			assert.Contains(t, out, tt.field)

			if tt.redact {
				assert.NotContains(t, out, tt.value)
			} else {
				assert.Contains(t, out, tt.value)
			}
		})
	}
}

func TestNewReplaceAttr_PresignedImageURL(t *testing.T) {
	var buf bytes.Buffer

	signed := "https://s3.us-west-2.amazonaws.com/notion/photo.jpg?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Signature=deadbeef"
	jsonLogger(&buf).Info("fetching image", slog.String("url", signed), slog.String("quote_id", "q1"))

	assert.NotContains(t, buf.String(), "deadbeef")
	assert.Contains(t, buf.String(), "q1")
}

func TestContextWithRedaction(t *testing.T) {
	var buf bytes.Buffer

	ctx := Enricher(KeyRequestID)(WithContext(context.Background(), jsonLogger(&buf)), "req-integration-123")
	FromContext(ctx).Info("registered client",
		slog.String("client", "hallway"),
		slog.String("password", "super-secret"),
	)

	out := buf.String()
	assert.Contains(t, out, "req-integration-123")
	assert.Contains(t, out, "hallway")
	assert.NotContains(t, out, "super-secret")
}
