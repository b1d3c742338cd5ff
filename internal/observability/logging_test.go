package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  LogConfig
		wantErr bool
	}{
		{
			name:   "JSON format",
			config: LogConfig{Level: "info", Format: "json"},
		},
		{
			name:   "Console format",
			config: LogConfig{Level: "debug", Format: "console"},
		},
		{
			name:   "Empty config uses defaults",
			config: LogConfig{},
		},
		{
			name:    "Invalid level",
			config:  LogConfig{Level: "bogus"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)

			logger.Info("test message", String("key", "value"), Int("n", 1))
			logger.Debug("debug message")
			logger.Warn("warn message")
			child := logger.With(String("component", "test"))
			child.Info("child message")
		})
	}
}

func TestLogger_WithContext(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	assert.Equal(t, "req-42", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(context.Background()))

	logger.WithContext(ctx).Info("with request id")
}

func TestNopLogger(t *testing.T) {
	t.Parallel()

	logger := NopLogger()
	logger.Info("ignored")
	logger.Error("ignored", Error(assert.AnError))
	assert.NoError(t, logger.Sync())
	assert.NotNil(t, logger.With(String("a", "b")))
}

func TestGlobalLogger(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, GetGlobalLogger())
}
