package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/daffodil/internal/config"
)

func TestNewWithWriter(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.AppConfig
		logAt     slog.Level
		wantEmpty bool
		check     func(t *testing.T, out string)
	}{
		{
			name:  "Should emit JSON with identity attributes",
			cfg:   config.AppConfig{Name: "daffodil-worker", Version: "1.2.3", Environment: "production", LogLevel: "info", LogFormat: "json"},
			logAt: slog.LevelInfo,
			check: func(t *testing.T, out string) {
				var line map[string]any
				require.NoError(t, json.Unmarshal([]byte(out), &line))
				assert.Equal(t, "daffodil-worker", line["service"])
				assert.Equal(t, "1.2.3", line["version"])
				assert.Equal(t, "production", line["env"])
				assert.NotContains(t, line, "source", "source must be omitted in production")
			},
		},
		{
			name:  "Should emit text with source outside production",
			cfg:   config.AppConfig{Name: "daffodil-control", Version: "dev", Environment: "development", LogLevel: "debug", LogFormat: "text"},
			logAt: slog.LevelDebug,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "service=daffodil-control")
				assert.Contains(t, out, "source=")
			},
		},
		{
			name:      "Should filter records below the configured level",
			cfg:       config.AppConfig{Name: "svc", Environment: "staging", LogLevel: "warn", LogFormat: "json"},
			logAt:     slog.LevelInfo,
			wantEmpty: true,
		},
		{
			name:  "Should default to info on an unknown level",
			cfg:   config.AppConfig{Name: "svc", Environment: "staging", LogLevel: "verbose", LogFormat: "json"},
			logAt: slog.LevelInfo,
			check: func(t *testing.T, out string) {
				assert.True(t, strings.HasPrefix(out, "{"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(&tt.cfg, &buf)

			log.Log(t.Context(), tt.logAt, "segment refreshed")

			if tt.wantEmpty {
				assert.Empty(t, buf.String())
				return
			}
			require.NotEmpty(t, buf.String())
			tt.check(t, buf.String())
		})
	}
}

func TestNewWithWriter_PanicsOnNilConfig(t *testing.T) {
	assert.PanicsWithValue(t, "logger: config cannot be nil", func() {
		NewWithWriter(nil, &bytes.Buffer{})
	})
}
