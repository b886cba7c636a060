package logger

import (
	"os"
	"path/filepath"
	"testing"

	"ScanSentry/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sensor.log")
	log, err := New(config.LoggingConfig{Level: "info", Format: "json", Output: path, MaxSize: 1}, false)
	require.NoError(t, err)

	log.Info("hello")
	log.Debug("hidden")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_DebugOverridesLevel(t *testing.T) {
	log, err := New(config.LoggingConfig{Level: "error", Output: "stderr"}, true)
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_InvalidSettings(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, false)
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Format: "xml"}, false)
	assert.Error(t, err)

	assert.NotNil(t, Must(config.LoggingConfig{Level: "loud"}, false))
}
