package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_DEV", "1")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_DIR", "")
	assert.Equal(t, Config{Level: "debug", Dev: true}, ConfigFromEnv())

	t.Setenv("LOG_DEV", "")
	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, Config{Level: "warn"}, ConfigFromEnv())
}

func TestLevelFromString(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, levelFromString("warning"))
	assert.Equal(t, zapcore.InfoLevel, levelFromString("verbose"))
}

func TestNew_WithRotatedFile(t *testing.T) {
	dir := t.TempDir()
	log, err := New(Config{Level: "info", Dir: dir})
	require.NoError(t, err)

	log.Info("hello")
	_ = log.Sync()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var found bool
	for _, e := range entries {
		if matched, _ := filepath.Match("autolead.*.log", e.Name()); matched {
			found = true
		}
	}
	assert.True(t, found, "expected a rotated log file in %s", dir)
}
