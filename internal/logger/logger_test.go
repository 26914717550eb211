package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"mailer/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("ParsesLevel", func(t *testing.T) {
		log, err := New(config.LogConfig{Level: "warn"})
		require.NoError(t, err)
		assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
	})

	t.Run("UnknownLevelFallsBackToInfo", func(t *testing.T) {
		log, err := New(config.LogConfig{Level: "chatty", Development: true})
		require.NoError(t, err)
		assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
		assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("CreatesLogDirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "nested", "mailer.log")
		log, err := New(config.LogConfig{Level: "info", File: file})
		require.NoError(t, err)
		log.Info("hello")
		assert.DirExists(t, filepath.Dir(file))
	})
}
