package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("muddle.router=debug, warn ,bogus=loud", "JSON", "1")

	assert.Equal(t, slog.LevelWarn, cfg.DefaultLevel)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.AddSource)
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("muddle.router"))
	assert.Equal(t, slog.LevelDebug, cfg.LevelFor("muddle.router.echo"), "前缀匹配")
	assert.Equal(t, slog.LevelWarn, cfg.LevelFor("muddle.dispatcher"))
	_, ok := cfg.SubsystemLevels["bogus"]
	assert.False(t, ok)
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg := ParseConfig("", "", "")
	assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
	assert.Equal(t, FormatText, cfg.Format)
	assert.False(t, cfg.AddSource)
}

func TestSetOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("logger.test")
	log.Info("hello", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=logger.test")
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(os.Stderr)

	log := Logger("logger.level")
	require.Same(t, log, Logger("logger.level"))

	SetLevel("logger.level", slog.LevelError)
	log.Info("suppressed")
	assert.Empty(t, buf.String())

	SetLevel("logger.level", slog.LevelDebug)
	log.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "error")
	resetEnvConfig()
	defer resetEnvConfig()

	assert.Equal(t, slog.LevelError, ConfigFromEnv().DefaultLevel)
}

func TestDiscard(t *testing.T) {
	log := Discard()
	assert.False(t, log.Enabled(context.Background(), slog.LevelError))
}
