package logging

import (
	"testing"

	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	tests := map[string]zapcore.Level{
		"trace": TraceLevel,
		"TRACE": TraceLevel,
		"debug": zapcore.DebugLevel,
		"info":  zapcore.InfoLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	}
	for in, want := range tests {
		got, err := LevelFromString(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := LevelFromString("loud")
	assert.Error(t, err)
}

func TestFromSettings(t *testing.T) {
	t.Run("applies level format and file", func(t *testing.T) {
		cfg, err := FromSettings(config.LoggingConfig{Level: "debug", Format: "JSON", File: "/tmp/qaflow.log"})
		require.NoError(t, err)

		assert.Equal(t, zapcore.DebugLevel, cfg.Level)
		assert.Equal(t, "json", cfg.Format)
		assert.Equal(t, "/tmp/qaflow.log", cfg.Output.File)
		assert.True(t, cfg.Caller)
	})

	t.Run("empty settings keep defaults", func(t *testing.T) {
		cfg, err := FromSettings(config.LoggingConfig{})
		require.NoError(t, err)
		assert.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := FromSettings(config.LoggingConfig{Level: "loud"})
		assert.Error(t, err)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"no outputs", func(c *Config) { c.Output = OutputConfig{} }, "at least one output"},
		{"sampling tick", func(c *Config) { c.Sampling.Tick = 0 }, "sampling tick"},
		{"bad pattern", func(c *Config) { c.Redaction.Patterns = []string{"("} }, "invalid redaction pattern"},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"env": ""} }, "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, NewDefaultConfig().Validate())
}
