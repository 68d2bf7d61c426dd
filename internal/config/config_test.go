package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	assert.Equal(t, "https://github.com/devmahmud/Django-Poll-App", cfg.Repo.URL)
	assert.Equal(t, "repo", cfg.Repo.TargetDir)
	assert.Equal(t, "fst_sandbox_app", cfg.Docker.ImageName)
	assert.Equal(t, 8000, cfg.Docker.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, "http://localhost:8000", cfg.Service.BaseURL)
	assert.Len(t, cfg.Docker.SetupCommands, 2)
	assert.Equal(t, 10*time.Second, cfg.Docker.StartupDelay.Duration())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty repo url", func(c *Config) { c.Repo.URL = "" }, "repo.url is required"},
		{"bad port", func(c *Config) { c.Docker.Port = 70000 }, "docker.port must be 1-65535"},
		{"empty setup command", func(c *Config) { c.Docker.SetupCommands = [][]string{{}} }, "docker.setup_commands[0] is empty"},
		{"relative base url", func(c *Config) { c.Service.BaseURL = "localhost:8000" }, "service.base_url must be an absolute URL"},
		{"zero rate", func(c *Config) { c.LLM.RequestsPerMinute = 0 }, "llm.requests_per_minute"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"events without prefix", func(c *Config) {
			c.Events.NATSURL = "nats://127.0.0.1:4222"
			c.Events.SubjectPrefix = ""
		}, "events.subject_prefix"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := Defaults()
	assert.ErrorIs(t, cfg.RequireAPIKey(), ErrMissingAPIKey)

	cfg.LLM.APIKey = Secret("sk-test")
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestSecret(t *testing.T) {
	s := Secret("sk-live-123")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-live-123", s.Value())

	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))

	assert.Equal(t, "", Secret("").String())
	assert.False(t, Secret("").IsSet())
}

func TestDuration(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("soon")))

	text, err := Duration(2 * time.Second).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2s", string(text))
}
