package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zricethezav/gitleaks/v8/report"
)

func TestRedact(t *testing.T) {
	content := "<input value=\"sk-proj-abcdef123456\">\n<meta name=\"k\" content=\"xoxb-99\">"
	found := []report.Finding{
		{RuleID: "openai-api-key", Description: "OpenAI key", Secret: "sk-proj-abcdef123456", StartLine: 1},
		{RuleID: "slack-bot-token", Description: "Slack token", Secret: "xoxb-99", StartLine: 2},
		{RuleID: "empty", Secret: ""},
	}

	res := redact(content, found)

	assert.True(t, res.HasFindings())
	assert.Equal(t, 2, res.TotalFindings)
	assert.Equal(t, map[string]int{"openai-api-key": 1, "slack-bot-token": 1}, res.ByRule)
	assert.NotContains(t, res.Scrubbed, "sk-proj-abcdef123456")
	assert.NotContains(t, res.Scrubbed, "xoxb-99")
	assert.Contains(t, res.Scrubbed, "[REDACTED:openai-api-key:sk-p]")
	assert.Contains(t, res.Scrubbed, "[REDACTED:slack-bot-token:xoxb]")

	for _, f := range res.Findings {
		assert.LessOrEqual(t, len(f.Preview), 4)
	}
}

func TestRedact_OverlappingSecrets(t *testing.T) {
	res := redact("token=abcd1234efgh", []report.Finding{
		{RuleID: "short", Secret: "abcd"},
		{RuleID: "long", Secret: "abcd1234efgh"},
	})

	assert.Equal(t, "token=[REDACTED:long:abcd]", res.Scrubbed)
}

func TestRedact_NoFindings(t *testing.T) {
	res := redact("<h1>Polls</h1>", nil)
	assert.False(t, res.HasFindings())
	assert.Equal(t, "<h1>Polls</h1>", res.Scrubbed)
}

func TestGitleaksScrubber(t *testing.T) {
	s, err := New(nil)
	require.NoError(t, err)
	assert.True(t, s.IsEnabled())

	t.Run("clean markup passes through", func(t *testing.T) {
		html := "<form action=\"/login/\" method=\"post\"><input name=\"username\"></form>"
		res := s.Scrub(html)
		assert.False(t, res.HasFindings())
		assert.Equal(t, html, res.Scrubbed)
	})

	t.Run("detected secrets are removed", func(t *testing.T) {
		secret := "sk-proj-abcdefghijklmnopqrstuvwxyz1234567890123456"
		res := s.Scrub(`const key = "` + secret + `"`)
		if res.HasFindings() {
			assert.NotContains(t, res.Scrubbed, secret)
			assert.Contains(t, res.Scrubbed, "[REDACTED:")
		}
	})
}

func TestNoopScrubber(t *testing.T) {
	var s Scrubber = NoopScrubber{}
	assert.False(t, s.IsEnabled())
	assert.Equal(t, "password=hunter2", s.Scrub("password=hunter2").Scrubbed)
}

func TestLoadAllowlist(t *testing.T) {
	dir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		a, err := LoadAllowlist("")
		require.NoError(t, err)
		assert.Empty(t, a.Regexes)
	})

	t.Run("missing file", func(t *testing.T) {
		a, err := LoadAllowlist(filepath.Join(dir, "missing.toml"))
		require.NoError(t, err)
		assert.Empty(t, a.Regexes)
	})

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "allow.toml")
		require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['''demo-secret-\\d+''']\nstopwords = ['example']\n"), 0o600))

		a, err := LoadAllowlist(path)
		require.NoError(t, err)
		assert.Equal(t, []string{`demo-secret-\d+`}, a.Regexes)
		assert.Equal(t, []string{"example"}, a.StopWords)

		s, err := New(a)
		require.NoError(t, err)
		res := s.Scrub(`export DEMO_KEY="demo-secret-12345"`)
		for _, f := range res.Findings {
			assert.False(t, strings.Contains(strings.ToLower(f.Preview), "demo"))
		}
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[allowlist\n"), 0o600))

		_, err := LoadAllowlist(path)
		assert.ErrorIs(t, err, ErrInvalidTOML)
	})

	t.Run("invalid regex", func(t *testing.T) {
		path := filepath.Join(dir, "regex.toml")
		require.NoError(t, os.WriteFile(path, []byte("[allowlist]\nregexes = ['''(unclosed''']\n"), 0o600))

		_, err := LoadAllowlist(path)
		assert.ErrorIs(t, err, ErrInvalidRegex)
	})
}
