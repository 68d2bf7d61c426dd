package stages

import (
	"context"
	"strings"

	"github.com/fyrsmithlabs/qaflow/internal/prompts"
	"github.com/fyrsmithlabs/qaflow/internal/repo"
	"github.com/fyrsmithlabs/qaflow/internal/secrets"
	"github.com/stretchr/testify/mock"
)

// MockCloner is a mock implementation of Cloner.
type MockCloner struct {
	mock.Mock
}

func (m *MockCloner) Clone(ctx context.Context, url, dir string) error {
	args := m.Called(ctx, url, dir)
	return args.Error(0)
}

// MockPreflight is a mock implementation of Preflighter.
type MockPreflight struct {
	mock.Mock
}

func (m *MockPreflight) Check(ctx context.Context, url string) (*repo.RepoInfo, error) {
	args := m.Called(ctx, url)
	info, _ := args.Get(0).(*repo.RepoInfo)
	return info, args.Error(1)
}

// MockProvisioner is a mock implementation of Provisioner.
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) Provision(ctx context.Context, dir, image string) error {
	args := m.Called(ctx, dir, image)
	return args.Error(0)
}

// MockFetcher is a mock implementation of Fetcher.
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

func (m *MockFetcher) URL(path string) string {
	return "http://localhost:8000" + path
}

// MockLLM is a mock implementation of Completer.
type MockLLM struct {
	mock.Mock
}

func (m *MockLLM) Complete(ctx context.Context, tmpl prompts.Template, vars map[string]any) (string, error) {
	args := m.Called(ctx, tmpl.Name, vars)
	return args.String(0), args.Error(1)
}

// MockRunner is a mock implementation of ScriptRunner.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, script string) string {
	args := m.Called(ctx, script)
	return args.String(0)
}

// replaceScrubber redacts a fixed token.
type replaceScrubber struct {
	token string
}

func (s replaceScrubber) Scrub(content string) *secrets.Result {
	n := strings.Count(content, s.token)
	return &secrets.Result{
		Scrubbed:      strings.ReplaceAll(content, s.token, "[REDACTED]"),
		TotalFindings: n,
	}
}

func (replaceScrubber) IsEnabled() bool { return true }

// varEquals matches a prompt variable map holding key=want.
func varEquals(key, want string) interface{} {
	return mock.MatchedBy(func(vars map[string]any) bool {
		v, ok := vars[key].(string)
		return ok && v == want
	})
}
