package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/qaflow/internal/config"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// ErrArchived is returned by Preflight for archived repositories.
var ErrArchived = errors.New("repository is archived")

// ErrNotFound is returned by Preflight when GitHub does not know the repository.
var ErrNotFound = errors.New("repository not found")

var githubURLPattern = regexp.MustCompile(`^(?:https?://|git@)github\.com[/:]([^/]+)/([^/]+?)(?:\.git)?/?$`)

// ParseGitHubURL extracts owner and name from HTTPS or SSH GitHub URLs.
func ParseGitHubURL(url string) (owner, name string, ok bool) {
	m := githubURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// RepoInfo is what Preflight learned about a repository.
type RepoInfo struct {
	Owner         string
	Name          string
	DefaultBranch string
	Private       bool
}

// Preflight checks a GitHub repository before cloning it.
type Preflight struct {
	client *github.Client
}

// NewPreflight creates a Preflight. The token is optional; without it the
// unauthenticated rate limit applies.
func NewPreflight(ctx context.Context, token config.Secret) *Preflight {
	var hc *http.Client
	if token.IsSet() {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()}))
	}
	return &Preflight{client: github.NewClient(hc)}
}

// Check returns nil info and nil error for non-GitHub URLs.
func (p *Preflight) Check(ctx context.Context, url string) (*RepoInfo, error) {
	owner, name, ok := ParseGitHubURL(url)
	if !ok {
		return nil, nil
	}

	op := fmt.Sprintf("github preflight %s/%s", owner, name)
	repo, resp, err := p.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, failure.New(failure.KindTransport, op, ErrNotFound)
		}
		return nil, failure.New(failure.KindTransport, op, err)
	}
	if repo.GetArchived() {
		return nil, failure.New(failure.KindTransport, op, ErrArchived)
	}

	return &RepoInfo{
		Owner:         owner,
		Name:          name,
		DefaultBranch: repo.GetDefaultBranch(),
		Private:       repo.GetPrivate(),
	}, nil
}
