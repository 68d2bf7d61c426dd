// Package repo fetches the repository under test.
package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/logging"
	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// Cloner clones repositories with go-git.
type Cloner struct {
	depth  int
	logger *logging.Logger
}

// NewCloner creates a Cloner. depth 0 clones the full history.
func NewCloner(depth int, logger *logging.Logger) *Cloner {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Cloner{depth: depth, logger: logger}
}

// Clone clones url into dir. An existing dir is left untouched and counts
// as success, whatever it contains. A failed clone removes the partial
// checkout so that the next run retries.
func (c *Cloner) Clone(ctx context.Context, url, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		c.logger.Info(ctx, "target directory already exists, skipping clone", zap.String("dir", dir))
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return failure.New(failure.KindTransport, "stat target dir", err)
	}

	c.logger.Info(ctx, "cloning repository", zap.String("url", url), zap.String("dir", dir))
	_, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:   url,
		Depth: c.depth,
	})
	if err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.logger.Warn(ctx, "removing partial clone", zap.String("dir", dir), zap.Error(rmErr))
		}
		return failure.New(failure.KindTransport, "git clone", fmt.Errorf("%s: %w", url, err))
	}

	c.logger.Info(ctx, "repository cloned", zap.String("dir", dir))
	return nil
}
