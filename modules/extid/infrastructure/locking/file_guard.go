package locking

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/gofrs/flock"

	"github.com/iota-uz/extid/modules/extid/services"
)

// FileGuard holds one lock file per scope under dir. Every process that
// allocates against the same store must point at the same directory.
type FileGuard struct {
	dir  string
	opts Options
}

func NewFileGuard(dir string, opts Options) (*FileGuard, error) {
	opts.setDefaults()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.Wrapf(err, "create lock dir %s", dir)
	}
	return &FileGuard{dir: dir, opts: opts}, nil
}

func (g *FileGuard) path(scope services.Scope) string {
	return filepath.Join(g.dir, fmt.Sprintf("%s-%d.lock", scope.Kind, scope.ParentID))
}

func (g *FileGuard) Acquire(ctx context.Context, scope services.Scope) (func(), error) {
	fl := flock.New(g.path(scope))
	ok, err := fl.TryLockContext(ctx, g.opts.RetryInterval)
	if err != nil {
		return nil, err
	}
	if !ok {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Errorf("lock %s not acquired", fl.Path())
	}
	return func() {
		if err := fl.Unlock(); err != nil {
			g.opts.Logger.WithError(err).WithField("scope", scope.String()).Warn("extid: failed to release lock file")
		}
	}, nil
}
