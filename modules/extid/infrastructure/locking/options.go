// Package locking provides allocation guards that serialize scopes across
// processes: lock files on a shared host, Postgres advisory locks and Redis
// keys.
package locking

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/modules/extid/services"
	"github.com/iota-uz/extid/pkg/logging"
)

var (
	_ services.Guard = (*FileGuard)(nil)
	_ services.Guard = (*AdvisoryGuard)(nil)
	_ services.Guard = (*RedisGuard)(nil)
)

type Options struct {
	// RetryInterval is the delay between attempts on a busy scope.
	RetryInterval time.Duration
	Logger        *logrus.Entry
}

func (o *Options) setDefaults() {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 25 * time.Millisecond
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}
