package extid

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/handlers"
	"github.com/iota-uz/extid/modules/extid/services"
	"github.com/iota-uz/extid/pkg/application"
)

type ModuleOptions struct {
	Repository   hierarchy.Repository
	Guard        services.Guard
	RootOfficeID int64
	LockTimeout  time.Duration
}

func NewModule(opts ModuleOptions) application.Module {
	return &Module{opts: opts}
}

type Module struct {
	opts ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	if m.opts.Repository == nil {
		return errors.New("extid: hierarchy repository is required")
	}
	app.RegisterServices(
		services.NewAllocator(m.opts.Repository, services.Options{
			RootOfficeID: m.opts.RootOfficeID,
			LockTimeout:  m.opts.LockTimeout,
			Guard:        m.opts.Guard,
			Logger:       logrus.NewEntry(app.Logger()).WithField("module", m.Name()),
		}),
	)
	handlers.RegisterEntityEventHandlers(app)
	return nil
}

func (m *Module) Name() string {
	return "extid"
}
