package modules

import (
	"fmt"

	"github.com/iota-uz/extid/pkg/application"
)

// Load registers modules in order. Registration stops at the first failure.
func Load(app application.Application, modules ...application.Module) error {
	for _, module := range modules {
		if err := module.Register(app); err != nil {
			return fmt.Errorf("register module %s: %w", module.Name(), err)
		}
		app.Logger().WithField("module", module.Name()).Debug("module registered")
	}
	return nil
}
