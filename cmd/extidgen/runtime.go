package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/iota-uz/extid/modules"
	"github.com/iota-uz/extid/modules/extid"
	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/services"
	"github.com/iota-uz/extid/pkg/application"
	"github.com/iota-uz/extid/pkg/composables"
	"github.com/iota-uz/extid/pkg/configuration"
	"github.com/iota-uz/extid/pkg/logging"
)

// runtime is everything a subcommand needs: configuration, the opened
// store and guard, and the application with the extid module registered.
type runtime struct {
	conf      *configuration.Configuration
	backends  *extid.Backends
	app       application.Application
	allocator *services.Allocator

	stopTracing func()
}

func openRuntime(ctx context.Context, envFiles []string) (*runtime, error) {
	conf, err := configuration.Load(envFiles...)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("configuration: %w", err))
	}
	b, err := extid.OpenBackends(ctx, conf)
	if err != nil {
		conf.Unload()
		return nil, withCode(exitDB, err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   b.Pool,
		Logger: conf.Logger(),
	})
	if err := modules.Load(app, extid.NewModule(extid.ModuleOptions{
		Repository:   b.Repository,
		Guard:        b.Guard,
		RootOfficeID: conf.RootOfficeID,
		LockTimeout:  conf.Guard.LockTimeout,
	})); err != nil {
		b.Close()
		conf.Unload()
		return nil, err
	}

	rt := &runtime{
		conf:        conf,
		backends:    b,
		app:         app,
		allocator:   app.Service(services.Allocator{}).(*services.Allocator),
		stopTracing: func() {},
	}
	if conf.OpenTelemetry.Enabled {
		rt.stopTracing = logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
		conf.Logger().Debug("OpenTelemetry tracing enabled, exporting to " + conf.OpenTelemetry.TempoURL)
	}
	return rt, nil
}

func (r *runtime) Close() {
	r.stopTracing()
	r.backends.Close()
	r.conf.Unload()
}

// bind attaches the command logger and request id to ctx.
func (r *runtime) bind(ctx context.Context, command, requestID string) context.Context {
	entry := logrus.NewEntry(r.conf.Logger()).WithField("command", command)
	if r.backends.Pool != nil {
		ctx = composables.WithPool(ctx, r.backends.Pool)
	}
	if requestID != "" {
		ctx = composables.WithRequestID(ctx, requestID)
		entry = entry.WithField("request_id", requestID)
	}
	return composables.WithLogger(ctx, entry)
}

func (r *runtime) externalID(ctx context.Context, kind hierarchy.Kind, id int64) (string, error) {
	repo := r.backends.Repository
	switch kind {
	case hierarchy.KindOffice:
		o, err := repo.GetOffice(ctx, id)
		return o.ExternalID, err
	case hierarchy.KindCenter, hierarchy.KindGroup:
		g, err := repo.GetGroup(ctx, id)
		return g.ExternalID, err
	case hierarchy.KindClient:
		c, err := repo.GetClient(ctx, id)
		return c.ExternalID, err
	default:
		return "", fmt.Errorf("%w: %q", services.ErrUnsupportedKind, kind)
	}
}

func parseKindFlag(v string) (hierarchy.Kind, error) {
	kind, ok := hierarchy.ParseKind(v)
	if !ok {
		return "", withCode(exitUsage, fmt.Errorf("invalid --entity %q (expected office|center|group|client)", v))
	}
	return kind, nil
}

func envFilesFlag(cmd *cobra.Command) []string {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	return files
}
