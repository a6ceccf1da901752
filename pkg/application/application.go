// Package application is the service registry modules register into.
package application

import (
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/pkg/eventbus"
)

type Module interface {
	Register(app Application) error
	Name() string
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
}

type ApplicationOptions struct {
	// Pool is nil when the hierarchy lives outside Postgres.
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(logger)
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		logger:         logger,
		services:       make(map[reflect.Type]interface{}),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]interface{}
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}
