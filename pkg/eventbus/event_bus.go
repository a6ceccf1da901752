package eventbus

import (
	stderrors "errors"
	"reflect"
	"sync"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoSubscribers        = errors.New("eventbus: no matching subscribers")
	ErrInvalidHandlerReturn = errors.New("eventbus: invalid handler return signature")
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// EventBus dispatches events to subscribers whose parameter list matches the
// published arguments.
type EventBus interface {
	Publish(args ...any)
	PublishE(args ...any) error
	Subscribe(handler any)
	SubscribersCount() int
}

type publisherImpl struct {
	log *logrus.Logger

	mu          sync.RWMutex
	subscribers []any
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: log}
}

// MatchSignature reports whether handler can be called with args.
func MatchSignature(handler any, args []any) bool {
	t := reflect.TypeOf(handler)
	if t == nil || t.Kind() != reflect.Func || t.NumIn() != len(args) {
		return false
	}
	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		if !reflect.TypeOf(arg).AssignableTo(paramType) {
			return false
		}
	}
	return true
}

// Publish delivers args to every matching subscriber and logs failures.
func (p *publisherImpl) Publish(args ...any) {
	if err := p.PublishE(args...); err != nil && p.log != nil {
		if errors.Is(err, ErrNoSubscribers) {
			p.log.Warnf("eventbus.Publish: no matching subscribers for %d args", len(args))
			return
		}
		p.log.WithError(err).Error("eventbus.Publish: handler failed")
	}
}

// PublishE delivers args to every matching subscriber and joins the errors
// they return. A panicking handler is reported as an error.
func (p *publisherImpl) PublishE(args ...any) error {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		if arg == nil {
			in[i] = reflect.Value{}
			continue
		}
		in[i] = reflect.ValueOf(arg)
	}

	p.mu.RLock()
	subscribers := append([]any(nil), p.subscribers...)
	p.mu.RUnlock()

	handled := false
	var errs []error
	for _, handler := range subscribers {
		if !MatchSignature(handler, args) {
			continue
		}
		handled = true
		if err := call(handler, in); err != nil {
			errs = append(errs, err)
		}
	}

	if !handled {
		return ErrNoSubscribers
	}
	return stderrors.Join(errs...)
}

func call(handler any, in []reflect.Value) (err error) {
	v := reflect.ValueOf(handler)
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("eventbus: handler %s panicked: %v", v.Type().String(), r)
		}
	}()

	args := make([]reflect.Value, len(in))
	for i := range in {
		if in[i].IsValid() {
			args[i] = in[i]
			continue
		}
		args[i] = reflect.Zero(v.Type().In(i))
	}

	out := v.Call(args)
	switch len(out) {
	case 0:
		return nil
	case 1:
		if out[0].Type() != errorType {
			return errors.Wrapf(ErrInvalidHandlerReturn, "handler %s returns %s", v.Type().String(), out[0].Type().String())
		}
		if out[0].IsNil() {
			return nil
		}
		return out[0].Interface().(error)
	default:
		return errors.Wrapf(ErrInvalidHandlerReturn, "handler %s returned %d values", v.Type().String(), len(out))
	}
}

func (p *publisherImpl) Subscribe(handler any) {
	if t := reflect.TypeOf(handler); t == nil || t.Kind() != reflect.Func {
		panic("handler must be a function")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, handler)
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscribers)
}
