package composables

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/extid/pkg/constants"
)

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

// UseLogger returns the logger bound to ctx. The second value is false when
// no logger is present.
func UseLogger(ctx context.Context) (*logrus.Entry, bool) {
	if ctx == nil {
		return nil, false
	}
	switch typed := ctx.Value(constants.LoggerKey).(type) {
	case *logrus.Entry:
		return typed, typed != nil
	case *logrus.Logger:
		if typed == nil {
			return nil, false
		}
		return logrus.NewEntry(typed), true
	default:
		return nil, false
	}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

func UseRequestID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(constants.RequestIDKey).(string)
	return id, ok && id != ""
}
