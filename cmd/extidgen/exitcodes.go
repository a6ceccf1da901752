package main

import (
	"errors"

	"github.com/iota-uz/extid/modules/extid/domain/hierarchy"
	"github.com/iota-uz/extid/modules/extid/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

const (
	exitOK          = 0
	exitValidation  = 2
	exitUsage       = 3
	exitDB          = 4
	exitNotFound    = 5
	exitLockTimeout = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}

// classify assigns an exit code to an allocation error.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hierarchy.ErrNotFound):
		return withCode(exitNotFound, err)
	case errors.Is(err, services.ErrLockTimeout):
		return withCode(exitLockTimeout, err)
	case errors.Is(err, services.ErrOverflow),
		errors.Is(err, services.ErrHierarchyCycle),
		errors.Is(err, services.ErrUnsupportedKind),
		errors.Is(err, hierarchy.ErrDuplicateExternalID):
		return withCode(exitValidation, err)
	default:
		return withCode(exitDB, err)
	}
}
