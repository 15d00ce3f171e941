// Package domain provides domain level entities, errors & broadcast events.
package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrValidation             = errors.New("validation error")
	ErrConflict               = errors.New("conflict")
	ErrServerMisconfiguration = errors.New("server misconfiguration")
	ErrUpstreamFailure        = errors.New("upstream failure")
	ErrPoolExhausted          = errors.New("pool exhausted")
	ErrPoolLimitReached       = errors.New("pool limit reached")
)

// Not found variants, all match ErrNotFound with errors.Is
var (
	ErrPoolNotFound      = notFound("Pool not found")
	ErrPodNotFound       = notFound("Pod not found")
	ErrTaskNotFound      = notFound("Task not found")
	ErrRunNotFound       = notFound("Run not found")
	ErrWorkspaceNotFound = notFound("Workspace not found")
)

type notFoundError struct {
	msg string
}

func notFound(msg string) error {
	return &notFoundError{msg: msg}
}

func (e *notFoundError) Error() string {
	return e.msg
}

func (e *notFoundError) Is(target error) bool {
	return target == ErrNotFound
}
