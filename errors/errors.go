package errors

import (
	stderrors "errors"
	"fmt"
)

// Caller facing failures. Wrap them with fmt.Errorf("%w: ...") to add context,
// the api layer matches them with errors.Is.
var (
	ErrValidation   = fmt.Errorf("validation failed")
	ErrNotFound     = fmt.Errorf("not found")
	ErrForbidden    = fmt.Errorf("forbidden")
	ErrUnauthorized = fmt.Errorf("unauthorized")
	ErrStoreFailure = fmt.Errorf("store failure")
)

// Realtime path. Never surfaced to the sender.
var (
	ErrMalformedEvent = fmt.Errorf("malformed event")
	ErrSinkFull       = fmt.Errorf("sink buffer full")
	ErrSinkClosed     = fmt.Errorf("sink closed")
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")
	ErrEmptyWords  = fmt.Errorf("no words have been found")
)

// Is and As forward to the standard library so a package importing this one
// does not need a second errors import.
var (
	Is = stderrors.Is
	As = stderrors.As
)
