// Package cos provides the shared error-kind taxonomy used across the
// core pipeline, adapted from AIStore's
// `cmn/cos` (bucket/object error types generalized to this module's
// BadRequest/NotFound/Transient/Corruption/BackendError taxonomy).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"fmt"
)

type (
	// ErrBadRequest: client input is malformed (dimension mismatch, metadata
	// schema/size violation, batch too large, unknown filter operator).
	// Reject the whole request; no side effects.
	ErrBadRequest struct{ what string }

	// ErrNotFound: index, manifest, or shard artifact absent from the object store.
	ErrNotFound struct{ what string }

	// ErrTransient: object-store 5xx/timeout. Retry is safe.
	ErrTransient struct {
		what string
		Err  error
	}

	// ErrCorruption: JSON parse failure or shape mismatch in persisted state.
	// Fatal for the affected index operation.
	ErrCorruption struct {
		what string
		Err  error
	}

	// ErrBackendError: ANN train/add/search failure. Fatal for the affected
	// shard build or query.
	ErrBackendError struct {
		what string
		Err  error
	}
)

func NewErrBadRequest(format string, a ...any) *ErrBadRequest {
	return &ErrBadRequest{fmt.Sprintf(format, a...)}
}
func (e *ErrBadRequest) Error() string { return "bad request: " + e.what }

func NewErrNotFound(format string, a ...any) *ErrNotFound {
	return &ErrNotFound{fmt.Sprintf(format, a...)}
}
func (e *ErrNotFound) Error() string { return e.what + " does not exist" }

func NewErrTransient(err error, format string, a ...any) *ErrTransient {
	return &ErrTransient{fmt.Sprintf(format, a...), err}
}
func (e *ErrTransient) Error() string {
	if e.Err == nil {
		return e.what
	}
	return e.what + ": " + e.Err.Error()
}
func (e *ErrTransient) Unwrap() error { return e.Err }

func NewErrCorruption(err error, format string, a ...any) *ErrCorruption {
	return &ErrCorruption{fmt.Sprintf(format, a...), err}
}
func (e *ErrCorruption) Error() string {
	if e.Err == nil {
		return "corrupt state: " + e.what
	}
	return "corrupt state: " + e.what + ": " + e.Err.Error()
}
func (e *ErrCorruption) Unwrap() error { return e.Err }

func NewErrBackend(err error, format string, a ...any) *ErrBackendError {
	return &ErrBackendError{fmt.Sprintf(format, a...), err}
}
func (e *ErrBackendError) Error() string {
	if e.Err == nil {
		return "ann backend: " + e.what
	}
	return "ann backend: " + e.what + ": " + e.Err.Error()
}
func (e *ErrBackendError) Unwrap() error { return e.Err }

func IsErrBadRequest(err error) bool { var e *ErrBadRequest; return errors.As(err, &e) }
func IsErrNotFound(err error) bool   { var e *ErrNotFound; return errors.As(err, &e) }
func IsErrTransient(err error) bool  { var e *ErrTransient; return errors.As(err, &e) }
func IsErrCorruption(err error) bool { var e *ErrCorruption; return errors.As(err, &e) }
func IsErrBackend(err error) bool    { var e *ErrBackendError; return errors.As(err, &e) }
