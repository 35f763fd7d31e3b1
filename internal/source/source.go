// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package source defines the location sample source capability consumed by the
// tracker, together with the platform error taxonomy shared by its implementations.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voyago/geotrack/internal/geo"
)

// ErrUnsupported is returned by sources that are not available on the current platform.
var ErrUnsupported = errors.New("location source is not supported on this platform")

// Code classifies a platform error.
type Code int

const (
	// CodeUnknown wraps any unrecognized platform error.
	CodeUnknown Code = iota
	// CodePermissionDenied signals that the user or platform denied location access.
	CodePermissionDenied
	// CodePositionUnavailable signals that no position could be acquired.
	CodePositionUnavailable
	// CodeTimeout signals that the position request exceeded its deadline.
	CodeTimeout
)

// String returns a human-readable name for the code.
func (c Code) String() string {
	switch c {
	case CodePermissionDenied:
		return "permission denied"
	case CodePositionUnavailable:
		return "position unavailable"
	case CodeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified platform error.
type Error struct {
	Code Code
	Err  error
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given code.
func NewError(code Code, err error) *Error {
	return &Error{Code: code, Err: err}
}

// CodeOf extracts the taxonomy code from err. Errors that carry no code map to
// CodeUnknown, context deadline errors map to CodeTimeout.
func CodeOf(err error) Code {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	return CodeUnknown
}

// Options carries the per-request settings for a position acquisition.
type Options struct {
	// HighAccuracy requests the most precise fix the source can deliver.
	HighAccuracy bool
	// Timeout bounds a single acquisition.
	Timeout time.Duration
	// MaximumAge allows the source to serve a cached fix no older than this instead
	// of acquiring a new one. Zero disables the cache.
	MaximumAge time.Duration
}

// Update is a single delivery on a watch stream. Either Sample is set or Err is
// non-nil, never both.
type Update struct {
	Sample geo.Sample
	Err    error
}

// Source supplies one-shot and continuous location readings.
type Source interface {
	// Name returns the source name.
	Name() string
	// Available reports whether the source capability exists on the current
	// platform. It has no side effects.
	Available() bool
	// Current performs a one-shot position request.
	Current(ctx context.Context, opts Options) (geo.Sample, error)
	// Watch opens a continuous subscription delivering subsequent samples and
	// errors until ctx is cancelled. The returned channel is closed when the
	// subscription ends.
	Watch(ctx context.Context, opts Options) <-chan Update
}
