// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package permission models the platform location-permission capability. The
// tracker treats the reported consent state as advisory: it may be stale relative
// to the platform and is refined on the first actual location request.
package permission

import (
	"context"
)

// State represents the platform consent state for location access.
type State int

const (
	// StateUnknown is reported when the platform exposes no permission query
	// capability. Permission is then discovered lazily on the first request.
	StateUnknown State = iota
	// StateGranted signals that location access is allowed.
	StateGranted
	// StateDenied signals that location access was denied.
	StateDenied
	// StatePrompt signals that the user has not decided yet.
	StatePrompt
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateGranted:
		return "granted"
	case StateDenied:
		return "denied"
	case StatePrompt:
		return "prompt"
	default:
		return "unknown"
	}
}

// Monitor provides access to the platform permission state.
type Monitor interface {
	// Query returns the current permission state. Platforms without a permission
	// capability report StateUnknown, which is not an error.
	Query(ctx context.Context) State
	// Watch emits permission state changes until ctx is cancelled. The returned
	// channel is closed when the watch ends.
	Watch(ctx context.Context) <-chan State
}

// Static is a Monitor with a fixed state, used on platforms without a permission
// capability and in tests.
type Static struct {
	State State
}

// Query returns the configured state.
func (s Static) Query(_ context.Context) State {
	return s.State
}

// Watch returns a channel that never emits; the state is fixed.
func (s Static) Watch(ctx context.Context) <-chan State {
	ch := make(chan State)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}
