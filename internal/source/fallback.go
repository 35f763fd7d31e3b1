// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package source

import (
	"context"

	"github.com/voyago/geotrack/internal/geo"
)

// Fallback combines multiple sources into one. One-shot requests walk the sources
// in their configured order until one delivers; the continuous watch delegates to
// the first source that reports itself available. The order therefore expresses
// source priority.
type Fallback struct {
	sources []Source
}

// NewFallback returns a Fallback over the given sources in priority order.
func NewFallback(sources ...Source) *Fallback {
	return &Fallback{sources: sources}
}

// Name returns the source name.
func (f *Fallback) Name() string {
	return "fallback"
}

// Available reports whether at least one underlying source is available.
func (f *Fallback) Available() bool {
	for _, src := range f.sources {
		if src.Available() {
			return true
		}
	}
	return false
}

// Current walks the sources in priority order and returns the first successful
// fix. When every source fails, the last error is returned; without any available
// source the request fails with ErrUnsupported.
func (f *Fallback) Current(ctx context.Context, opts Options) (geo.Sample, error) {
	var lastErr error
	for _, src := range f.sources {
		if !src.Available() {
			continue
		}
		sample, err := src.Current(ctx, opts)
		if err == nil {
			return sample, nil
		}
		lastErr = err
		if CodeOf(err) == CodePermissionDenied {
			break
		}
	}
	if lastErr == nil {
		lastErr = NewError(CodePositionUnavailable, ErrUnsupported)
	}
	return geo.Sample{}, lastErr
}

// Watch delegates to the first available source. Without any available source the
// returned channel delivers a single ErrUnsupported update and closes.
func (f *Fallback) Watch(ctx context.Context, opts Options) <-chan Update {
	for _, src := range f.sources {
		if src.Available() {
			return src.Watch(ctx, opts)
		}
	}

	updates := make(chan Update, 1)
	updates <- Update{Err: NewError(CodePositionUnavailable, ErrUnsupported)}
	close(updates)
	return updates
}
