// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"classified error", NewError(CodePermissionDenied, errors.New("denied")), CodePermissionDenied},
		{"wrapped classified error", fmt.Errorf("request failed: %w",
			NewError(CodeTimeout, errors.New("deadline"))), CodeTimeout},
		{"context deadline", context.DeadlineExceeded, CodeTimeout},
		{"wrapped context deadline", fmt.Errorf("request failed: %w", context.DeadlineExceeded), CodeTimeout},
		{"plain error", errors.New("boom"), CodeUnknown},
		{"nil error", nil, CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("expected code %s, got: %s", tt.want, got)
			}
		})
	}
}

func TestError(t *testing.T) {
	t.Run("message includes code and cause", func(t *testing.T) {
		err := NewError(CodePositionUnavailable, errors.New("no fix"))
		if err.Error() != "position unavailable: no fix" {
			t.Errorf("unexpected error message: %q", err.Error())
		}
	})
	t.Run("message without cause is the code", func(t *testing.T) {
		err := &Error{Code: CodeTimeout}
		if err.Error() != "timeout" {
			t.Errorf("unexpected error message: %q", err.Error())
		}
	})
	t.Run("unwraps to the cause", func(t *testing.T) {
		cause := errors.New("no fix")
		if !errors.Is(NewError(CodePositionUnavailable, cause), cause) {
			t.Error("expected error to unwrap to its cause")
		}
	})
}
