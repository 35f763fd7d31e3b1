// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package i18n

import (
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("german locale translates known messages", func(t *testing.T) {
		localizer, err := New("de")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		want := "Standortberechtigung verweigert"
		if got := localizer.Get("location permission denied"); got != want {
			t.Errorf("expected translation %q, got %q", want, got)
		}
	})
	t.Run("unknown messages fall through untranslated", func(t *testing.T) {
		localizer, err := New("de")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		msg := "this message has no translation"
		if got := localizer.Get(msg); got != msg {
			t.Errorf("expected message to pass through, got %q", got)
		}
	})
	t.Run("unsupported locale falls back to english", func(t *testing.T) {
		localizer, err := New("tlh")
		if err != nil {
			t.Fatalf("failed to create localizer: %s", err)
		}
		msg := "location permission denied"
		if got := localizer.Get(msg); got != msg {
			t.Errorf("expected english fallback, got %q", got)
		}
	})
}
