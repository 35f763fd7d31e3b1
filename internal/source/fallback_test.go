// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voyago/geotrack/internal/geo"
)

type stubSource struct {
	name      string
	available bool
	sample    geo.Sample
	err       error
	calls     int
}

func (s *stubSource) Name() string {
	return s.name
}

func (s *stubSource) Available() bool {
	return s.available
}

func (s *stubSource) Current(_ context.Context, _ Options) (geo.Sample, error) {
	s.calls++
	if s.err != nil {
		return geo.Sample{}, s.err
	}
	return s.sample, nil
}

func (s *stubSource) Watch(_ context.Context, _ Options) <-chan Update {
	s.calls++
	updates := make(chan Update, 1)
	if s.err != nil {
		updates <- Update{Err: s.err}
	} else {
		updates <- Update{Sample: s.sample}
	}
	close(updates)
	return updates
}

func TestFallback_Current(t *testing.T) {
	t.Run("first available source wins", func(t *testing.T) {
		unavailable := &stubSource{name: "gpsd"}
		primary := &stubSource{name: "wifi", available: true, sample: geo.Sample{Latitude: 51, Longitude: 7, Accuracy: 20}}
		secondary := &stubSource{name: "file", available: true, sample: geo.Sample{Latitude: 40, Longitude: -74, Accuracy: 5}}
		fallback := NewFallback(unavailable, primary, secondary)

		sample, err := fallback.Current(context.Background(), Options{})
		if err != nil {
			t.Fatalf("failed to get current position: %s", err)
		}
		if sample.Latitude != primary.sample.Latitude {
			t.Errorf("expected sample from primary source, got: %+v", sample)
		}
		if unavailable.calls != 0 {
			t.Error("expected unavailable source to be skipped")
		}
		if secondary.calls != 0 {
			t.Error("expected secondary source to be untouched")
		}
	})
	t.Run("failing source falls through to the next", func(t *testing.T) {
		failing := &stubSource{
			name: "gpsd", available: true,
			err: NewError(CodePositionUnavailable, errors.New("no fix")),
		}
		working := &stubSource{name: "wifi", available: true, sample: geo.Sample{Latitude: 51, Longitude: 7, Accuracy: 20}}
		fallback := NewFallback(failing, working)

		sample, err := fallback.Current(context.Background(), Options{})
		if err != nil {
			t.Fatalf("failed to get current position: %s", err)
		}
		if sample.Latitude != working.sample.Latitude {
			t.Errorf("expected sample from the working source, got: %+v", sample)
		}
	})
	t.Run("permission denial is not retried on other sources", func(t *testing.T) {
		denied := &stubSource{
			name: "gpsd", available: true,
			err: NewError(CodePermissionDenied, errors.New("denied")),
		}
		working := &stubSource{name: "wifi", available: true, sample: geo.Sample{Latitude: 51, Longitude: 7, Accuracy: 20}}
		fallback := NewFallback(denied, working)

		_, err := fallback.Current(context.Background(), Options{})
		if CodeOf(err) != CodePermissionDenied {
			t.Fatalf("expected a permission denied error, got: %s", err)
		}
		if working.calls != 0 {
			t.Error("expected no further source to be tried after a permission denial")
		}
	})
	t.Run("no available source fails with ErrUnsupported", func(t *testing.T) {
		fallback := NewFallback(&stubSource{name: "gpsd"}, &stubSource{name: "wifi"})
		_, err := fallback.Current(context.Background(), Options{})
		if !errors.Is(err, ErrUnsupported) {
			t.Fatalf("expected ErrUnsupported, got: %s", err)
		}
		if fallback.Available() {
			t.Error("expected fallback over unavailable sources to be unavailable")
		}
	})
}

func TestFallback_Watch(t *testing.T) {
	t.Run("delegates to the first available source", func(t *testing.T) {
		primary := &stubSource{name: "gpsd", available: true, sample: geo.Sample{Latitude: 51, Longitude: 7, Accuracy: 10}}
		fallback := NewFallback(&stubSource{name: "file"}, primary)

		updates := fallback.Watch(context.Background(), Options{})
		select {
		case update := <-updates:
			if update.Err != nil {
				t.Fatalf("failed to receive sample update: %s", update.Err)
			}
			if update.Sample.Latitude != primary.sample.Latitude {
				t.Errorf("expected sample from primary source, got: %+v", update.Sample)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for a watch update")
		}
	})
	t.Run("no available source delivers a single error update", func(t *testing.T) {
		fallback := NewFallback(&stubSource{name: "gpsd"})
		updates := fallback.Watch(context.Background(), Options{})
		update, ok := <-updates
		if !ok {
			t.Fatal("expected one update before the channel closes")
		}
		if !errors.Is(update.Err, ErrUnsupported) {
			t.Errorf("expected ErrUnsupported update, got: %+v", update)
		}
		if _, ok = <-updates; ok {
			t.Error("expected the channel to be closed after the error update")
		}
	})
}
