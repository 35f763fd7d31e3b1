// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package reporter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/voyago/geotrack/internal/geo"
	httpc "github.com/voyago/geotrack/internal/http"
	"github.com/voyago/geotrack/internal/logger"
)

func testSample() geo.Sample {
	return geo.Sample{
		Latitude:  48.137154,
		Longitude: 11.576124,
		Accuracy:  12.5,
		Altitude:  geo.Float(519),
		Speed:     geo.Float(1.4),
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}
}

func newTestReporter(endpoint string) *Reporter {
	log := logger.NewLogger(slog.LevelError, io.Discard)
	return New(httpc.New(log), endpoint, "test-token", time.Second*2, log)
}

func TestReporter_Submit(t *testing.T) {
	t.Run("successful report is acknowledged", func(t *testing.T) {
		var received map[string]any
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected request method to be POST, got %s", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("expected bearer token to be sent, got %q", got)
			}
			if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
				t.Errorf("failed to decode report body: %s", err)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"report-1"}`))
		}))
		defer server.Close()

		if err := newTestReporter(server.URL).Submit(t.Context(), testSample()); err != nil {
			t.Fatalf("failed to submit report: %s", err)
		}

		if received["latitude"] != 48.137154 {
			t.Errorf("expected latitude 48.137154 in payload, got %v", received["latitude"])
		}
		if received["altitude"] != 519.0 {
			t.Errorf("expected altitude 519 in payload, got %v", received["altitude"])
		}
		if _, ok := received["heading"]; ok {
			t.Error("expected absent heading to be omitted from the payload")
		}
		if _, ok := received["timestamp"]; !ok {
			t.Error("expected timestamp to be present in the payload")
		}
	})
	t.Run("error response marks the report as failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"error":"device unknown"}`))
		}))
		defer server.Close()

		err := newTestReporter(server.URL).Submit(t.Context(), testSample())
		if err == nil {
			t.Fatal("expected report to fail")
		}
		if !errors.Is(err, ErrReportFailed) {
			t.Errorf("expected error to be %s, got %s", ErrReportFailed, err)
		}
	})
	t.Run("server error status marks the report as failed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{}`))
		}))
		defer server.Close()

		err := newTestReporter(server.URL).Submit(t.Context(), testSample())
		if !errors.Is(err, ErrReportFailed) {
			t.Errorf("expected error to be %s, got %s", ErrReportFailed, err)
		}
	})
	t.Run("unreachable backend marks the report as failed", func(t *testing.T) {
		err := newTestReporter("http://localhost:1/v1/locations").Submit(t.Context(), testSample())
		if !errors.Is(err, ErrReportFailed) {
			t.Errorf("expected error to be %s, got %s", ErrReportFailed, err)
		}
	})
}

func TestReporter_Report(t *testing.T) {
	t.Run("report is asynchronous and flush waits for completion", func(t *testing.T) {
		reports := make(chan struct{}, 1)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reports <- struct{}{}
			_, _ = w.Write([]byte(`{"id":"report-1"}`))
		}))
		defer server.Close()

		rep := newTestReporter(server.URL)
		rep.Report(t.Context(), testSample())
		rep.Flush()

		select {
		case <-reports:
		default:
			t.Error("expected the report to have reached the backend after flush")
		}
	})
	t.Run("report failure does not propagate", func(t *testing.T) {
		rep := newTestReporter("http://localhost:1/v1/locations")
		rep.Report(t.Context(), testSample())
		rep.Flush()
	})
}
