// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package reporter submits accepted location samples to the backend. Reporting is
// fire-and-forget: failures are logged and dropped, never retried or queued.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voyago/geotrack/internal/geo"
	httpc "github.com/voyago/geotrack/internal/http"
	"github.com/voyago/geotrack/internal/logger"
)

// ErrReportFailed is returned when the backend did not acknowledge a location report.
var ErrReportFailed = errors.New("failed to report location")

// Ack is the backend response for a location report. A non-empty Error field marks
// a rejected report.
type Ack struct {
	ID         string    `json:"id,omitempty"`
	ReceivedAt time.Time `json:"receivedAt,omitzero"`
	Error      string    `json:"error,omitempty"`
}

// Reporter posts location samples to a single backend endpoint.
type Reporter struct {
	http     *httpc.Client
	endpoint string
	token    string
	timeout  time.Duration
	logger   *logger.Logger

	wg sync.WaitGroup
}

// New returns a new Reporter for the given endpoint. The token, when non-empty, is
// sent as a bearer token.
func New(http *httpc.Client, endpoint, token string, timeout time.Duration, log *logger.Logger) *Reporter {
	if timeout <= 0 {
		timeout = httpc.DefaultTimeout
	}
	return &Reporter{
		http:     http,
		endpoint: endpoint,
		token:    token,
		timeout:  timeout,
		logger:   log,
	}
}

// Report submits the sample in the background and returns immediately. The outcome
// is logged; a failed report is lost.
func (r *Reporter) Report(ctx context.Context, sample geo.Sample) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Submit(ctx, sample); err != nil {
			r.logger.Error("failed to report location", logger.Err(err),
				slog.Float64("lat", sample.Latitude), slog.Float64("lon", sample.Longitude))
			return
		}
		r.logger.Debug("location reported",
			slog.Float64("lat", sample.Latitude), slog.Float64("lon", sample.Longitude))
	}()
}

// Submit synchronously posts the sample to the backend and returns the outcome.
func (r *Reporter) Submit(ctx context.Context, sample geo.Sample) error {
	body := bytes.NewBuffer(nil)
	if err := json.NewEncoder(body).Encode(sample); err != nil {
		return fmt.Errorf("failed to encode location sample: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	if r.token != "" {
		headers["Authorization"] = "Bearer " + r.token
	}

	ack := new(Ack)
	status, err := r.http.PostWithTimeout(ctx, r.endpoint, ack, body, headers, r.timeout)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrReportFailed, err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: unexpected status code %d", ErrReportFailed, status)
	}
	if ack.Error != "" {
		return fmt.Errorf("%w: %s", ErrReportFailed, ack.Error)
	}

	return nil
}

// Flush blocks until all in-flight reports have completed. Used on shutdown.
func (r *Reporter) Flush() {
	r.wg.Wait()
}
