// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package sink implements the development location report receiver. It accepts the
// reporter's wire format, retains the most recent reports in memory and serves
// them back for inspection.
package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/voyago/geotrack/internal/geo"
	"github.com/voyago/geotrack/internal/logger"
	"github.com/voyago/geotrack/internal/reporter"
)

// maxReports bounds the in-memory report history.
const maxReports = 100

// Report is a received location sample together with its receive metadata.
type Report struct {
	ID         string     `json:"id"`
	ReceivedAt time.Time  `json:"receivedAt"`
	Sample     geo.Sample `json:"sample"`
}

// Sink receives and retains location reports.
type Sink struct {
	logger *logger.Logger
	token  string

	mu      sync.Mutex
	nextID  uint64
	reports []Report
}

// New returns a new Sink. A non-empty token makes the report endpoint require
// bearer authentication.
func New(log *logger.Logger, token string) *Sink {
	return &Sink{logger: log, token: token}
}

// Router returns the HTTP routes of the sink.
func (s *Sink) Router() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Route("/v1/locations", func(r chi.Router) {
		r.Post("/", s.handleReport)
		r.Get("/", s.handleList)
		r.Get("/latest", s.handleLatest)
	})
	return router
}

// handleReport accepts a single location report and acknowledges it.
func (s *Sink) handleReport(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.respond(w, http.StatusUnauthorized, reporter.Ack{Error: "unauthorized"})
		return
	}

	var sample geo.Sample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		s.respond(w, http.StatusBadRequest, reporter.Ack{Error: "invalid report payload"})
		return
	}
	if !sample.Valid() {
		s.respond(w, http.StatusUnprocessableEntity, reporter.Ack{Error: "invalid location sample"})
		return
	}

	s.mu.Lock()
	s.nextID++
	report := Report{
		ID:         fmt.Sprintf("%d", s.nextID),
		ReceivedAt: time.Now().UTC(),
		Sample:     sample,
	}
	s.reports = append(s.reports, report)
	if len(s.reports) > maxReports {
		s.reports = s.reports[len(s.reports)-maxReports:]
	}
	s.mu.Unlock()

	s.logger.Info("received location report", slog.String("id", report.ID),
		slog.Float64("lat", sample.Latitude), slog.Float64("lon", sample.Longitude))
	s.respond(w, http.StatusOK, reporter.Ack{ID: report.ID, ReceivedAt: report.ReceivedAt})
}

// handleList serves the retained report history, newest last.
func (s *Sink) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reports := make([]Report, len(s.reports))
	copy(reports, s.reports)
	s.mu.Unlock()
	s.respond(w, http.StatusOK, reports)
}

// handleLatest serves the most recently received report.
func (s *Sink) handleLatest(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		s.respond(w, http.StatusNotFound, reporter.Ack{Error: "no location reports received"})
		return
	}
	s.respond(w, http.StatusOK, s.reports[len(s.reports)-1])
}

func (s *Sink) authorized(r *http.Request) bool {
	if s.token == "" {
		return true
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") == s.token
}

func (s *Sink) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", logger.Err(err))
	}
}
