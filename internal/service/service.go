// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package service wires the configured sample sources, the permission monitor, the
// reporter and the tracker into the geotrack service loop.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vorlif/spreak"

	"github.com/voyago/geotrack/internal/config"
	httpc "github.com/voyago/geotrack/internal/http"
	"github.com/voyago/geotrack/internal/logger"
	"github.com/voyago/geotrack/internal/notify"
	"github.com/voyago/geotrack/internal/permission"
	"github.com/voyago/geotrack/internal/reporter"
	"github.com/voyago/geotrack/internal/source"
	"github.com/voyago/geotrack/internal/source/file"
	"github.com/voyago/geotrack/internal/source/gpsd"
	"github.com/voyago/geotrack/internal/source/wifi"
	"github.com/voyago/geotrack/internal/tracker"
)

// Service is the geotrack daemon: it owns the tracker and logs the events it
// publishes on the notification bus.
type Service struct {
	config    *config.Config
	logger    *logger.Logger
	localizer *spreak.Localizer
	bus       *notify.Bus
	reporter  *reporter.Reporter
	tracker   *tracker.Tracker
}

// New assembles the service from the configuration: the source chain in priority
// order, the platform permission monitor, the reporter and the tracker.
func New(conf *config.Config, log *logger.Logger, localizer *spreak.Localizer) (*Service, error) {
	bus := notify.New()
	httpClient := httpc.New(log)

	sources := createSources(conf, log, httpClient)
	if len(sources) == 0 {
		return nil, fmt.Errorf("no location sample source is enabled")
	}

	rep := reporter.New(httpClient, conf.Report.Endpoint, conf.Report.AuthToken,
		conf.Report.Timeout, log)

	track, err := tracker.New(conf, source.NewFallback(sources...),
		permission.NewDBusMonitor(log), rep, bus, localizer, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracker: %w", err)
	}

	return &Service{
		config:    conf,
		logger:    log,
		localizer: localizer,
		bus:       bus,
		reporter:  rep,
		tracker:   track,
	}, nil
}

// Run starts location tracking and blocks until ctx is cancelled. A failed initial
// start keeps the service alive: a later permission grant can auto-start the
// tracker through the permission monitor.
func (s *Service) Run(ctx context.Context) error {
	events, unsub := s.bus.Subscribe(32)
	go s.processEvents(ctx, events)

	if err := s.tracker.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize tracker: %w", err)
	}
	if !s.tracker.Available() {
		s.logger.Warn(s.localizer.Get("location tracking is not supported on this platform"))
	}
	if err := s.tracker.Start(ctx); err != nil {
		s.logger.Error(s.localizer.Get("failed to acquire position"), logger.Err(err))
	}

	<-ctx.Done()
	unsub()

	s.tracker.Stop()
	s.reporter.Flush()
	return s.tracker.Close()
}

// processEvents logs the tracker notifications until ctx is cancelled.
func (s *Service) processEvents(ctx context.Context, events <-chan notify.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			switch event.Kind {
			case notify.KindPositionUpdate:
				s.logger.Info("position update",
					slog.Float64("lat", event.Sample.Latitude),
					slog.Float64("lon", event.Sample.Longitude),
					slog.Float64("accuracy", event.Sample.Accuracy),
					slog.Time("observedAt", event.ObservedAt))
			case notify.KindWarning:
				s.logger.Warn(event.Message)
			}
		}
	}
}

// createSources builds the enabled sample sources in priority order: the simulated
// file source first when configured, then gpsd, then the wifi-based lookup.
func createSources(conf *config.Config, log *logger.Logger, httpClient *httpc.Client) []source.Source {
	var sources []source.Source

	if conf.Sources.File != "" {
		sources = append(sources, file.New(conf.Sources.File))
	}

	if !conf.Sources.DisableGPSD {
		sources = append(sources, gpsd.New(conf.Sources.GPSDHost, conf.Sources.GPSDPort))
	}

	if !conf.Sources.DisableWifi {
		wifiSource, err := wifi.New(httpClient)
		if err != nil {
			log.Warn("wifi location source is not available", logger.Err(err))
		} else {
			sources = append(sources, wifiSource)
		}
	}

	return sources
}
