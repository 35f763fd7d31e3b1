// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package config holds the application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kkyr/fig"
)

const (
	configEnv = "GEOTRACK"

	// AccuracyHigh requests the most precise fixes the sample sources can deliver.
	AccuracyHigh = "high"
	// AccuracyLow allows coarse fixes from cheaper sources.
	AccuracyLow = "low"

	// DefaultReportEndpoint is the location report endpoint used when none is
	// configured. It matches the local development sink.
	DefaultReportEndpoint = "http://localhost:8090/v1/locations"
)

// Config represents the application's configuration structure.
type Config struct {
	Locale   string     `fig:"locale"`
	LogLevel slog.Level `fig:"loglevel" default:"0"`

	Tracker struct {
		// Allowed values: high, low
		Accuracy      string        `fig:"accuracy" default:"high"`
		SampleTimeout time.Duration `fig:"sample_timeout" default:"10s"`
		MaxSampleAge  time.Duration `fig:"max_sample_age" default:"30s"`
		PollInterval  time.Duration `fig:"poll_interval" default:"30s"`
		MinDistance   float64       `fig:"min_distance_meters" default:"10"`
		AutoStart     bool          `fig:"auto_start"`
	} `fig:"tracker"`

	Report struct {
		Endpoint  string        `fig:"endpoint"`
		AuthToken string        `fig:"auth_token"`
		Timeout   time.Duration `fig:"timeout" default:"10s"`
	} `fig:"report"`

	Sources struct {
		DisableGPSD bool   `fig:"disable_gpsd"`
		DisableWifi bool   `fig:"disable_wifi"`
		GPSDHost    string `fig:"gpsd_host" default:"localhost"`
		GPSDPort    string `fig:"gpsd_port" default:"2947"`
		// File enables the simulated file source when set to a coordinates file
		File string `fig:"file"`
	} `fig:"sources"`
}

func NewFromFile(path, file string) (*Config, error) {
	conf := new(Config)
	_, err := os.Stat(filepath.Join(path, file))
	if err != nil {
		return conf, fmt.Errorf("failed to read Config: %w", err)
	}
	if err = fig.Load(conf, fig.Dirs(path), fig.File(file), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func New() (*Config, error) {
	conf := new(Config)
	if err := fig.Load(conf, fig.AllowNoFile(), fig.UseEnv(configEnv)); err != nil {
		return conf, fmt.Errorf("failed to load Config: %w", err)
	}

	return conf, conf.Validate()
}

func (c *Config) Validate() error {
	if c.Tracker.Accuracy != AccuracyHigh && c.Tracker.Accuracy != AccuracyLow {
		return fmt.Errorf("invalid tracker accuracy: %s", c.Tracker.Accuracy)
	}
	if c.Tracker.MinDistance < 0 {
		return fmt.Errorf("invalid minimum distance: %f", c.Tracker.MinDistance)
	}
	if c.Tracker.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval: %s", c.Tracker.PollInterval)
	}
	if c.Tracker.SampleTimeout <= 0 {
		return fmt.Errorf("invalid sample timeout: %s", c.Tracker.SampleTimeout)
	}
	if c.Report.Endpoint == "" {
		c.Report.Endpoint = DefaultReportEndpoint
	}
	if _, err := url.Parse(c.Report.Endpoint); err != nil {
		return fmt.Errorf("invalid report endpoint: %w", err)
	}
	if c.Locale == "" {
		c.Locale = getLocale()
	}

	return nil
}

// HighAccuracy reports whether high accuracy fixes are requested.
func (c *Config) HighAccuracy() bool {
	return c.Tracker.Accuracy == AccuracyHigh
}

func getLocale() string {
	locale := os.Getenv("LC_MESSAGES")
	if idx := strings.Index(locale, "."); idx != -1 {
		lang := locale[:idx]
		return strings.ReplaceAll(lang, "_", "-")
	}
	return locale
}
