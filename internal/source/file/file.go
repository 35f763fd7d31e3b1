// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package file implements a simulated location sample source that reads coordinates
// from a text file. It is meant for demos and development: editing the file moves
// the simulated device.
package file

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/voyago/geotrack/internal/geo"
	"github.com/voyago/geotrack/internal/source"
)

// Accuracy is the accuracy value attached to file readings. We consider file data as
// the most accurate data available.
const Accuracy = 5

const defaultPeriod = time.Second * 2

var ErrNoCoordinates = fmt.Errorf("no valid coordinates found in geolocation file")

// Source reads location data from a file and emits a reading whenever the file
// content changes. Lines starting with '#' are ignored, the first line of the form
// "lat,lon" wins.
type Source struct {
	path     string
	period   time.Duration
	locateFn func() (lat, lon float64, err error)
}

// New initializes a Source for the given coordinates file.
func New(path string) *Source {
	src := &Source{
		path:   path,
		period: defaultPeriod,
	}
	src.locateFn = src.readFile
	return src
}

// Name returns the source name.
func (s *Source) Name() string {
	return "file"
}

// Available reports whether the coordinates file exists.
func (s *Source) Available() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Current reads the coordinates file once.
func (s *Source) Current(_ context.Context, _ source.Options) (geo.Sample, error) {
	lat, lon, err := s.locateFn()
	if err != nil {
		return geo.Sample{}, source.NewError(source.CodePositionUnavailable, err)
	}
	return s.sample(lat, lon), nil
}

// Watch re-reads the coordinates file periodically, emitting a reading when the
// data changed or on the first successful read.
func (s *Source) Watch(ctx context.Context, _ source.Options) <-chan source.Update {
	out := make(chan source.Update)
	go func() {
		defer close(out)
		var lastLat, lastLon float64
		haveLast := false
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.period):
				}
			}
			firstRun = false

			lat, lon, err := s.locateFn()
			if err != nil {
				// File missing or malformed — just retry later
				continue
			}

			// Only emit if values changed or it's the first read
			if haveLast && lat == lastLat && lon == lastLon {
				continue
			}
			lastLat, lastLon = lat, lon
			haveLast = true

			select {
			case <-ctx.Done():
				return
			case out <- source.Update{Sample: s.sample(lat, lon)}:
			}
		}
	}()
	return out
}

func (s *Source) sample(lat, lon float64) geo.Sample {
	return geo.Sample{
		Latitude:  lat,
		Longitude: lon,
		Accuracy:  Accuracy,
		Timestamp: time.Now(),
	}
}

// readFile reads location data from the file at the configured path.
func (s *Source) readFile() (lat, lon float64, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read geolocation file %q: %w", s.path, err)
	}
	lines := strings.Split(string(data), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			continue
		}
		coords := strings.Split(line, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err = strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			continue
		}
		lon, err = strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			continue
		}
		return lat, lon, nil
	}
	return 0, 0, ErrNoCoordinates
}
