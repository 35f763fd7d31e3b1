// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package geo holds the location sample model and the position-change filter.
package geo

import (
	"time"
)

// Sample represents a single timestamped location reading. The altitude, altitude
// accuracy, heading and speed readings are optional and nil if the source could not
// provide them. A Sample is treated as immutable once produced.
type Sample struct {
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Accuracy         float64   `json:"accuracy"`
	Altitude         *float64  `json:"altitude,omitempty"`
	AltitudeAccuracy *float64  `json:"altitudeAccuracy,omitempty"`
	Heading          *float64  `json:"heading,omitempty"`
	Speed            *float64  `json:"speed,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Valid checks if the sample coordinates are valid according to the EPSG logic.
func (s Sample) Valid() bool {
	return s.Latitude >= -90 && s.Latitude <= 90 && s.Longitude >= -180 && s.Longitude <= 180
}

// Age returns how old the sample is relative to now.
func (s Sample) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// Float returns a pointer to the given float64. Convenience helper for filling the
// optional Sample fields.
func Float(v float64) *float64 {
	return &v
}
