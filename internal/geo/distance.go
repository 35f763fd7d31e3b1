// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

package geo

import (
	"math"
)

// EarthRadius is the mean earth radius in meters used for the great-circle distance.
const EarthRadius = 6371000.0

// Distance calculates the great-circle surface distance in meters between two
// coordinate pairs. We are using the Haversine formula to calculate the distance
// between two points on a sphere (in our case: Earth). The atan2 form is used so
// that antipodal points stay within the formula's domain.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadius * c
}

// ShouldAccept decides whether candidate represents meaningful movement relative to
// the last accepted sample. A nil last sample always accepts, which bootstraps
// tracking with the first fix. Otherwise the candidate is accepted iff the
// great-circle distance to the last sample is at least minDistance meters.
// This is a pure function without side effects or state.
func ShouldAccept(last *Sample, candidate Sample, minDistance float64) bool {
	if last == nil {
		return true
	}
	return Distance(last.Latitude, last.Longitude, candidate.Latitude, candidate.Longitude) >= minDistance
}
