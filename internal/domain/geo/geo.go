// Package geo verifies that a site visit happened where the site is.
package geo

import (
	"fmt"
	"math"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in decimal degrees
type Point struct {
	Latitude  float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"gte=-180,lte=180"`
}

// Validate checks the coordinate ranges
func (p Point) Validate() error {
	if p.Latitude < -90 || p.Latitude > 90 {
		return fmt.Errorf("latitude %f out of range", p.Latitude)
	}
	if p.Longitude < -180 || p.Longitude > 180 {
		return fmt.Errorf("longitude %f out of range", p.Longitude)
	}
	return nil
}

// Outcome is the verification result of a visit
type Outcome string

const (
	OutcomeVerified         Outcome = "verificada"
	OutcomeMinorDiscrepancy Outcome = "discrepancia_menor"
	OutcomeMajorDiscrepancy Outcome = "discrepancia_mayor"
	OutcomeUnverifiable     Outcome = "no_verificable"
)

// Thresholds are the distance cut-offs, in meters, between outcomes
type Thresholds struct {
	VerifiedMeters float64 `mapstructure:"verified_meters"`
	MinorMeters    float64 `mapstructure:"minor_meters"`
}

// DefaultThresholds returns 50 m / 200 m
func DefaultThresholds() Thresholds {
	return Thresholds{VerifiedMeters: 50, MinorMeters: 200}
}

// Distance returns the great-circle distance in meters between a and b
func Distance(a, b Point) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Classify maps arrival coordinates to an outcome. Missing coordinates on
// either side yield OutcomeUnverifiable and no distance.
func Classify(arrival, reference *Point, th Thresholds) (Outcome, *float64) {
	if arrival == nil || reference == nil {
		return OutcomeUnverifiable, nil
	}
	d := Distance(*arrival, *reference)
	switch {
	case d <= th.VerifiedMeters:
		return OutcomeVerified, &d
	case d <= th.MinorMeters:
		return OutcomeMinorDiscrepancy, &d
	default:
		return OutcomeMajorDiscrepancy, &d
	}
}
