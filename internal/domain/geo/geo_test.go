package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance(t *testing.T) {
	bogota := Point{Latitude: 4.7110, Longitude: -74.0721}
	medellin := Point{Latitude: 6.2442, Longitude: -75.5812}

	assert.InDelta(t, 0, Distance(bogota, bogota), 1e-9)
	// roughly 240 km between the two cities
	assert.InDelta(t, 240000, Distance(bogota, medellin), 5000)
	assert.InDelta(t, Distance(bogota, medellin), Distance(medellin, bogota), 1e-6)

	// 0.01 degrees of latitude at the equator
	d := Distance(Point{Latitude: 0, Longitude: 0}, Point{Latitude: 0.01, Longitude: 0})
	assert.InDelta(t, 1111.0, d, 1111.0*0.05)
}

func TestClassify(t *testing.T) {
	ref := Point{Latitude: 4.7110, Longitude: -74.0721}
	th := DefaultThresholds()

	// ~0.000009 degrees of latitude per meter
	offset := func(meters float64) *Point {
		return &Point{Latitude: ref.Latitude + meters/111195.0, Longitude: ref.Longitude}
	}

	tests := []struct {
		name    string
		arrival *Point
		ref     *Point
		want    Outcome
	}{
		{"same spot", offset(0), &ref, OutcomeVerified},
		{"within 50m", offset(30), &ref, OutcomeVerified},
		{"just over 50m", offset(60), &ref, OutcomeMinorDiscrepancy},
		{"under 200m", offset(190), &ref, OutcomeMinorDiscrepancy},
		{"far away", offset(500), &ref, OutcomeMajorDiscrepancy},
		{"no arrival", nil, &ref, OutcomeUnverifiable},
		{"no reference", offset(0), nil, OutcomeUnverifiable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, dist := Classify(tt.arrival, tt.ref, th)
			assert.Equal(t, tt.want, got)
			if tt.want == OutcomeUnverifiable {
				assert.Nil(t, dist)
			} else {
				require.NotNil(t, dist)
			}
		})
	}
}

func TestClassify_Monotonic(t *testing.T) {
	ref := Point{Latitude: 10, Longitude: 10}
	th := DefaultThresholds()
	rank := map[Outcome]int{OutcomeVerified: 0, OutcomeMinorDiscrepancy: 1, OutcomeMajorDiscrepancy: 2}

	prev := 0
	for m := 0.0; m <= 1000; m += 10 {
		p := Point{Latitude: ref.Latitude + m/111195.0, Longitude: ref.Longitude}
		got, _ := Classify(&p, &ref, th)
		assert.GreaterOrEqual(t, rank[got], prev, "distance %v", m)
		prev = rank[got]
	}
}

func TestPoint_Validate(t *testing.T) {
	assert.NoError(t, Point{Latitude: -90, Longitude: 180}.Validate())
	assert.Error(t, Point{Latitude: 91}.Validate())
	assert.Error(t, Point{Longitude: -181}.Validate())
}
