package checkin

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKnownSeparations(t *testing.T) {
	// 0.001 degrees of longitude on the equator is ~111.19 m.
	d := Haversine(0, 0, 0, 0.001)
	assert.InDelta(t, 111.19, d, 1.0)

	// Same point.
	assert.InDelta(t, 0, Haversine(52.52, 13.405, 52.52, 13.405), 0.001)

	// 1 degree of latitude is ~111.19 km anywhere.
	d = Haversine(10, 20, 11, 20)
	assert.InDelta(t, 111195, d, 100)
}

func TestHaversineSymmetry(t *testing.T) {
	a := Haversine(48.8566, 2.3522, 51.5074, -0.1278)
	b := Haversine(51.5074, -0.1278, 48.8566, 2.3522)
	assert.InDelta(t, a, b, 0.0001)
	// Paris to London is roughly 344 km.
	assert.InDelta(t, 344000, a, 2000)
}

func TestGeofenceErrorCarriesDistance(t *testing.T) {
	err := &GeofenceError{DistanceMeters: 150.4, RadiusMeters: 100}
	assert.Contains(t, err.Error(), "150")
	assert.Contains(t, err.Error(), "100")
}
