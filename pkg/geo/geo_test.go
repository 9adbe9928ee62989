package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKnownPair(t *testing.T) {
	// Madrid -> Barcelona is roughly 505 km great-circle.
	got := Distance(40.4168, -3.7038, 41.3874, 2.1686)
	assert.InDelta(t, 505, got, 5)
}

func TestDistanceZeroForSamePoint(t *testing.T) {
	assert.Equal(t, 0.0, Distance(40.0, -3.0, 40.0, -3.0))
}

func TestWithinArrivalThreshold(t *testing.T) {
	lat, lng := 40.4168, -3.7038

	// ~0m away.
	assert.True(t, WithinArrivalThreshold(lat, lng, lat, lng))

	// ~111m north (0.001 deg latitude).
	assert.True(t, WithinArrivalThreshold(lat+0.001, lng, lat, lng))

	// ~555m north (0.005 deg latitude).
	assert.False(t, WithinArrivalThreshold(lat+0.005, lng, lat, lng))
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(0, 0))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.False(t, ValidCoordinates(91, 0))
	assert.False(t, ValidCoordinates(0, -181))
}
