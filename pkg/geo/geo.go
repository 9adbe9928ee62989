package geo

import "math"

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula.
	EarthRadiusKm = 6371.0

	// ArrivalThresholdMeters is the maximum great-circle distance between a
	// vehicle and a stop that still counts as "arrived".
	ArrivalThresholdMeters = 200.0
)

// Distance returns the great-circle distance in kilometers between two
// coordinates using the haversine formula.
func Distance(lat1, lng1, lat2, lng2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lng1Rad := lng1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lng2Rad := lng2 * math.Pi / 180

	dLat := lat2Rad - lat1Rad
	dLng := lng2Rad - lng1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// DistanceMeters returns the great-circle distance in meters.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return Distance(lat1, lng1, lat2, lng2) * 1000
}

// WithinRadius reports whether the point is within radiusMeters of the center.
func WithinRadius(centerLat, centerLng, pointLat, pointLng, radiusMeters float64) bool {
	return DistanceMeters(centerLat, centerLng, pointLat, pointLng) <= radiusMeters
}

// WithinArrivalThreshold reports whether the vehicle position counts as
// arrived at the stop location.
func WithinArrivalThreshold(vehicleLat, vehicleLng, stopLat, stopLng float64) bool {
	return WithinRadius(stopLat, stopLng, vehicleLat, vehicleLng, ArrivalThresholdMeters)
}

// ValidCoordinates reports whether lat/lng form a usable WGS84 coordinate.
func ValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
