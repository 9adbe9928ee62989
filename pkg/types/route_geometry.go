package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// LineString is an ordered path of points, stored as a JSONB array.
type LineString []GeographyPoint

// RouteSegment is the derived leg between two consecutive stops. Segments are
// regenerated on every route recalculation and are never authoritative.
type RouteSegment struct {
	FromSequence int        `json:"from_sequence"`
	ToSequence   int        `json:"to_sequence"`
	Geometry     LineString `json:"geometry"`
	DistanceKm   float64    `json:"distance_km"`
	DurationMin  float64    `json:"duration_min"`
}

// RouteSegments stores the derived segment list inside a JSONB column.
type RouteSegments []RouteSegment

// DistanceMatrix holds pairwise travel metrics between a route's original
// stops: Durations in seconds, Distances in meters, indexed by input order.
type DistanceMatrix struct {
	Durations [][]float64 `json:"durations"`
	Distances [][]float64 `json:"distances"`
}

// JSONMap stores an arbitrary JSON object inside a JSONB column.
type JSONMap map[string]any

// Value serializes the map for storage.
func (j *JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan hydrates the map from a JSONB column.
func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return fmt.Errorf("jsonmap: unsupported scan type %T", value)
	}
}
