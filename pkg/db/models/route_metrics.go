package models

import (
	"time"

	"github.com/google/uuid"
)

// RouteMetrics is the one-to-one progress snapshot for a route. It is
// recomputed from scratch on every location update, never appended.
type RouteMetrics struct {
	ID                      uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID                 uuid.UUID `gorm:"column:route_id;type:uuid;not null;uniqueIndex"`
	CompletedStops          int       `gorm:"column:completed_stops;not null;default:0"`
	TotalStops              int       `gorm:"column:total_stops;not null;default:0"`
	CompletedDistanceKm     float64   `gorm:"column:completed_distance_km;not null;default:0"`
	RemainingDistanceKm     float64   `gorm:"column:remaining_distance_km;not null;default:0"`
	IsDelayed               bool      `gorm:"column:is_delayed;not null;default:false"`
	DelayMinutes            int       `gorm:"column:delay_minutes;not null;default:0"`
	ActualTotalTimeMin      float64   `gorm:"column:actual_total_time_min;not null;default:0"`
	DeviationFromOptimalMin float64   `gorm:"column:deviation_from_optimal_min;not null;default:0"`
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
