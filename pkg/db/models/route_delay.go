package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/pkg/types"
)

// RouteDelay is an append-only record created whenever a recomputed ETA
// exceeds the previously stored one. Rows are immutable once written.
type RouteDelay struct {
	ID           uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID      uuid.UUID            `gorm:"column:route_id;type:uuid;not null;index"`
	RecordedAt   time.Time            `gorm:"column:recorded_at;not null"`
	DelayMinutes int                  `gorm:"column:delay_minutes;not null"`
	Location     types.GeographyPoint `gorm:"column:location;type:geography(Point,4326);not null"`
	Metadata     types.JSONMap        `gorm:"column:metadata;type:jsonb"`
	CreatedAt    time.Time            `gorm:"column:created_at;autoCreateTime"`
}
