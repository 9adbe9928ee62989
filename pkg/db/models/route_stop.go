package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/pkg/enums"
	"github.com/cargoline/tracking-backend/pkg/types"
)

// RouteStop is a single waypoint on a route. SequenceIndex is unique per
// route and defines traversal order; ActualArrival is set exactly once.
// PlannedArrival is written at planning time and never updated afterwards;
// EstimatedArrival starts equal to it and is refreshed on every ping.
type RouteStop struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID          uuid.UUID            `gorm:"column:route_id;type:uuid;not null;uniqueIndex:ux_route_stops_route_sequence"`
	ShipmentID       *uuid.UUID           `gorm:"column:shipment_id;type:uuid"`
	StopType         enums.StopType       `gorm:"column:stop_type;type:stop_type;not null"`
	SequenceIndex    int                  `gorm:"column:sequence_index;not null;uniqueIndex:ux_route_stops_route_sequence"`
	Location         types.GeographyPoint `gorm:"column:location;type:geography(Point,4326);not null"`
	PlannedArrival   *time.Time           `gorm:"column:planned_arrival"`
	EstimatedArrival *time.Time           `gorm:"column:estimated_arrival"`
	ActualArrival    *time.Time           `gorm:"column:actual_arrival"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// Completed reports whether the stop has been reached.
func (s RouteStop) Completed() bool {
	return s.ActualArrival != nil
}
