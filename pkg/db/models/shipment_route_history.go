package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/pkg/enums"
)

// ShipmentRouteHistory records each pickup/delivery a route performs for a
// shipment. A row is created when the route is planned and flipped to
// successful when the matching stop completes.
type ShipmentRouteHistory struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RouteID      uuid.UUID      `gorm:"column:route_id;type:uuid;not null;index:ix_shipment_route_history_route"`
	ShipmentID   uuid.UUID      `gorm:"column:shipment_id;type:uuid;not null;index:ix_shipment_route_history_shipment"`
	Operation    enums.StopType `gorm:"column:operation;type:stop_type;not null"`
	IsSuccessful bool           `gorm:"column:is_successful;not null;default:false"`
	CompletedAt  *time.Time     `gorm:"column:completed_at"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
}

func (ShipmentRouteHistory) TableName() string { return "shipment_route_history" }
