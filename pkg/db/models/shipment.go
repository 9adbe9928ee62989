package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/pkg/enums"
	"github.com/cargoline/tracking-backend/pkg/types"
)

// Shipment is owned by the order-management system; this engine only reads
// it and advances its status through the stop-completion transition table.
type Shipment struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Status           enums.ShipmentStatus `gorm:"column:status;type:shipment_status;not null;default:'pending'"`
	PickupLocation   types.GeographyPoint `gorm:"column:pickup_location;type:geography(Point,4326)"`
	DeliveryLocation types.GeographyPoint `gorm:"column:delivery_location;type:geography(Point,4326)"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
