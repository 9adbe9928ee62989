package models

import (
	"time"

	"github.com/google/uuid"
)

// Carrier is the delivery vehicle (and its driver) that traverses routes.
type Carrier struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	VehiclePlate       *string   `gorm:"column:vehicle_plate"`
	FuelConsumptionL100 float64  `gorm:"column:fuel_consumption_l100;not null;default:0"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
