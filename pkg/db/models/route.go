package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cargoline/tracking-backend/pkg/enums"
	"github.com/cargoline/tracking-backend/pkg/types"
)

// Route is one carrier's planned traversal of an ordered stop sequence.
// A carrier has at most one route with status 'active' at any time
// (enforced by a partial unique index on carrier_id).
type Route struct {
	ID                 uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CarrierID          uuid.UUID             `gorm:"column:carrier_id;type:uuid;not null"`
	Status             enums.RouteStatus     `gorm:"column:status;type:route_status;not null;default:'pending'"`
	TotalDistanceKm    float64               `gorm:"column:total_distance_km;not null;default:0"`
	TotalFuelCost      decimal.Decimal       `gorm:"column:total_fuel_cost;type:numeric(12,2);not null;default:0"`
	FuelConsumptionL   float64               `gorm:"column:fuel_consumption_l;not null;default:0"`
	EstimatedTimeMin   float64               `gorm:"column:estimated_time_min;not null;default:0"`
	Date               time.Time             `gorm:"column:date;not null"`
	LastLocation       *types.GeographyPoint `gorm:"column:last_location;type:geography(Point,4326)"`
	LastLocationUpdate *time.Time            `gorm:"column:last_location_update"`
	FullPath           types.LineString      `gorm:"column:full_path;type:jsonb;serializer:json"`
	Segments           types.RouteSegments   `gorm:"column:segments;type:jsonb;serializer:json"`
	DistanceMatrix     *types.DistanceMatrix `gorm:"column:distance_matrix;type:jsonb;serializer:json"`
	Stops              []RouteStop           `gorm:"foreignKey:RouteID;constraint:OnDelete:CASCADE"`
	Metrics            *RouteMetrics         `gorm:"foreignKey:RouteID;constraint:OnDelete:CASCADE"`
	StartedAt          *time.Time            `gorm:"column:started_at"`
	CompletedAt        *time.Time            `gorm:"column:completed_at"`
	CreatedAt          time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
