package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
)

// Repository exposes the persistence surface of the ping cycle.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveRouteByCarrier(ctx context.Context, carrierID uuid.UUID) (*models.Route, error)
	FindShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error)
	FindPendingHistory(ctx context.Context, routeID, shipmentID uuid.UUID, operation enums.StopType) (*models.ShipmentRouteHistory, error)
	SaveRoute(ctx context.Context, route *models.Route) error
	SaveStop(ctx context.Context, stop *models.RouteStop) error
	SaveStops(ctx context.Context, stops []models.RouteStop) error
	SaveMetrics(ctx context.Context, metrics *models.RouteMetrics) error
	CreateDelays(ctx context.Context, delays []models.RouteDelay) error
	UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error
	CompleteHistory(ctx context.Context, id uuid.UUID, completedAt time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a tracking repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveRouteByCarrier(ctx context.Context, carrierID uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := r.db.WithContext(ctx).
		Preload("Stops", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_index ASC")
		}).
		Preload("Metrics").
		Where("carrier_id = ? AND status = ?", carrierID, enums.RouteStatusActive).
		First(&route).Error
	if err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *repository) FindShipment(ctx context.Context, id uuid.UUID) (*models.Shipment, error) {
	var shipment models.Shipment
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&shipment).Error
	if err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) FindPendingHistory(ctx context.Context, routeID, shipmentID uuid.UUID, operation enums.StopType) (*models.ShipmentRouteHistory, error) {
	var history models.ShipmentRouteHistory
	err := r.db.WithContext(ctx).
		Where("route_id = ? AND shipment_id = ? AND operation = ? AND completed_at IS NULL", routeID, shipmentID, operation).
		Order("created_at ASC").
		First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *repository) SaveRoute(ctx context.Context, route *models.Route) error {
	return r.db.WithContext(ctx).Omit("Stops", "Metrics").Save(route).Error
}

func (r *repository) SaveStop(ctx context.Context, stop *models.RouteStop) error {
	return r.db.WithContext(ctx).Save(stop).Error
}

func (r *repository) SaveStops(ctx context.Context, stops []models.RouteStop) error {
	if len(stops) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Save(&stops).Error
}

func (r *repository) SaveMetrics(ctx context.Context, metrics *models.RouteMetrics) error {
	return r.db.WithContext(ctx).Save(metrics).Error
}

func (r *repository) CreateDelays(ctx context.Context, delays []models.RouteDelay) error {
	if len(delays) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&delays).Error
}

func (r *repository) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *repository) CompleteHistory(ctx context.Context, id uuid.UUID, completedAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.ShipmentRouteHistory{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_successful": true,
			"completed_at":  completedAt,
		}).Error
}
