package optimizer

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
)

// Repository exposes the persistence surface route planning needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCarrier(ctx context.Context, id uuid.UUID) (*models.Carrier, error)
	FindShipments(ctx context.Context, ids []uuid.UUID) ([]models.Shipment, error)
	CreateRoute(ctx context.Context, route *models.Route) error
	CreateStops(ctx context.Context, stops []models.RouteStop) error
	CreateMetrics(ctx context.Context, metrics *models.RouteMetrics) error
	CreateHistories(ctx context.Context, histories []models.ShipmentRouteHistory) error
	UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an optimizer repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindCarrier(ctx context.Context, id uuid.UUID) (*models.Carrier, error) {
	var carrier models.Carrier
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&carrier).Error
	if err != nil {
		return nil, err
	}
	return &carrier, nil
}

func (r *repository) FindShipments(ctx context.Context, ids []uuid.UUID) ([]models.Shipment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var shipments []models.Shipment
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&shipments).Error
	if err != nil {
		return nil, err
	}
	return shipments, nil
}

func (r *repository) CreateRoute(ctx context.Context, route *models.Route) error {
	return r.db.WithContext(ctx).Omit("Stops", "Metrics").Create(route).Error
}

func (r *repository) CreateStops(ctx context.Context, stops []models.RouteStop) error {
	if len(stops) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&stops).Error
}

func (r *repository) CreateMetrics(ctx context.Context, metrics *models.RouteMetrics) error {
	return r.db.WithContext(ctx).Create(metrics).Error
}

func (r *repository) CreateHistories(ctx context.Context, histories []models.ShipmentRouteHistory) error {
	if len(histories) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&histories).Error
}

func (r *repository) UpdateShipmentStatus(ctx context.Context, id uuid.UUID, status enums.ShipmentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ?", id).
		Update("status", status).Error
}
