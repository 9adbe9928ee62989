package routes

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/pagination"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRoute(ctx context.Context, id uuid.UUID) (*models.Route, error)
	SaveRoute(ctx context.Context, route *models.Route) error
	ListDelays(ctx context.Context, routeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.RouteDelay, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	var route models.Route
	err := r.db.WithContext(ctx).
		Preload("Stops", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_index ASC")
		}).
		Preload("Metrics").
		First(&route, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &route, nil
}

func (r *repository) SaveRoute(ctx context.Context, route *models.Route) error {
	return r.db.WithContext(ctx).
		Omit("Stops", "Metrics").
		Save(route).Error
}

func (r *repository) ListDelays(ctx context.Context, routeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.RouteDelay, error) {
	query := r.db.WithContext(ctx).
		Where("route_id = ?", routeID).
		Order("recorded_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(recorded_at, id) < (?, ?)", cursor.Timestamp, cursor.ID)
	}

	var rows []models.RouteDelay
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
