package routes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/pkg/db"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/logger"
	"github.com/cargoline/tracking-backend/pkg/outbox"
	"github.com/cargoline/tracking-backend/pkg/pagination"
)

// uxCarrierActiveRoute is the partial unique index guaranteeing at most one
// active route per carrier.
const uxCarrierActiveRoute = "ux_routes_carrier_active"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// DelayPage is one page of delay records, newest first.
type DelayPage struct {
	Delays     []models.RouteDelay
	NextCursor string
}

// Service manages route lifecycle outside of the live tracking cycle.
type Service interface {
	Get(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
	Activate(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
	Cancel(ctx context.Context, routeID uuid.UUID) (*models.Route, error)
	ListDelays(ctx context.Context, routeID uuid.UUID, params pagination.Params) (*DelayPage, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService builds the route lifecycle service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("routes repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		outbox: publisher,
		logg:   logg,
		now:    time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}
	return s.loadRoute(ctx, s.repo, routeID)
}

// Activate moves a pending route to active and stamps its start time. The
// single-active-route-per-carrier invariant is enforced by the database: a
// unique violation on the partial index maps to a conflict error.
func (s *service) Activate(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}

	var route *models.Route
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loaded, err := s.loadRoute(ctx, repo, routeID)
		if err != nil {
			return err
		}
		if loaded.Status != enums.RouteStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot activate route in status %s", loaded.Status))
		}

		startedAt := s.now().UTC()
		loaded.Status = enums.RouteStatusActive
		loaded.StartedAt = &startedAt

		if err := repo.SaveRoute(ctx, loaded); err != nil {
			if db.IsUniqueViolation(err, uxCarrierActiveRoute) {
				return pkgerrors.New(pkgerrors.CodeConflict, "carrier already has an active route")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "activating route")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteActivated,
			AggregateType: enums.AggregateRoute,
			AggregateID:   loaded.ID,
			Data: map[string]any{
				"routeId":   loaded.ID,
				"carrierId": loaded.CarrierID,
				"startedAt": startedAt,
			},
			OccurredAt: startedAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting activation event")
		}

		route = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithRouteID(ctx, route.ID.String()), "route activated")
	}
	return route, nil
}

// Cancel abandons a pending or active route. Completed and already-cancelled
// routes are immutable.
func (s *service) Cancel(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}

	var route *models.Route
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		loaded, err := s.loadRoute(ctx, repo, routeID)
		if err != nil {
			return err
		}
		if loaded.Status.IsTerminal() {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot cancel route in status %s", loaded.Status))
		}

		cancelledAt := s.now().UTC()
		loaded.Status = enums.RouteStatusCancelled

		if err := repo.SaveRoute(ctx, loaded); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancelling route")
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteCancelled,
			AggregateType: enums.AggregateRoute,
			AggregateID:   loaded.ID,
			Data: map[string]any{
				"routeId":   loaded.ID,
				"carrierId": loaded.CarrierID,
			},
			OccurredAt: cancelledAt,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting cancellation event")
		}

		route = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithRouteID(ctx, route.ID.String()), "route cancelled")
	}
	return route, nil
}

// ListDelays pages through a route's delay history, newest first.
func (s *service) ListDelays(ctx context.Context, routeID uuid.UUID, params pagination.Params) (*DelayPage, error) {
	if routeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route id required")
	}

	if _, err := s.loadRoute(ctx, s.repo, routeID); err != nil {
		return nil, err
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListDelays(ctx, routeID, cursor, limit+1)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing delays")
	}

	page := &DelayPage{Delays: rows}
	if len(rows) > limit {
		page.Delays = rows[:limit]
		last := page.Delays[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			Timestamp: last.RecordedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func (s *service) loadRoute(ctx context.Context, repo Repository, routeID uuid.UUID) (*models.Route, error) {
	route, err := repo.FindRoute(ctx, routeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "route not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading route")
	}
	return route, nil
}
