package routes

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/outbox"
	"github.com/cargoline/tracking-backend/pkg/pagination"
)

type stubRoutesRepo struct {
	findRoute  func(ctx context.Context, id uuid.UUID) (*models.Route, error)
	saveRoute  func(ctx context.Context, route *models.Route) error
	listDelays func(ctx context.Context, routeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.RouteDelay, error)
}

func (s *stubRoutesRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubRoutesRepo) FindRoute(ctx context.Context, id uuid.UUID) (*models.Route, error) {
	if s.findRoute != nil {
		return s.findRoute(ctx, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubRoutesRepo) SaveRoute(ctx context.Context, route *models.Route) error {
	if s.saveRoute != nil {
		return s.saveRoute(ctx, route)
	}
	return nil
}

func (s *stubRoutesRepo) ListDelays(ctx context.Context, routeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.RouteDelay, error) {
	if s.listDelays != nil {
		return s.listDelays(ctx, routeID, cursor, limit)
	}
	return nil, nil
}

type stubTxRunner struct{}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubOutbox struct {
	events []outbox.DomainEvent
}

func (s *stubOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

func pendingRoute() *models.Route {
	return &models.Route{
		ID:        uuid.New(),
		CarrierID: uuid.New(),
		Status:    enums.RouteStatusPending,
		Date:      time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func newRoutesService(t *testing.T, repo Repository, publisher *stubOutbox) Service {
	t.Helper()
	svc, err := NewService(repo, &stubTxRunner{}, publisher, nil)
	require.NoError(t, err)
	return svc
}

func TestActivatePendingRoute(t *testing.T) {
	route := pendingRoute()
	var saved *models.Route
	repo := &stubRoutesRepo{
		findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
			require.Equal(t, route.ID, id)
			return route, nil
		},
		saveRoute: func(ctx context.Context, r *models.Route) error {
			saved = r
			return nil
		},
	}
	publisher := &stubOutbox{}
	svc := newRoutesService(t, repo, publisher)

	activated, err := svc.Activate(context.Background(), route.ID)
	require.NoError(t, err)

	assert.Equal(t, enums.RouteStatusActive, activated.Status)
	require.NotNil(t, activated.StartedAt)
	require.NotNil(t, saved)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, enums.EventRouteActivated, publisher.events[0].EventType)
	assert.Equal(t, route.ID, publisher.events[0].AggregateID)
}

func TestActivateRejectsNonPendingRoute(t *testing.T) {
	for _, status := range []enums.RouteStatus{
		enums.RouteStatusActive,
		enums.RouteStatusCompleted,
		enums.RouteStatusCancelled,
	} {
		t.Run(status.String(), func(t *testing.T) {
			route := pendingRoute()
			route.Status = status
			repo := &stubRoutesRepo{
				findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
					return route, nil
				},
			}
			svc := newRoutesService(t, repo, &stubOutbox{})

			_, err := svc.Activate(context.Background(), route.ID)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
		})
	}
}

func TestActivateCarrierAlreadyActive(t *testing.T) {
	route := pendingRoute()
	repo := &stubRoutesRepo{
		findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
			return route, nil
		},
		saveRoute: func(ctx context.Context, r *models.Route) error {
			return &pgconn.PgError{Code: "23505", ConstraintName: "ux_routes_carrier_active"}
		},
	}
	svc := newRoutesService(t, repo, &stubOutbox{})

	_, err := svc.Activate(context.Background(), route.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestCancelActiveRoute(t *testing.T) {
	route := pendingRoute()
	route.Status = enums.RouteStatusActive
	repo := &stubRoutesRepo{
		findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
			return route, nil
		},
	}
	publisher := &stubOutbox{}
	svc := newRoutesService(t, repo, publisher)

	cancelled, err := svc.Cancel(context.Background(), route.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RouteStatusCancelled, cancelled.Status)
	require.Len(t, publisher.events, 1)
	assert.Equal(t, enums.EventRouteCancelled, publisher.events[0].EventType)
}

func TestCancelTerminalRoute(t *testing.T) {
	for _, status := range []enums.RouteStatus{
		enums.RouteStatusCompleted,
		enums.RouteStatusCancelled,
	} {
		t.Run(status.String(), func(t *testing.T) {
			route := pendingRoute()
			route.Status = status
			repo := &stubRoutesRepo{
				findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
					return route, nil
				},
			}
			svc := newRoutesService(t, repo, &stubOutbox{})

			_, err := svc.Cancel(context.Background(), route.ID)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
		})
	}
}

func TestGetRouteNotFound(t *testing.T) {
	svc := newRoutesService(t, &stubRoutesRepo{}, &stubOutbox{})

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListDelaysPagination(t *testing.T) {
	route := pendingRoute()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	rows := make([]models.RouteDelay, 3)
	for i := range rows {
		rows[i] = models.RouteDelay{
			ID:           uuid.New(),
			RouteID:      route.ID,
			RecordedAt:   base.Add(-time.Duration(i) * time.Minute),
			DelayMinutes: 10 + i,
		}
	}

	var gotLimit int
	var gotCursor *pagination.Cursor
	repo := &stubRoutesRepo{
		findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
			return route, nil
		},
		listDelays: func(ctx context.Context, routeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.RouteDelay, error) {
			gotLimit = limit
			gotCursor = cursor
			return rows, nil
		},
	}
	svc := newRoutesService(t, repo, &stubOutbox{})

	page, err := svc.ListDelays(context.Background(), route.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 3, gotLimit, "repo asked for one extra row to detect the next page")
	assert.Nil(t, gotCursor)
	require.Len(t, page.Delays, 2)
	require.NotEmpty(t, page.NextCursor)

	decoded, err := pagination.ParseCursor(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, rows[1].ID, decoded.ID)
	assert.True(t, rows[1].RecordedAt.Equal(decoded.Timestamp))
}

func TestListDelaysLastPage(t *testing.T) {
	route := pendingRoute()
	repo := &stubRoutesRepo{
		findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
			return route, nil
		},
		listDelays: func(ctx context.Context, routeID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.RouteDelay, error) {
			return []models.RouteDelay{{ID: uuid.New(), RouteID: routeID}}, nil
		},
	}
	svc := newRoutesService(t, repo, &stubOutbox{})

	page, err := svc.ListDelays(context.Background(), route.ID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Delays, 1)
	assert.Empty(t, page.NextCursor)
}

func TestListDelaysInvalidCursor(t *testing.T) {
	route := pendingRoute()
	repo := &stubRoutesRepo{
		findRoute: func(ctx context.Context, id uuid.UUID) (*models.Route, error) {
			return route, nil
		},
	}
	svc := newRoutesService(t, repo, &stubOutbox{})

	_, err := svc.ListDelays(context.Background(), route.ID, pagination.Params{Cursor: "not-base64!!"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
