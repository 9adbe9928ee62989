package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoline/tracking-backend/internal/optimizer"
	internalroutes "github.com/cargoline/tracking-backend/internal/routes"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/pagination"
)

type stubOptimizer struct {
	input *optimizer.CreateRouteInput
	route *models.Route
	err   error
}

func (s *stubOptimizer) CreateRoute(ctx context.Context, input optimizer.CreateRouteInput) (*models.Route, error) {
	s.input = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.route, nil
}

type stubRouteLifecycle struct {
	route *models.Route
	page  *internalroutes.DelayPage
	err   error

	lastParams pagination.Params
}

func (s *stubRouteLifecycle) Get(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	return s.route, s.err
}

func (s *stubRouteLifecycle) Activate(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	return s.route, s.err
}

func (s *stubRouteLifecycle) Cancel(ctx context.Context, routeID uuid.UUID) (*models.Route, error) {
	return s.route, s.err
}

func (s *stubRouteLifecycle) ListDelays(ctx context.Context, routeID uuid.UUID, params pagination.Params) (*internalroutes.DelayPage, error) {
	s.lastParams = params
	return s.page, s.err
}

func routeParamRequest(method, path, routeID string, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("routeId", routeID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCreateRoute(t *testing.T) {
	carrierID := uuid.New()
	shipmentID := uuid.New()
	svc := &stubOptimizer{route: &models.Route{ID: uuid.New(), CarrierID: carrierID}}

	body, err := json.Marshal(map[string]any{
		"carrierId": carrierID.String(),
		"date":      time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		"stops": []map[string]any{
			{"stopType": "start", "lat": 40.0, "lng": -3.7},
			{"stopType": "pickup", "shipmentId": shipmentID.String(), "lat": 40.1, "lng": -3.6},
			{"stopType": "delivery", "shipmentId": shipmentID.String(), "lat": 40.2, "lng": -3.5},
			{"stopType": "end", "lat": 40.0, "lng": -3.7},
		},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	CreateRoute(svc, nil)(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, svc.input)
	assert.Equal(t, carrierID, svc.input.CarrierID)
	require.Len(t, svc.input.Stops, 4)
	assert.Equal(t, enums.StopTypePickup, svc.input.Stops[1].StopType)
	require.NotNil(t, svc.input.Stops[1].ShipmentID)
	assert.Equal(t, shipmentID, *svc.input.Stops[1].ShipmentID)
}

func TestCreateRouteRejectsInvalidBody(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing carrier", `{"date":"2026-03-10T08:00:00Z","stops":[{"stopType":"start","lat":1,"lng":2},{"stopType":"end","lat":1,"lng":2}]}`},
		{"bad stop type", `{"carrierId":"` + uuid.NewString() + `","date":"2026-03-10T08:00:00Z","stops":[{"stopType":"warehouse","lat":1,"lng":2},{"stopType":"end","lat":1,"lng":2}]}`},
		{"single stop", `{"carrierId":"` + uuid.NewString() + `","date":"2026-03-10T08:00:00Z","stops":[{"stopType":"start","lat":1,"lng":2}]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOptimizer{}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			CreateRoute(svc, nil)(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, svc.input)
		})
	}
}

func TestCreateRouteUnsatisfiableOrdering(t *testing.T) {
	svc := &stubOptimizer{err: pkgerrors.New(pkgerrors.CodeStateConflict, "unsatisfiable stop ordering")}

	body := `{"carrierId":"` + uuid.NewString() + `","date":"2026-03-10T08:00:00Z","stops":[{"stopType":"start","lat":1,"lng":2},{"stopType":"end","lat":1,"lng":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/routes", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CreateRoute(svc, nil)(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var payload struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, string(pkgerrors.CodeStateConflict), payload.Error.Code)
	assert.Equal(t, "unsatisfiable stop ordering", payload.Error.Message)
}

func TestRouteActivate(t *testing.T) {
	route := &models.Route{ID: uuid.New(), Status: enums.RouteStatusActive}
	svc := &stubRouteLifecycle{route: route}

	req := routeParamRequest(http.MethodPost, "/api/v1/routes/x/activate", route.ID.String(), "")
	rec := httptest.NewRecorder()
	RouteActivate(svc, nil)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouteActivateConflict(t *testing.T) {
	svc := &stubRouteLifecycle{err: pkgerrors.New(pkgerrors.CodeConflict, "carrier already has an active route")}

	req := routeParamRequest(http.MethodPost, "/api/v1/routes/x/activate", uuid.NewString(), "")
	rec := httptest.NewRecorder()
	RouteActivate(svc, nil)(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouteDetailInvalidID(t *testing.T) {
	svc := &stubRouteLifecycle{}

	req := routeParamRequest(http.MethodGet, "/api/v1/routes/x", "not-a-uuid", "")
	rec := httptest.NewRecorder()
	RouteDetail(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouteDelaysPassesPagination(t *testing.T) {
	svc := &stubRouteLifecycle{page: &internalroutes.DelayPage{}}

	req := routeParamRequest(http.MethodGet, "/api/v1/routes/x/delays?limit=5&cursor=abc", uuid.NewString(), "")
	rec := httptest.NewRecorder()
	RouteDelays(svc, nil)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.lastParams.Limit)
	assert.Equal(t, "abc", svc.lastParams.Cursor)
}

func TestRouteDelaysInvalidLimit(t *testing.T) {
	svc := &stubRouteLifecycle{}

	req := routeParamRequest(http.MethodGet, "/api/v1/routes/x/delays?limit=9999", uuid.NewString(), "")
	rec := httptest.NewRecorder()
	RouteDelays(svc, nil)(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
