package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoline/tracking-backend/internal/tracking"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
)

type stubTrackingService struct {
	input  *tracking.LocationUpdate
	result *tracking.TrackingResult
	err    error
}

func (s *stubTrackingService) ProcessLocationUpdate(ctx context.Context, input tracking.LocationUpdate) (*tracking.TrackingResult, error) {
	s.input = &input
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func carrierLocationRequest(carrierID, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/carriers/x/location", strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("carrierId", carrierID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestCarrierLocation(t *testing.T) {
	carrierID := uuid.New()
	svc := &stubTrackingService{result: &tracking.TrackingResult{
		Route: &models.Route{ID: uuid.New(), CarrierID: carrierID},
	}}

	body := `{"lat":40.1,"lng":-3.7,"timestamp":"2026-03-10T09:30:00Z"}`
	rec := httptest.NewRecorder()
	CarrierLocation(svc, nil)(rec, carrierLocationRequest(carrierID.String(), body))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.input)
	assert.Equal(t, carrierID, svc.input.CarrierID)
	assert.Equal(t, 40.1, svc.input.Lat)
	assert.Equal(t, -3.7, svc.input.Lng)
}

func TestCarrierLocationStaleReturnsAccepted(t *testing.T) {
	svc := &stubTrackingService{result: &tracking.TrackingResult{
		Route: &models.Route{ID: uuid.New()},
		Stale: true,
	}}

	body := `{"lat":40.1,"lng":-3.7,"timestamp":"2026-03-10T09:30:00Z"}`
	rec := httptest.NewRecorder()
	CarrierLocation(svc, nil)(rec, carrierLocationRequest(uuid.NewString(), body))

	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCarrierLocationInvalidCarrierID(t *testing.T) {
	svc := &stubTrackingService{}

	rec := httptest.NewRecorder()
	CarrierLocation(svc, nil)(rec, carrierLocationRequest("nope", `{"lat":1,"lng":2,"timestamp":"2026-03-10T09:30:00Z"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.input)
}

func TestCarrierLocationNoActiveRoute(t *testing.T) {
	svc := &stubTrackingService{err: pkgerrors.New(pkgerrors.CodeNotFound, "no active route for carrier")}

	body := `{"lat":40.1,"lng":-3.7,"timestamp":"2026-03-10T09:30:00Z"}`
	rec := httptest.NewRecorder()
	CarrierLocation(svc, nil)(rec, carrierLocationRequest(uuid.NewString(), body))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCarrierLocationMissingTimestamp(t *testing.T) {
	svc := &stubTrackingService{}

	rec := httptest.NewRecorder()
	CarrierLocation(svc, nil)(rec, carrierLocationRequest(uuid.NewString(), `{"lat":40.1,"lng":-3.7}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.input)
}
