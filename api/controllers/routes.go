package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/api/responses"
	"github.com/cargoline/tracking-backend/api/validators"
	"github.com/cargoline/tracking-backend/internal/optimizer"
	internalroutes "github.com/cargoline/tracking-backend/internal/routes"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/logger"
	"github.com/cargoline/tracking-backend/pkg/pagination"
	"github.com/cargoline/tracking-backend/pkg/types"
)

type createRouteStop struct {
	StopType   string  `json:"stopType" validate:"required,oneof=start pickup delivery end"`
	ShipmentID *string `json:"shipmentId" validate:"omitempty,uuid"`
	Lat        float64 `json:"lat" validate:"latitude"`
	Lng        float64 `json:"lng" validate:"longitude"`
}

type createRouteRequest struct {
	CarrierID string            `json:"carrierId" validate:"required,uuid"`
	Date      time.Time         `json:"date" validate:"required"`
	Stops     []createRouteStop `json:"stops" validate:"required,min=2,dive"`
}

// CreateRoute plans and persists an optimized route for a carrier's day.
func CreateRoute(svc optimizer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRouteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input, err := buildCreateRouteInput(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.CreateRoute(r.Context(), *input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, route)
	}
}

func buildCreateRouteInput(req createRouteRequest) (*optimizer.CreateRouteInput, error) {
	carrierID, err := uuid.Parse(req.CarrierID)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrierId must be a uuid")
	}

	stops := make([]optimizer.StopInput, 0, len(req.Stops))
	for _, stop := range req.Stops {
		stopType, err := enums.ParseStopType(strings.ToLower(stop.StopType))
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stop type")
		}

		var shipmentID *uuid.UUID
		if stop.ShipmentID != nil {
			parsed, err := uuid.Parse(*stop.ShipmentID)
			if err != nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipmentId must be a uuid")
			}
			shipmentID = &parsed
		}

		stops = append(stops, optimizer.StopInput{
			StopType:   stopType,
			ShipmentID: shipmentID,
			Location:   types.GeographyPoint{Lat: stop.Lat, Lng: stop.Lng},
		})
	}

	return &optimizer.CreateRouteInput{
		CarrierID: carrierID,
		Date:      req.Date,
		Stops:     stops,
	}, nil
}

// RouteDetail returns a route with its stops and metrics.
func RouteDetail(svc internalroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Get(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, route)
	}
}

// RouteActivate starts live tracking for a pending route.
func RouteActivate(svc internalroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Activate(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, route)
	}
}

// RouteCancel abandons a pending or active route.
func RouteCancel(svc internalroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		route, err := svc.Cancel(r.Context(), routeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, route)
	}
}

// RouteDelays pages through a route's delay history, newest first.
func RouteDelays(svc internalroutes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routeID, err := parseRouteID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListDelays(r.Context(), routeID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func parseRouteID(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "routeId")
	routeID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "routeId must be a uuid")
	}
	return routeID, nil
}
