package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/api/responses"
	"github.com/cargoline/tracking-backend/api/validators"
	"github.com/cargoline/tracking-backend/internal/tracking"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/logger"
)

type locationUpdateRequest struct {
	Lat       float64   `json:"lat" validate:"latitude"`
	Lng       float64   `json:"lng" validate:"longitude"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
}

// CarrierLocation ingests one GPS ping over HTTP. The Pub/Sub consumer is the
// primary ingestion path; this endpoint serves manual replays and testing.
func CarrierLocation(svc tracking.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		carrierID, err := uuid.Parse(chi.URLParam(r, "carrierId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "carrierId must be a uuid"))
			return
		}

		var req locationUpdateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ProcessLocationUpdate(r.Context(), tracking.LocationUpdate{
			CarrierID: carrierID,
			Lat:       req.Lat,
			Lng:       req.Lng,
			Timestamp: req.Timestamp,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.Stale {
			responses.WriteSuccessStatus(w, http.StatusAccepted, result)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
