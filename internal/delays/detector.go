package delays

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/cargoline/tracking-backend/internal/routeplan"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/types"
)

// Calculator is the route-update surface the detector consumes.
type Calculator interface {
	Calculate(ctx context.Context, position types.GeographyPoint, route *models.Route, stops []models.RouteStop) (*routeplan.RouteUpdate, error)
}

// Detection carries the outcome of one delay pass: the underlying route
// update, the stops with their estimates overwritten by it, and the delay
// records to append. Nothing is persisted here.
type Detection struct {
	Update      *routeplan.RouteUpdate
	MergedStops []models.RouteStop
	Delays      []models.RouteDelay
}

// Detector compares recomputed ETAs against stored ones and emits delay
// records for stops whose estimate moved strictly later.
type Detector struct {
	calc Calculator
}

// NewDetector builds a detector around the route update calculator.
func NewDetector(calc Calculator) (*Detector, error) {
	if calc == nil {
		return nil, fmt.Errorf("route update calculator required")
	}
	return &Detector{calc: calc}, nil
}

// Detect recomputes the remaining route from position and, for every stop
// with a strictly later new estimate, emits a RouteDelay with the rounded
// minute difference. Equal or earlier estimates produce nothing: delays are
// one-directional, early arrivals are not tracked.
func (d *Detector) Detect(ctx context.Context, route *models.Route, stops []models.RouteStop, position types.GeographyPoint, recordedAt time.Time) (*Detection, error) {
	update, err := d.calc.Calculate(ctx, position, route, stops)
	if err != nil {
		return nil, err
	}

	merged := make([]models.RouteStop, len(stops))
	copy(merged, stops)

	delays := []models.RouteDelay{}
	for i := range merged {
		newEta, ok := update.StopETAs[merged[i].ID]
		if !ok {
			continue
		}

		if prev := merged[i].EstimatedArrival; prev != nil && newEta.After(*prev) {
			minutes := int(math.Round(newEta.Sub(*prev).Minutes()))
			delays = append(delays, models.RouteDelay{
				RouteID:      route.ID,
				RecordedAt:   recordedAt,
				DelayMinutes: minutes,
				Location:     position,
				Metadata: types.JSONMap{
					"originalEta": prev.UTC().Format(time.RFC3339),
					"updatedEta":  newEta.UTC().Format(time.RFC3339),
				},
			})
		}

		eta := newEta
		merged[i].EstimatedArrival = &eta
	}

	return &Detection{
		Update:      update,
		MergedStops: merged,
		Delays:      delays,
	}, nil
}
