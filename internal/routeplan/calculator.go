package routeplan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/metrics"
	"github.com/cargoline/tracking-backend/pkg/routing"
	"github.com/cargoline/tracking-backend/pkg/types"
)

// Oracle is the detailed-route surface of the routing provider client.
type Oracle interface {
	DetailedRoute(ctx context.Context, points []types.GeographyPoint) (*routing.RouteResult, error)
}

// RouteUpdate is the recomputed remaining-route snapshot for one position.
// It is a pure value; the caller decides what to persist.
type RouteUpdate struct {
	FullPath            types.LineString
	Segments            types.RouteSegments
	StopETAs            map[uuid.UUID]time.Time
	RemainingDistanceKm float64
	RemainingTimeMin    float64
}

// HasRemaining reports whether the update covers any remaining stops.
func (u *RouteUpdate) HasRemaining() bool {
	return u != nil && len(u.StopETAs) > 0
}

// Calculator turns a vehicle position plus a route's stops into a fresh
// remaining-route calculation.
type Calculator struct {
	oracle  Oracle
	metrics *metrics.TrackingMetrics
}

// NewCalculator builds a calculator around the routing oracle.
func NewCalculator(oracle Oracle, m *metrics.TrackingMetrics) (*Calculator, error) {
	if oracle == nil {
		return nil, fmt.Errorf("routing oracle required")
	}
	return &Calculator{oracle: oracle, metrics: m}, nil
}

// Calculate selects the uncompleted non-start stops in sequence order and
// requests a detailed route over [position, remaining...]. New ETAs are
// anchored to the route's first-stop planned arrival rather than the wall
// clock or the current estimates, so repeated recalculations share a stable
// reference frame. An empty remaining set yields a zero update without an
// oracle call.
func (c *Calculator) Calculate(ctx context.Context, position types.GeographyPoint, route *models.Route, stops []models.RouteStop) (*RouteUpdate, error) {
	if route == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route required")
	}

	remaining := remainingStops(stops)
	if len(remaining) == 0 {
		return &RouteUpdate{StopETAs: map[uuid.UUID]time.Time{}}, nil
	}

	points := make([]types.GeographyPoint, 0, len(remaining)+1)
	points = append(points, position)
	for _, stop := range remaining {
		points = append(points, stop.Location)
	}

	started := time.Now()
	result, err := c.oracle.DetailedRoute(ctx, points)
	c.metrics.ObserveOracleLatency(time.Since(started))
	if err != nil {
		return nil, err
	}
	if len(result.Segments) != len(remaining) {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "oracle segments do not match remaining stops")
	}

	anchor := firstStopAnchor(route, stops)

	etas := make(map[uuid.UUID]time.Time, len(remaining))
	var offsetMin float64
	for i, stop := range remaining {
		offsetMin += result.Segments[i].DurationMin
		etas[stop.ID] = anchor.Add(time.Duration(offsetMin * float64(time.Minute)))
	}

	// Segment records cover consecutive remaining-stop pairs; the leading
	// position-to-first leg only contributes to ETAs and totals.
	segments := make(types.RouteSegments, 0, len(remaining)-1)
	for i := 1; i < len(remaining); i++ {
		seg := result.Segments[i]
		segments = append(segments, types.RouteSegment{
			FromSequence: remaining[i-1].SequenceIndex,
			ToSequence:   remaining[i].SequenceIndex,
			Geometry:     seg.Geometry,
			DistanceKm:   seg.DistanceKm,
			DurationMin:  seg.DurationMin,
		})
	}

	return &RouteUpdate{
		FullPath:            result.Geometry,
		Segments:            segments,
		StopETAs:            etas,
		RemainingDistanceKm: result.DistanceKm,
		RemainingTimeMin:    result.DurationMin,
	}, nil
}

// remainingStops filters out completed and start stops and sorts ascending by
// sequence.
func remainingStops(stops []models.RouteStop) []models.RouteStop {
	remaining := make([]models.RouteStop, 0, len(stops))
	for _, stop := range stops {
		if stop.Completed() || stop.StopType == enums.StopTypeStart {
			continue
		}
		remaining = append(remaining, stop)
	}
	sort.Slice(remaining, func(i, j int) bool {
		return remaining[i].SequenceIndex < remaining[j].SequenceIndex
	})
	return remaining
}

// firstStopAnchor returns the route's first-stop planned arrival, falling
// back to the planned start date when the stop carries none. The anchor must
// come from a field no recalculation ever writes: EstimatedArrival is
// overwritten on every ping, and reading it back here would compound each
// cycle's travel time on top of the previous cycle's output.
func firstStopAnchor(route *models.Route, stops []models.RouteStop) time.Time {
	var first *models.RouteStop
	for i := range stops {
		if first == nil || stops[i].SequenceIndex < first.SequenceIndex {
			first = &stops[i]
		}
	}
	if first != nil && first.PlannedArrival != nil {
		return *first.PlannedArrival
	}
	return route.Date
}
