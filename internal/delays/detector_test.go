package delays

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoline/tracking-backend/internal/routeplan"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/routing"
	"github.com/cargoline/tracking-backend/pkg/types"
)

type stubCalculator struct {
	update *routeplan.RouteUpdate
	err    error
}

func (s *stubCalculator) Calculate(ctx context.Context, position types.GeographyPoint, route *models.Route, stops []models.RouteStop) (*routeplan.RouteUpdate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.update, nil
}

func timePtr(t time.Time) *time.Time { return &t }

func TestDetectEmitsDelayOnlyForLaterEtas(t *testing.T) {
	route := &models.Route{ID: uuid.New()}
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	delayed := models.RouteStop{ID: uuid.New(), RouteID: route.ID, StopType: enums.StopTypePickup,
		SequenceIndex: 1, EstimatedArrival: timePtr(base)}
	early := models.RouteStop{ID: uuid.New(), RouteID: route.ID, StopType: enums.StopTypeDelivery,
		SequenceIndex: 2, EstimatedArrival: timePtr(base)}
	stops := []models.RouteStop{delayed, early}

	// 14:00 -> 14:20 is a 20 minute delay; 14:00 -> 13:50 must emit nothing.
	calc := &stubCalculator{update: &routeplan.RouteUpdate{
		StopETAs: map[uuid.UUID]time.Time{
			delayed.ID: base.Add(20 * time.Minute),
			early.ID:   base.Add(-10 * time.Minute),
		},
	}}

	detector, err := NewDetector(calc)
	require.NoError(t, err)

	position := types.GeographyPoint{Lat: 40.41, Lng: -3.69}
	recordedAt := base.Add(5 * time.Minute)

	detection, err := detector.Detect(context.Background(), route, stops, position, recordedAt)
	require.NoError(t, err)

	require.Len(t, detection.Delays, 1)
	delay := detection.Delays[0]
	assert.Equal(t, route.ID, delay.RouteID)
	assert.Equal(t, 20, delay.DelayMinutes)
	assert.Equal(t, recordedAt, delay.RecordedAt)
	assert.Equal(t, position, delay.Location)
	assert.Equal(t, base.UTC().Format(time.RFC3339), delay.Metadata["originalEta"])
	assert.Equal(t, base.Add(20*time.Minute).UTC().Format(time.RFC3339), delay.Metadata["updatedEta"])

	// Both stops carry the recomputed estimate, delayed or not.
	require.Len(t, detection.MergedStops, 2)
	assert.Equal(t, base.Add(20*time.Minute), *detection.MergedStops[0].EstimatedArrival)
	assert.Equal(t, base.Add(-10*time.Minute), *detection.MergedStops[1].EstimatedArrival)

	// Input stops stay untouched.
	assert.Equal(t, base, *stops[0].EstimatedArrival)
}

type sequenceOracle struct {
	durations []float64
	call      int
}

func (s *sequenceOracle) DetailedRoute(ctx context.Context, points []types.GeographyPoint) (*routing.RouteResult, error) {
	min := s.durations[s.call]
	s.call++
	return &routing.RouteResult{
		Geometry:    types.LineString{points[0], points[1]},
		Segments:    []routing.SegmentResult{{DistanceKm: min / 2, DurationMin: min}},
		DistanceKm:  min / 2,
		DurationMin: min,
	}, nil
}

// A vehicle approaching on schedule must not keep emitting delays: the first
// recalculation may move the estimate later, but once persisted, shrinking
// travel times have to pull it back toward the plan instead of compounding on
// the previous cycle's output. Exercised without a start stop, where the
// anchor stop is itself remaining and its estimate gets rewritten every pass.
func TestDetectApproachingVehicleDoesNotCompoundDelays(t *testing.T) {
	planned := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	route := &models.Route{ID: uuid.New(), Date: planned}
	stops := []models.RouteStop{{
		ID: uuid.New(), RouteID: route.ID, StopType: enums.StopTypePickup,
		SequenceIndex:  0,
		Location:       types.GeographyPoint{Lat: 40.42, Lng: -3.69},
		PlannedArrival: timePtr(planned), EstimatedArrival: timePtr(planned),
	}}

	calc, err := routeplan.NewCalculator(&sequenceOracle{durations: []float64{10, 8, 6}}, nil)
	require.NoError(t, err)
	detector, err := NewDetector(calc)
	require.NoError(t, err)

	position := types.GeographyPoint{Lat: 40.41, Lng: -3.695}
	var etas []time.Time
	totalDelays := 0
	for cycle := 0; cycle < 3; cycle++ {
		detection, err := detector.Detect(context.Background(), route, stops, position, planned.Add(time.Duration(cycle)*time.Minute))
		require.NoError(t, err)
		totalDelays += len(detection.Delays)
		etas = append(etas, *detection.MergedStops[0].EstimatedArrival)
		stops = detection.MergedStops
	}

	assert.Equal(t, planned.Add(10*time.Minute), etas[0])
	assert.Equal(t, planned.Add(8*time.Minute), etas[1])
	assert.Equal(t, planned.Add(6*time.Minute), etas[2])
	assert.LessOrEqual(t, totalDelays, 1, "later cycles with shrinking travel time must not emit new delays")
}

func TestDetectEqualEtaEmitsNothing(t *testing.T) {
	route := &models.Route{ID: uuid.New()}
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	stop := models.RouteStop{ID: uuid.New(), RouteID: route.ID, EstimatedArrival: timePtr(base)}

	calc := &stubCalculator{update: &routeplan.RouteUpdate{
		StopETAs: map[uuid.UUID]time.Time{stop.ID: base},
	}}
	detector, err := NewDetector(calc)
	require.NoError(t, err)

	detection, err := detector.Detect(context.Background(), route, []models.RouteStop{stop}, types.GeographyPoint{}, base)
	require.NoError(t, err)
	assert.Empty(t, detection.Delays)
}

func TestDetectStopWithoutStoredEstimate(t *testing.T) {
	route := &models.Route{ID: uuid.New()}
	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	stop := models.RouteStop{ID: uuid.New(), RouteID: route.ID}

	calc := &stubCalculator{update: &routeplan.RouteUpdate{
		StopETAs: map[uuid.UUID]time.Time{stop.ID: base},
	}}
	detector, err := NewDetector(calc)
	require.NoError(t, err)

	detection, err := detector.Detect(context.Background(), route, []models.RouteStop{stop}, types.GeographyPoint{}, base)
	require.NoError(t, err)

	assert.Empty(t, detection.Delays)
	require.NotNil(t, detection.MergedStops[0].EstimatedArrival)
	assert.Equal(t, base, *detection.MergedStops[0].EstimatedArrival)
}

func TestDetectPropagatesCalculatorFailure(t *testing.T) {
	calc := &stubCalculator{err: pkgerrors.New(pkgerrors.CodeDependency, "routing unavailable")}
	detector, err := NewDetector(calc)
	require.NoError(t, err)

	_, err = detector.Detect(context.Background(), &models.Route{ID: uuid.New()}, nil, types.GeographyPoint{}, time.Now())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
