package tracking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/internal/delays"
	"github.com/cargoline/tracking-backend/internal/shipments"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/geo"
	"github.com/cargoline/tracking-backend/pkg/logger"
	"github.com/cargoline/tracking-backend/pkg/metrics"
	"github.com/cargoline/tracking-backend/pkg/outbox"
	"github.com/cargoline/tracking-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type delayDetector interface {
	Detect(ctx context.Context, route *models.Route, stops []models.RouteStop, position types.GeographyPoint, recordedAt time.Time) (*delays.Detection, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// LocationUpdate is one carrier position ping.
type LocationUpdate struct {
	CarrierID uuid.UUID
	Lat       float64
	Lng       float64
	Timestamp time.Time
}

// TrackingResult is the full updated state after one ping cycle. Stale is
// true when the ping was older than the last processed one and nothing
// changed.
type TrackingResult struct {
	Route            *models.Route
	UpdatedStops     []models.RouteStop
	Delays           []models.RouteDelay
	UpdatedShipments []models.Shipment
	Metrics          *models.RouteMetrics
	Stale            bool
}

// Service is the stop-completion state machine driving the ping cycle.
type Service interface {
	ProcessLocationUpdate(ctx context.Context, input LocationUpdate) (*TrackingResult, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	detector delayDetector
	locker   CarrierLocker
	outbox   outboxPublisher
	metrics  *metrics.TrackingMetrics
	logg     *logger.Logger
}

// NewService builds the tracker with the required dependencies.
func NewService(repo Repository, tx txRunner, detector delayDetector, locker CarrierLocker, publisher outboxPublisher, m *metrics.TrackingMetrics, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tracking repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if detector == nil {
		return nil, fmt.Errorf("delay detector required")
	}
	if locker == nil {
		return nil, fmt.Errorf("carrier locker required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		detector: detector,
		locker:   locker,
		outbox:   publisher,
		metrics:  m,
		logg:     logg,
	}, nil
}

// ProcessLocationUpdate runs one ping cycle under per-carrier mutual
// exclusion and inside a single transaction: load the active route, evaluate
// the first uncompleted stop, refresh ETAs and delays, recompute metrics,
// and persist everything or nothing.
func (s *service) ProcessLocationUpdate(ctx context.Context, input LocationUpdate) (*TrackingResult, error) {
	started := time.Now()

	if input.CarrierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier id required")
	}
	if !geo.ValidCoordinates(input.Lat, input.Lng) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	if input.Timestamp.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "location timestamp required")
	}

	release, ok, err := s.locker.Acquire(ctx, input.CarrierID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "acquiring carrier lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "carrier location update already in progress")
	}
	defer release()

	var result *TrackingResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cycleResult, cycleErr := s.runCycle(ctx, tx, input)
		if cycleErr != nil {
			return cycleErr
		}
		result = cycleResult
		return nil
	})
	if err != nil {
		s.metrics.IncPing("failed")
		s.metrics.ObserveCycle("failed", time.Since(started))
		return nil, err
	}

	outcome := "processed"
	if result.Stale {
		outcome = "stale"
	}
	s.metrics.IncPing(outcome)
	s.metrics.ObserveCycle(outcome, time.Since(started))
	return result, nil
}

func (s *service) runCycle(ctx context.Context, tx *gorm.DB, input LocationUpdate) (*TrackingResult, error) {
	repo := s.repo.WithTx(tx)

	route, err := repo.FindActiveRouteByCarrier(ctx, input.CarrierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no active route for carrier")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading active route")
	}

	// Network-reordered pings: an older timestamp is a silent no-op, never an
	// error.
	if route.LastLocationUpdate != nil && !input.Timestamp.After(*route.LastLocationUpdate) {
		return &TrackingResult{
			Route:   route,
			Metrics: route.Metrics,
			Stale:   true,
		}, nil
	}

	position := types.GeographyPoint{Lat: input.Lat, Lng: input.Lng}
	stops := route.Stops

	_, updatedShipments, err := s.evaluateFirstUncompleted(ctx, repo, tx, route, stops, input)
	if err != nil {
		return nil, err
	}

	detection, err := s.detector.Detect(ctx, route, stops, position, input.Timestamp)
	if err != nil {
		return nil, err
	}

	if detection.Update.HasRemaining() {
		route.FullPath = detection.Update.FullPath
		route.Segments = detection.Update.Segments
	}
	route.LastLocation = &position
	route.LastLocationUpdate = &input.Timestamp

	if err := repo.SaveStops(ctx, detection.MergedStops); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting stops")
	}
	if err := repo.CreateDelays(ctx, detection.Delays); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting delays")
	}
	if len(detection.Delays) > 0 {
		s.metrics.IncDelay(route.Status.String())
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteDelayed,
			AggregateType: enums.AggregateRoute,
			AggregateID:   route.ID,
			Data: map[string]any{
				"routeId":      route.ID,
				"carrierId":    route.CarrierID,
				"delayMinutes": detection.Delays[0].DelayMinutes,
				"delayCount":   len(detection.Delays),
			},
			OccurredAt: input.Timestamp,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting delay event")
		}
	}

	metricsRow := s.recomputeMetrics(route, detection.MergedStops, detection.Update.RemainingDistanceKm, detection.Delays)
	if err := repo.SaveMetrics(ctx, metricsRow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting metrics")
	}
	route.Metrics = metricsRow

	if err := repo.SaveRoute(ctx, route); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting route")
	}

	if route.Status == enums.RouteStatusCompleted {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRouteCompleted,
			AggregateType: enums.AggregateRoute,
			AggregateID:   route.ID,
			Data: map[string]any{
				"routeId":   route.ID,
				"carrierId": route.CarrierID,
			},
			OccurredAt: input.Timestamp,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting completion event")
		}
	}

	route.Stops = detection.MergedStops

	if s.logg != nil {
		logCtx := s.logg.WithRouteID(s.logg.WithCarrierID(ctx, input.CarrierID.String()), route.ID.String())
		s.logg.Info(logCtx, "location update processed")
	}

	return &TrackingResult{
		Route:            route,
		UpdatedStops:     detection.MergedStops,
		Delays:           detection.Delays,
		UpdatedShipments: updatedShipments,
		Metrics:          metricsRow,
	}, nil
}

// evaluateFirstUncompleted applies sequential gating: only the uncompleted
// stop with the lowest SequenceIndex is ever considered, no matter how close
// the vehicle is to a later one or how the slice happens to be ordered.
// Returns the stop completed this cycle, if any.
func (s *service) evaluateFirstUncompleted(ctx context.Context, repo Repository, tx *gorm.DB, route *models.Route, stops []models.RouteStop, input LocationUpdate) (*models.RouteStop, []models.Shipment, error) {
	var first *models.RouteStop
	uncompleted := 0
	for i := range stops {
		if stops[i].Completed() {
			continue
		}
		uncompleted++
		if first == nil || stops[i].SequenceIndex < first.SequenceIndex {
			first = &stops[i]
		}
	}

	if first == nil {
		// Nothing left: the route reaches completion naturally.
		s.completeRoute(route, input.Timestamp)
		return nil, nil, nil
	}

	completed := false
	switch first.StopType {
	case enums.StopTypeStart:
		// The vehicle is assumed to be at its origin when tracking begins.
		completed = true

	case enums.StopTypePickup, enums.StopTypeDelivery:
		completed = geo.WithinArrivalThreshold(input.Lat, input.Lng, first.Location.Lat, first.Location.Lng)

	case enums.StopTypeEnd:
		// END is gated on global completion, not merely sequence position.
		completed = uncompleted == 1
	}

	if !completed {
		return nil, nil, nil
	}

	ts := input.Timestamp
	first.ActualArrival = &ts
	s.metrics.IncStopCompleted(first.StopType.String())

	var updatedShipments []models.Shipment
	if first.StopType.RequiresShipment() && first.ShipmentID != nil {
		shipment, err := s.applyShipmentTransition(ctx, repo, tx, route, first, ts)
		if err != nil {
			return nil, nil, err
		}
		if shipment != nil {
			updatedShipments = append(updatedShipments, *shipment)
		}
	}

	if first.StopType == enums.StopTypeEnd {
		s.completeRoute(route, ts)
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStopCompleted,
		AggregateType: enums.AggregateRouteStop,
		AggregateID:   first.ID,
		Data: map[string]any{
			"routeId":  route.ID,
			"stopId":   first.ID,
			"stopType": first.StopType,
			"sequence": first.SequenceIndex,
		},
		OccurredAt: ts,
	}); err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting stop completion event")
	}

	return first, updatedShipments, nil
}

// applyShipmentTransition advances the shipment per the completion table and
// marks the matching pending history row successful, when one exists.
func (s *service) applyShipmentTransition(ctx context.Context, repo Repository, tx *gorm.DB, route *models.Route, stop *models.RouteStop, completedAt time.Time) (*models.Shipment, error) {
	shipment, err := repo.FindShipment(ctx, *stop.ShipmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading shipment")
	}

	history, err := repo.FindPendingHistory(ctx, route.ID, shipment.ID, stop.StopType)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading shipment history")
	}
	if history != nil {
		if err := repo.CompleteHistory(ctx, history.ID, completedAt); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "completing shipment history")
		}
	}

	next, changed := shipments.NextStatusOnStopCompletion(shipment.Status, stop.StopType)
	if !changed {
		return shipment, nil
	}

	if err := repo.UpdateShipmentStatus(ctx, shipment.ID, next); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing shipment status")
	}
	previous := shipment.Status
	shipment.Status = next

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventShipmentStatusChanged,
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipment.ID,
		Data: map[string]any{
			"shipmentId": shipment.ID,
			"routeId":    route.ID,
			"from":       previous,
			"to":         next,
		},
		OccurredAt: completedAt,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emitting shipment event")
	}

	return shipment, nil
}

func (s *service) completeRoute(route *models.Route, at time.Time) {
	if route.Status == enums.RouteStatusCompleted {
		return
	}
	route.Status = enums.RouteStatusCompleted
	route.CompletedAt = &at
}

// recomputeMetrics rebuilds the metrics row from scratch. DelayMinutes keeps
// the first delay's minutes, not a maximum or sum; changing this requires a
// deliberate product decision.
func (s *service) recomputeMetrics(route *models.Route, stops []models.RouteStop, remainingKm float64, delayRecords []models.RouteDelay) *models.RouteMetrics {
	row := route.Metrics
	if row == nil {
		row = &models.RouteMetrics{RouteID: route.ID}
	}

	completed := 0
	var firstArrival, lastArrival *time.Time
	var deviationMin float64
	for i := range stops {
		stop := stops[i]
		if !stop.Completed() {
			continue
		}
		completed++
		if firstArrival == nil || stop.ActualArrival.Before(*firstArrival) {
			firstArrival = stop.ActualArrival
		}
		if lastArrival == nil || stop.ActualArrival.After(*lastArrival) {
			lastArrival = stop.ActualArrival
		}
		if stop.EstimatedArrival != nil {
			deviationMin += stop.ActualArrival.Sub(*stop.EstimatedArrival).Minutes()
		}
	}

	row.CompletedStops = completed
	row.TotalStops = len(stops)
	row.RemainingDistanceKm = remainingKm
	row.CompletedDistanceKm = math.Max(route.TotalDistanceKm-remainingKm, 0)
	row.IsDelayed = len(delayRecords) > 0
	row.DelayMinutes = 0
	if len(delayRecords) > 0 {
		row.DelayMinutes = delayRecords[0].DelayMinutes
	}
	row.ActualTotalTimeMin = 0
	if firstArrival != nil && lastArrival != nil {
		row.ActualTotalTimeMin = lastArrival.Sub(*firstArrival).Minutes()
	}
	row.DeviationFromOptimalMin = deviationMin

	return row
}
