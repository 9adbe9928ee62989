package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/cargoline/tracking-backend/pkg/config"
	"github.com/cargoline/tracking-backend/pkg/db/models"
	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
	"github.com/cargoline/tracking-backend/pkg/geo"
	"github.com/cargoline/tracking-backend/pkg/logger"
	"github.com/cargoline/tracking-backend/pkg/routing"
	"github.com/cargoline/tracking-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type matrixOracle interface {
	Matrix(ctx context.Context, points []types.GeographyPoint) (*routing.MatrixResult, error)
}

// Service plans routes: it orders stops, derives ETAs and fuel estimates,
// and persists the resulting pending route.
type Service interface {
	CreateRoute(ctx context.Context, input CreateRouteInput) (*models.Route, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	oracle matrixOracle
	fuel   config.FuelConfig
	logg   *logger.Logger
}

// StopInput is one unordered location tagged with its stop type.
type StopInput struct {
	StopType   enums.StopType
	ShipmentID *uuid.UUID
	Location   types.GeographyPoint
}

// CreateRouteInput carries everything needed to plan a carrier's route.
type CreateRouteInput struct {
	CarrierID uuid.UUID
	Date      time.Time
	Stops     []StopInput
}

// NewService builds the route planning service with the required dependencies.
func NewService(repo Repository, tx txRunner, oracle matrixOracle, fuel config.FuelConfig, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("optimizer repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if oracle == nil {
		return nil, fmt.Errorf("matrix oracle required")
	}
	return &service{
		repo:   repo,
		tx:     tx,
		oracle: oracle,
		fuel:   fuel,
		logg:   logg,
	}, nil
}

func (s *service) CreateRoute(ctx context.Context, input CreateRouteInput) (*models.Route, error) {
	if input.CarrierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier id required")
	}
	if len(input.Stops) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "route requires at least two stops")
	}
	if input.Date.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "planned start date required")
	}
	for _, stop := range input.Stops {
		if !geo.ValidCoordinates(stop.Location.Lat, stop.Location.Lng) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "stop location out of range")
		}
		if stop.StopType.RequiresShipment() && stop.ShipmentID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and delivery stops require a shipment")
		}
	}

	carrier, err := s.repo.FindCarrier(ctx, input.CarrierID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "carrier not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading carrier")
	}

	shipments, err := s.loadShipments(ctx, input.Stops)
	if err != nil {
		return nil, err
	}

	points := make([]types.GeographyPoint, 0, len(input.Stops))
	candidates := make([]Candidate, 0, len(input.Stops))
	for i, stop := range input.Stops {
		points = append(points, stop.Location)
		candidates = append(candidates, Candidate{
			Index:      i,
			StopType:   stop.StopType,
			ShipmentID: stop.ShipmentID,
		})
	}

	matrix, err := s.oracle.Matrix(ctx, points)
	if err != nil {
		return nil, err
	}

	order, err := OrderStops(candidates, matrix.Durations)
	if err != nil {
		return nil, err
	}

	route, stops := s.buildRoute(carrier, input, order, matrix)

	histories := buildHistories(stops)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if err := repo.CreateRoute(ctx, route); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting route")
		}
		for i := range stops {
			stops[i].RouteID = route.ID
		}
		if err := repo.CreateStops(ctx, stops); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting route stops")
		}
		for i := range histories {
			histories[i].RouteID = route.ID
		}
		if err := repo.CreateHistories(ctx, histories); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting shipment history")
		}

		metrics := &models.RouteMetrics{
			RouteID:             route.ID,
			TotalStops:          len(stops),
			RemainingDistanceKm: route.TotalDistanceKm,
		}
		if err := repo.CreateMetrics(ctx, metrics); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting route metrics")
		}
		route.Metrics = metrics

		for _, shipment := range shipments {
			if shipment.Status != enums.ShipmentStatusBought {
				continue
			}
			if err := repo.UpdateShipmentStatus(ctx, shipment.ID, enums.ShipmentStatusRouteSet); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "advancing shipment to route_set")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	route.Stops = stops
	if s.logg != nil {
		logCtx := s.logg.WithRouteID(s.logg.WithCarrierID(ctx, input.CarrierID.String()), route.ID.String())
		s.logg.Info(logCtx, "route planned")
	}
	return route, nil
}

func (s *service) loadShipments(ctx context.Context, stops []StopInput) ([]models.Shipment, error) {
	seen := map[uuid.UUID]struct{}{}
	ids := []uuid.UUID{}
	for _, stop := range stops {
		if stop.ShipmentID == nil {
			continue
		}
		if _, ok := seen[*stop.ShipmentID]; ok {
			continue
		}
		seen[*stop.ShipmentID] = struct{}{}
		ids = append(ids, *stop.ShipmentID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	shipments, err := s.repo.FindShipments(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading shipments")
	}
	if len(shipments) != len(ids) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more shipments not found")
	}
	return shipments, nil
}

// buildRoute materializes the ordered stop rows with matrix-derived ETAs
// anchored at the planned start date, plus the route totals and fuel estimate.
func (s *service) buildRoute(carrier *models.Carrier, input CreateRouteInput, order []int, matrix *routing.MatrixResult) (*models.Route, []models.RouteStop) {
	var (
		cumulativeSeconds float64
		totalMeters       float64
	)

	stops := make([]models.RouteStop, 0, len(order))
	for seq, idx := range order {
		if seq > 0 {
			prev := order[seq-1]
			cumulativeSeconds += matrix.Durations[prev][idx]
			totalMeters += matrix.Distances[prev][idx]
		}
		eta := input.Date.Add(time.Duration(cumulativeSeconds * float64(time.Second)))
		planned := eta
		stop := input.Stops[idx]
		stops = append(stops, models.RouteStop{
			ShipmentID:       stop.ShipmentID,
			StopType:         stop.StopType,
			SequenceIndex:    seq,
			Location:         stop.Location,
			PlannedArrival:   &planned,
			EstimatedArrival: &eta,
		})
	}

	totalKm := totalMeters / 1000

	consumption := carrier.FuelConsumptionL100
	if consumption <= 0 {
		consumption = s.fuel.DefaultConsumptionL100
	}
	liters := totalKm * consumption / 100

	price, err := decimal.NewFromString(s.fuel.PricePerLiter)
	if err != nil {
		price = decimal.Zero
	}
	cost := decimal.NewFromFloat(liters).Mul(price).Round(2)

	route := &models.Route{
		CarrierID:        input.CarrierID,
		Status:           enums.RouteStatusPending,
		TotalDistanceKm:  totalKm,
		TotalFuelCost:    cost,
		FuelConsumptionL: liters,
		EstimatedTimeMin: cumulativeSeconds / 60,
		Date:             input.Date,
		DistanceMatrix: &types.DistanceMatrix{
			Durations: matrix.Durations,
			Distances: matrix.Distances,
		},
	}
	return route, stops
}

// buildHistories creates the pending assignment rows the tracker later marks
// successful when the matching stop completes.
func buildHistories(stops []models.RouteStop) []models.ShipmentRouteHistory {
	histories := make([]models.ShipmentRouteHistory, 0)
	for _, stop := range stops {
		if stop.ShipmentID == nil || !stop.StopType.RequiresShipment() {
			continue
		}
		histories = append(histories, models.ShipmentRouteHistory{
			ShipmentID: *stop.ShipmentID,
			Operation:  stop.StopType,
		})
	}
	return histories
}
