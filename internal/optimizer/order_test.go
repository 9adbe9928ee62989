package optimizer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
)

func shipmentRef() *uuid.UUID {
	id := uuid.New()
	return &id
}

func TestOrderStopsStartFirstEndLast(t *testing.T) {
	ship := shipmentRef()
	candidates := []Candidate{
		{Index: 0, StopType: enums.StopTypeEnd},
		{Index: 1, StopType: enums.StopTypePickup, ShipmentID: ship},
		{Index: 2, StopType: enums.StopTypeStart},
		{Index: 3, StopType: enums.StopTypeDelivery, ShipmentID: ship},
	}
	durations := [][]float64{
		{0, 10, 10, 10},
		{10, 0, 10, 5},
		{10, 5, 0, 20},
		{10, 5, 20, 0},
	}

	order, err := OrderStops(candidates, durations)
	require.NoError(t, err)

	require.Len(t, order, 4)
	assert.Equal(t, 2, order[0])
	assert.Equal(t, 0, order[len(order)-1])
}

func TestOrderStopsPickupAlwaysPrecedesDelivery(t *testing.T) {
	ship1 := shipmentRef()
	ship2 := shipmentRef()
	candidates := []Candidate{
		{Index: 0, StopType: enums.StopTypeStart},
		{Index: 1, StopType: enums.StopTypePickup, ShipmentID: ship1},
		{Index: 2, StopType: enums.StopTypeDelivery, ShipmentID: ship1},
		{Index: 3, StopType: enums.StopTypePickup, ShipmentID: ship2},
		{Index: 4, StopType: enums.StopTypeDelivery, ShipmentID: ship2},
	}
	// Shipment 1's delivery is nearest to the start, but its pickup is far;
	// shipment 2's stops are cheap to visit first.
	durations := [][]float64{
		{0, 50, 5, 10, 20},
		{50, 0, 8, 30, 40},
		{5, 8, 0, 25, 35},
		{10, 30, 25, 0, 5},
		{20, 40, 35, 5, 0},
	}

	order, err := OrderStops(candidates, durations)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 3, 4, 1, 2}, order)

	pos := make(map[int]int, len(order))
	for seq, idx := range order {
		pos[idx] = seq
	}
	assert.Less(t, pos[1], pos[2], "shipment 1 pickup must precede its delivery")
	assert.Less(t, pos[3], pos[4], "shipment 2 pickup must precede its delivery")
}

func TestOrderStopsTieBreaksByLowestIndex(t *testing.T) {
	ship1 := shipmentRef()
	ship2 := shipmentRef()
	candidates := []Candidate{
		{Index: 0, StopType: enums.StopTypeStart},
		{Index: 1, StopType: enums.StopTypePickup, ShipmentID: ship1},
		{Index: 2, StopType: enums.StopTypePickup, ShipmentID: ship2},
	}
	durations := [][]float64{
		{0, 7, 7},
		{7, 0, 3},
		{7, 3, 0},
	}

	order, err := OrderStops(candidates, durations)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestOrderStopsUnsatisfiableOrdering(t *testing.T) {
	orphan := shipmentRef()
	candidates := []Candidate{
		{Index: 0, StopType: enums.StopTypeStart},
		{Index: 1, StopType: enums.StopTypeDelivery, ShipmentID: orphan},
	}
	durations := [][]float64{
		{0, 5},
		{5, 0},
	}

	_, err := OrderStops(candidates, durations)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestOrderStopsWithoutStartOrEnd(t *testing.T) {
	ship := shipmentRef()
	candidates := []Candidate{
		{Index: 0, StopType: enums.StopTypePickup, ShipmentID: ship},
		{Index: 1, StopType: enums.StopTypeDelivery, ShipmentID: ship},
	}
	durations := [][]float64{
		{0, 4},
		{4, 0},
	}

	order, err := OrderStops(candidates, durations)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, order)
}

func TestOrderStopsValidatesInput(t *testing.T) {
	t.Run("matrix dimension mismatch", func(t *testing.T) {
		_, err := OrderStops([]Candidate{{Index: 0, StopType: enums.StopTypeStart}}, [][]float64{})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	})

	t.Run("duplicate start", func(t *testing.T) {
		candidates := []Candidate{
			{Index: 0, StopType: enums.StopTypeStart},
			{Index: 1, StopType: enums.StopTypeStart},
		}
		durations := [][]float64{{0, 1}, {1, 0}}
		_, err := OrderStops(candidates, durations)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	})

	t.Run("pickup without shipment", func(t *testing.T) {
		candidates := []Candidate{
			{Index: 0, StopType: enums.StopTypeStart},
			{Index: 1, StopType: enums.StopTypePickup},
		}
		durations := [][]float64{{0, 1}, {1, 0}}
		_, err := OrderStops(candidates, durations)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	})
}
