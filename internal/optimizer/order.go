package optimizer

import (
	"github.com/google/uuid"

	"github.com/cargoline/tracking-backend/pkg/enums"
	pkgerrors "github.com/cargoline/tracking-backend/pkg/errors"
)

// Candidate is one location to place in the visiting order. Index refers to
// the caller's input slice and to the rows/columns of the duration matrix.
type Candidate struct {
	Index      int
	StopType   enums.StopType
	ShipmentID *uuid.UUID
}

// OrderStops produces a total visiting order over the candidates using greedy
// nearest-neighbor selection on travel duration. The order respects:
//
//   - a START candidate, if present, is visited first
//   - an END candidate, if present, is visited last
//   - a shipment's delivery is only eligible once its pickup has been visited
//
// Ties on duration are broken by lowest input index, which keeps the order
// deterministic for equal matrices. The result is a heuristic, not an
// optimum; routes are small and re-optimized continuously as the vehicle
// moves, so heuristic error self-corrects.
//
// If at any step no eligible unvisited candidate remains (a delivery whose
// pickup is missing, or otherwise disconnected precedence), OrderStops fails
// with a state-conflict error instead of returning a truncated order.
func OrderStops(candidates []Candidate, durations [][]float64) ([]int, error) {
	n := len(candidates)
	if n == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one stop is required")
	}
	if len(durations) != n {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration matrix does not match candidate count")
	}
	for _, row := range durations {
		if len(row) != n {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duration matrix does not match candidate count")
		}
	}

	startIdx, endIdx := -1, -1
	pickupByShipment := map[uuid.UUID]int{}
	for i, c := range candidates {
		if c.Index != i {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "candidate indexes must match slice positions")
		}
		switch c.StopType {
		case enums.StopTypeStart:
			if startIdx >= 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "route allows at most one start stop")
			}
			startIdx = i
		case enums.StopTypeEnd:
			if endIdx >= 0 {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "route allows at most one end stop")
			}
			endIdx = i
		case enums.StopTypePickup, enums.StopTypeDelivery:
			if c.ShipmentID == nil {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "pickup and delivery stops require a shipment")
			}
			if c.StopType == enums.StopTypePickup {
				if _, dup := pickupByShipment[*c.ShipmentID]; dup {
					return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment has more than one pickup stop")
				}
				pickupByShipment[*c.ShipmentID] = i
			}
		default:
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown stop type")
		}
	}

	visited := make([]bool, n)
	order := make([]int, 0, n)

	current := -1
	if startIdx >= 0 {
		visited[startIdx] = true
		order = append(order, startIdx)
		current = startIdx
	}

	remaining := n - len(order)
	if endIdx >= 0 {
		remaining--
	}

	for remaining > 0 {
		next := -1
		for i, c := range candidates {
			if visited[i] || i == endIdx {
				continue
			}
			if !eligible(c, pickupByShipment, visited) {
				continue
			}
			if next == -1 {
				next = i
				continue
			}
			if current >= 0 && durations[current][i] < durations[current][next] {
				next = i
			}
		}
		if next == -1 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "unsatisfiable stop ordering")
		}

		visited[next] = true
		order = append(order, next)
		current = next
		remaining--
	}

	if endIdx >= 0 {
		order = append(order, endIdx)
	}

	return order, nil
}

// eligible applies the precedence constraint: a delivery may only be visited
// once its shipment's pickup has been. A delivery whose pickup is absent from
// the candidate set is never eligible.
func eligible(c Candidate, pickupByShipment map[uuid.UUID]int, visited []bool) bool {
	if c.StopType != enums.StopTypeDelivery {
		return true
	}
	pickupIdx, ok := pickupByShipment[*c.ShipmentID]
	if !ok {
		return false
	}
	return visited[pickupIdx]
}
