package shipments

import (
	"github.com/cargoline/tracking-backend/pkg/enums"
)

// NextStatusOnStopCompletion returns the shipment status that follows
// completing a stop of the given type, and whether a transition applies.
//
// The engine only drives forward transitions:
//
//	pickup   completed, shipment route_set  -> picked_up
//	delivery completed, shipment picked_up  -> in_transit
//	delivery completed, shipment in_transit -> delivered
//
// The two delivery-triggered transitions reflect the two-phase delivery
// lifecycle. Any other combination leaves the shipment unchanged; cancellation
// belongs to the external order system, never to this engine.
func NextStatusOnStopCompletion(current enums.ShipmentStatus, stopType enums.StopType) (enums.ShipmentStatus, bool) {
	switch stopType {
	case enums.StopTypePickup:
		if current == enums.ShipmentStatusRouteSet {
			return enums.ShipmentStatusPickedUp, true
		}
	case enums.StopTypeDelivery:
		switch current {
		case enums.ShipmentStatusPickedUp:
			return enums.ShipmentStatusInTransit, true
		case enums.ShipmentStatusInTransit:
			return enums.ShipmentStatusDelivered, true
		}
	}
	return current, false
}
