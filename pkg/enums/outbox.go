package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateRoute     OutboxAggregateType = "route"
	AggregateRouteStop OutboxAggregateType = "route_stop"
	AggregateShipment  OutboxAggregateType = "shipment"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateRoute,
	AggregateRouteStop,
	AggregateShipment,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventRouteActivated        OutboxEventType = "route_activated"
	EventRouteCancelled        OutboxEventType = "route_cancelled"
	EventRouteCompleted        OutboxEventType = "route_completed"
	EventRouteDelayed          OutboxEventType = "route_delayed"
	EventStopCompleted         OutboxEventType = "stop_completed"
	EventShipmentStatusChanged OutboxEventType = "shipment_status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventRouteActivated,
	EventRouteCancelled,
	EventRouteCompleted,
	EventRouteDelayed,
	EventStopCompleted,
	EventShipmentStatusChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
