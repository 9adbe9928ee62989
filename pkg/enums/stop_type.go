package enums

import "fmt"

// StopType classifies a waypoint on a route.
type StopType string

const (
	StopTypeStart    StopType = "start"
	StopTypePickup   StopType = "pickup"
	StopTypeDelivery StopType = "delivery"
	StopTypeEnd      StopType = "end"
)

var validStopTypes = []StopType{
	StopTypeStart,
	StopTypePickup,
	StopTypeDelivery,
	StopTypeEnd,
}

// String implements fmt.Stringer.
func (s StopType) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StopType.
func (s StopType) IsValid() bool {
	for _, candidate := range validStopTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// RequiresShipment reports whether stops of this type must reference a shipment.
func (s StopType) RequiresShipment() bool {
	return s == StopTypePickup || s == StopTypeDelivery
}

// ParseStopType converts raw input into a StopType.
func ParseStopType(value string) (StopType, error) {
	for _, candidate := range validStopTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stop type %q", value)
}
