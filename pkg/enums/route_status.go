package enums

import "fmt"

// RouteStatus tracks the lifecycle of a carrier's planned route.
type RouteStatus string

const (
	RouteStatusPending   RouteStatus = "pending"
	RouteStatusActive    RouteStatus = "active"
	RouteStatusCompleted RouteStatus = "completed"
	RouteStatusCancelled RouteStatus = "cancelled"
)

var validRouteStatuses = []RouteStatus{
	RouteStatusPending,
	RouteStatusActive,
	RouteStatusCompleted,
	RouteStatusCancelled,
}

// String implements fmt.Stringer.
func (r RouteStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RouteStatus.
func (r RouteStatus) IsValid() bool {
	for _, candidate := range validRouteStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (r RouteStatus) IsTerminal() bool {
	return r == RouteStatusCompleted || r == RouteStatusCancelled
}

// ParseRouteStatus converts raw input into a RouteStatus.
func ParseRouteStatus(value string) (RouteStatus, error) {
	for _, candidate := range validRouteStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid route status %q", value)
}
