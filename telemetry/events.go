// Package telemetry provides run statistics, event logs and CSV output for the sentry agent.
package telemetry

import "fmt"

// EventType identifies telemetry events.
type EventType uint8

const (
	EventDetected EventType = iota
	EventLost
	EventStateChange
	EventAttack
	EventWaypoint
	EventTargetRemoved
)

func (t EventType) String() string {
	switch t {
	case EventDetected:
		return "detected"
	case EventLost:
		return "lost"
	case EventStateChange:
		return "state_change"
	case EventAttack:
		return "attack"
	case EventWaypoint:
		return "waypoint"
	case EventTargetRemoved:
		return "target_removed"
	default:
		return fmt.Sprintf("event(%d)", uint8(t))
	}
}

// MarshalCSV writes the event type by name.
func (t EventType) MarshalCSV() (string, error) {
	return t.String(), nil
}

// Event represents a single telemetry event.
type Event struct {
	Tick    int32     `csv:"tick"`
	SimTime float64   `csv:"sim_time"`
	Type    EventType `csv:"type"`

	// Optional fields depending on event type
	EntityID   uint32 `csv:"entity"`      // target involved, 0 when none
	From       string `csv:"from"`        // previous state for state changes
	To         string `csv:"to"`          // new state for state changes
	RouteIndex int    `csv:"route_index"` // patrol cursor when the event fired
}

// NewDetectedEvent records the detection flag turning on.
func NewDetectedEvent(tick int32, simTime float64, visible uint32, routeIndex int) Event {
	return Event{Tick: tick, SimTime: simTime, Type: EventDetected, EntityID: visible, RouteIndex: routeIndex}
}

// NewLostEvent records the detection flag turning off.
func NewLostEvent(tick int32, simTime float64, routeIndex int) Event {
	return Event{Tick: tick, SimTime: simTime, Type: EventLost, RouteIndex: routeIndex}
}

// NewStateChangeEvent records a behavior transition.
func NewStateChangeEvent(tick int32, simTime float64, from, to string, target uint32, routeIndex int) Event {
	return Event{
		Tick:       tick,
		SimTime:    simTime,
		Type:       EventStateChange,
		EntityID:   target,
		From:       from,
		To:         to,
		RouteIndex: routeIndex,
	}
}

// NewAttackEvent records an attack against a target.
func NewAttackEvent(tick int32, simTime float64, target uint32, routeIndex int) Event {
	return Event{Tick: tick, SimTime: simTime, Type: EventAttack, EntityID: target, RouteIndex: routeIndex}
}

// NewWaypointEvent records the patrol cursor moving on.
func NewWaypointEvent(tick int32, simTime float64, routeIndex int) Event {
	return Event{Tick: tick, SimTime: simTime, Type: EventWaypoint, RouteIndex: routeIndex}
}

// NewTargetRemovedEvent records a target leaving the world.
func NewTargetRemovedEvent(tick int32, simTime float64, target uint32, routeIndex int) Event {
	return Event{Tick: tick, SimTime: simTime, Type: EventTargetRemoved, EntityID: target, RouteIndex: routeIndex}
}
