package webhook

import "strings"

// EventType is a normalized event-type string subscribers filter on,
// decoupled from internal bus routing keys.
type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationConfirmed EventType = "reservation.confirmed"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventRoomAssigned         EventType = "room.assigned"
)

// Bus routing keys the consumer queue is bound to.
const (
	routingKeyReservationCreated   = "event.ReservationCreated"
	routingKeyReservationConfirmed = "event.ReservationConfirmed"
	routingKeyReservationCancelled = "event.ReservationCancelled"
	routingKeyRoomAssigned         = "event.RoomAssigned"
)

// AllEventTypes lists every event type subscribers may filter on.
func AllEventTypes() []EventType {
	return []EventType{
		EventReservationCreated,
		EventReservationConfirmed,
		EventReservationCancelled,
		EventRoomAssigned,
	}
}

// RoutingKeys returns the bindings for the consumer queue.
func RoutingKeys() []string {
	return []string{
		routingKeyReservationCreated,
		routingKeyReservationConfirmed,
		routingKeyReservationCancelled,
		routingKeyRoomAssigned,
	}
}

// EventTypeForRoutingKey maps a bus routing key to its event type. The second
// return is false for routing keys the consumer does not understand; those
// messages are acknowledged and skipped, never treated as errors.
func EventTypeForRoutingKey(key string) (EventType, bool) {
	switch key {
	case routingKeyReservationCreated:
		return EventReservationCreated, true
	case routingKeyReservationConfirmed:
		return EventReservationConfirmed, true
	case routingKeyReservationCancelled:
		return EventReservationCancelled, true
	case routingKeyRoomAssigned:
		return EventRoomAssigned, true
	default:
		return "", false
	}
}

var acceptedEventTypes = func() map[string]struct{} {
	types := AllEventTypes()
	out := make(map[string]struct{}, len(types))
	for _, t := range types {
		out[string(t)] = struct{}{}
	}
	return out
}()

// normalizeEventFilters trims, deduplicates and drops unknown event types.
func normalizeEventFilters(filters []string) []string {
	if len(filters) == 0 {
		return []string{}
	}

	seen := map[string]struct{}{}
	out := make([]string, 0, len(filters))
	for _, filter := range filters {
		next := strings.ToLower(strings.TrimSpace(filter))
		if next == "" {
			continue
		}
		if _, ok := acceptedEventTypes[next]; !ok {
			continue
		}
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
	}
	return out
}

func filtersContain(filters []string, eventType string) bool {
	for _, item := range filters {
		if item == eventType {
			return true
		}
	}
	return false
}
