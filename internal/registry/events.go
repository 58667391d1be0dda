package registry

// EventType discriminates the Event variants in §3 of SPEC_FULL.md.
type EventType string

const (
	EventConnection          EventType = "connection"
	EventServiceRegistered   EventType = "service_registered"
	EventStatusChange        EventType = "status_change"
	EventServiceUnregistered EventType = "service_unregistered"
)

// Event is the fan-out unit published by the registry and relayed by the
// event bus. Seq is assigned by the bus, not the registry, so it stays
// globally monotonic across every publisher.
type Event struct {
	Seq        uint64    `json:"seq"`
	Type       EventType `json:"type"`
	Greeting   string    `json:"greeting,omitempty"`    // connection
	Record     *Record   `json:"record,omitempty"`      // service_registered
	ServiceID  string    `json:"service_id,omitempty"`  // status_change, service_unregistered
	PrevStatus Status    `json:"prev_status,omitempty"` // status_change
	NextStatus Status    `json:"next_status,omitempty"` // status_change
}
