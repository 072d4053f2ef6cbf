package bus

import "time"

// Event represents a domain event published on the bus. Instance carries
// the messaging instance the event belongs to, so consumers (websocket
// bridge, bot engine) can scope their work without inspecting the payload.
type Event struct {
	Kind      string
	Instance  string
	Timestamp time.Time
	Payload   any
}
