package bus

import "time"

// Event represents a domain event published on the bus. Kinds are
// dot-namespaced, e.g. "webhook.messages_upsert" or "status.changed".
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
