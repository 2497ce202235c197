package amqp

import (
	"encoding/json"
	"time"
)

// Event kinds carried on the engine's queue.
const (
	KindEntityMutated  = "entity.mutated"
	KindMonthGenerated = "month.generated"
)

// Event is a lightweight notification about engine state changes. The
// consumer refetches whatever it needs from storage; the event carries
// identity only, never entity payloads.
type Event struct {
	Kind       string    `json:"kind"`
	EntityType string    `json:"entity_type,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	EntityID   string    `json:"entity_id,omitempty"`
	Month      string    `json:"month,omitempty"`
	Created    int       `json:"created,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEntityMutatedEvent builds the event published after a mutate call.
func NewEntityMutatedEvent(entityType, operation, entityID string) *Event {
	return &Event{
		Kind:       KindEntityMutated,
		EntityType: entityType,
		Operation:  operation,
		EntityID:   entityID,
		Timestamp:  time.Now(),
	}
}

// NewMonthGeneratedEvent builds the event published after month generation
// created at least one instance.
func NewMonthGeneratedEvent(month string, created int) *Event {
	return &Event{
		Kind:      KindMonthGenerated,
		Month:     month,
		Created:   created,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON creates an event from JSON bytes.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
