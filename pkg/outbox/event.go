package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// EnvelopeVersion is bumped whenever Envelope changes shape.
const EnvelopeVersion = 1

// ActorRef names the user whose request produced an event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// Envelope is what lands in outbox_events.payload and on the wire.
type Envelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return fmt.Errorf("unknown event type %q", e.EventType)
	case !e.AggregateType.IsValid():
		return fmt.Errorf("unknown aggregate type %q", e.AggregateType)
	case e.AggregateID == uuid.Nil:
		return fmt.Errorf("%s event has no aggregate id", e.EventType)
	}
	return nil
}

// Encode wraps the event in an Envelope and returns the pending row both
// storage backends persist.
func Encode(event DomainEvent) (models.OutboxEvent, Envelope, error) {
	if err := event.validate(); err != nil {
		return models.OutboxEvent{}, Envelope{}, err
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	occurred = occurred.UTC()

	env := Envelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurred,
		Actor:      event.Actor,
	}
	var err error
	if env.Data, err = json.Marshal(event.Data); err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return models.OutboxEvent{}, Envelope{}, fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}

	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       raw,
		CreatedAt:     occurred,
	}, env, nil
}

// Decode reads an envelope back out of a stored row.
func Decode(row models.OutboxEvent) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(row.Payload, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode outbox %s: %w", row.ID, err)
	}
	if env.EventID == "" {
		return Envelope{}, fmt.Errorf("decode outbox %s: envelope has no event id", row.ID)
	}
	return env, nil
}
