package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate/topic/payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the dispatcher should stop retrying a row.
type NonRetryableError struct {
	Err error
}

// Error implements error.
func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

// Unwrap exposes the wrapped error.
func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// NewEventRegistry builds the registry with the configured topic names.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.ReceiptEventsTopic == "" {
		return nil, fmt.Errorf("receipt events topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	topic := cfg.ReceiptEventsTopic

	for _, desc := range []EventDescriptor{
		{
			EventType:      enums.EventReceiptUploaded,
			AggregateType:  enums.AggregateReceipt,
			PayloadFactory: func() interface{} { return &payloads.ReceiptUploadedEvent{} },
		},
		{
			EventType:      enums.EventReceiptCompleted,
			AggregateType:  enums.AggregateReceipt,
			PayloadFactory: func() interface{} { return &payloads.ReceiptProcessedEvent{} },
		},
		{
			EventType:      enums.EventReceiptFailed,
			AggregateType:  enums.AggregateReceipt,
			PayloadFactory: func() interface{} { return &payloads.ReceiptProcessedEvent{} },
		},
		{
			EventType:      enums.EventReceiptUpdated,
			AggregateType:  enums.AggregateReceipt,
			PayloadFactory: func() interface{} { return &payloads.ReceiptChangedEvent{} },
		},
		{
			EventType:      enums.EventReceiptDeleted,
			AggregateType:  enums.AggregateReceipt,
			PayloadFactory: func() interface{} { return &payloads.ReceiptChangedEvent{} },
		},
		{
			EventType:      enums.EventQuotaActivated,
			AggregateType:  enums.AggregateSubscription,
			PayloadFactory: func() interface{} { return &payloads.QuotaChangedEvent{} },
		},
		{
			EventType:      enums.EventReceiptPackApplied,
			AggregateType:  enums.AggregateSubscription,
			PayloadFactory: func() interface{} { return &payloads.QuotaChangedEvent{} },
		},
		{
			EventType:      enums.EventQuotaCanceled,
			AggregateType:  enums.AggregateSubscription,
			PayloadFactory: func() interface{} { return &payloads.QuotaChangedEvent{} },
		},
		{
			EventType:      enums.EventTrialExpired,
			AggregateType:  enums.AggregateSubscription,
			PayloadFactory: func() interface{} { return &payloads.QuotaChangedEvent{} },
		},
	} {
		desc.Topic = topic
		reg.register(desc)
	}

	return reg, nil
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}

// NewNonRetryableError wraps an error to signal no retries.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}
