package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/fueltax-backend/internal/analytics/types"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	outboxpayloads "github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by the router.
type Writer interface {
	InsertReceiptEvent(ctx context.Context, row types.ReceiptEventRow) error
}

// RowBuilder turns a decoded payload into a warehouse row.
type RowBuilder func(envelope types.Envelope, payload any) (types.ReceiptEventRow, error)

type handlerEntry struct {
	factory func() any
	build   RowBuilder
}

// Router decodes each envelope by event type and writes one row per event.
type Router struct {
	handlers map[enums.OutboxEventType]handlerEntry
	writer   Writer
	logg     *logger.Logger
}

// NewRouter wires a row builder for every receipt and quota event.
func NewRouter(writer Writer, logg *logger.Logger) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	uploaded := handlerEntry{
		factory: func() any { return &outboxpayloads.ReceiptUploadedEvent{} },
		build:   uploadedRow,
	}
	processed := handlerEntry{
		factory: func() any { return &outboxpayloads.ReceiptProcessedEvent{} },
		build:   processedRow,
	}
	changed := handlerEntry{
		factory: func() any { return &outboxpayloads.ReceiptChangedEvent{} },
		build:   changedRow,
	}
	quota := handlerEntry{
		factory: func() any { return &outboxpayloads.QuotaChangedEvent{} },
		build:   quotaRow,
	}

	return &Router{
		handlers: map[enums.OutboxEventType]handlerEntry{
			enums.EventReceiptUploaded:    uploaded,
			enums.EventReceiptCompleted:   processed,
			enums.EventReceiptFailed:      processed,
			enums.EventReceiptUpdated:     changed,
			enums.EventReceiptDeleted:     changed,
			enums.EventQuotaActivated:     quota,
			enums.EventReceiptPackApplied: quota,
			enums.EventQuotaCanceled:      quota,
			enums.EventTrialExpired:       quota,
		},
		writer: writer,
		logg:   logg,
	}, nil
}

// Handle decodes the envelope payload and writes its row.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	entry, ok := r.handlers[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload := entry.factory()
	if err := json.Unmarshal(envelope.Payload, payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}

	row, err := entry.build(envelope, payload)
	if err != nil {
		return fmt.Errorf("build %s row: %w", envelope.EventType, err)
	}
	if err := r.writer.InsertReceiptEvent(ctx, row); err != nil {
		return err
	}
	r.logg.Debug(r.logg.WithField(ctx, "row_event_type", row.EventType), "receipt event row written")
	return nil
}
