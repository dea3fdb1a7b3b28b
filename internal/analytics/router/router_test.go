package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/fueltax-backend/internal/analytics/types"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	outboxpayloads "github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

type fakeWriter struct {
	inserted []types.ReceiptEventRow
	err      error
}

func (f *fakeWriter) InsertReceiptEvent(_ context.Context, row types.ReceiptEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, row)
	return nil
}

func newTestRouter(t *testing.T, w Writer) *Router {
	t.Helper()
	r, err := NewRouter(w, logger.New(logger.Options{ServiceName: "router-test"}))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return r
}

func envelopeFor(t *testing.T, eventType enums.OutboxEventType, payload any) types.Envelope {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return types.Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
		Payload:    raw,
	}
}

func TestRouterWritesCompletedReceipt(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRouter(t, w)
	receiptID := uuid.New()
	env := envelopeFor(t, enums.EventReceiptCompleted, outboxpayloads.ReceiptProcessedEvent{
		ReceiptID:        receiptID,
		AccountID:        uuid.New(),
		Status:           enums.ProcessingStatusCompleted,
		FiscalYear:       "2024-2025",
		PurchaseDate:     "2024-08-01",
		SellerState:      "MO",
		Gallons:          "10.532",
		TotalAmount:      "31.20",
		ExtractionMillis: 1800,
	})

	if err := r.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(w.inserted) != 1 {
		t.Fatalf("expected one row, got %d", len(w.inserted))
	}
	row := w.inserted[0]
	if row.EventType != "receipt_completed" || row.EventID != env.EventID {
		t.Fatalf("unexpected identity %+v", row)
	}
	if row.ReceiptID == nil || *row.ReceiptID != receiptID.String() {
		t.Fatalf("unexpected receipt id %v", row.ReceiptID)
	}
	if row.Gallons == nil || *row.Gallons != 10.532 {
		t.Fatalf("unexpected gallons %v", row.Gallons)
	}
	if row.ProcessingError != nil {
		t.Fatalf("expected no processing error, got %q", *row.ProcessingError)
	}
	if row.ExtractionMillis == nil || *row.ExtractionMillis != 1800 {
		t.Fatalf("unexpected extraction ms %v", row.ExtractionMillis)
	}
	if !row.Payload.Valid {
		t.Fatalf("expected raw payload stored")
	}
}

func TestRouterDropsUnparsableNumbers(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRouter(t, w)
	env := envelopeFor(t, enums.EventReceiptFailed, outboxpayloads.ReceiptProcessedEvent{
		ReceiptID:       uuid.New(),
		AccountID:       uuid.New(),
		Status:          enums.ProcessingStatusFailed,
		Gallons:         "ten",
		ProcessingError: "missing purchase date",
	})
	if err := r.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	row := w.inserted[0]
	if row.Gallons != nil {
		t.Fatalf("expected gallons dropped, got %v", *row.Gallons)
	}
	if row.ProcessingError == nil || *row.ProcessingError != "missing purchase date" {
		t.Fatalf("unexpected processing error %v", row.ProcessingError)
	}
}

func TestRouterWritesQuotaChange(t *testing.T) {
	w := &fakeWriter{}
	r := newTestRouter(t, w)
	env := envelopeFor(t, enums.EventReceiptPackApplied, outboxpayloads.QuotaChangedEvent{
		AccountID:        uuid.New(),
		FiscalYear:       "2024-2025",
		Status:           enums.SubscriptionStatusActive,
		ReceiptLimit:     125,
		ReceiptCount:     40,
		PaymentReference: "cs_123",
	})
	if err := r.Handle(context.Background(), env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	row := w.inserted[0]
	if row.ReceiptID != nil {
		t.Fatalf("quota rows carry no receipt id")
	}
	if row.ReceiptLimit == nil || *row.ReceiptLimit != 125 || *row.ReceiptCount != 40 {
		t.Fatalf("unexpected quota columns %+v", row)
	}
	if row.PaymentReference == nil || *row.PaymentReference != "cs_123" {
		t.Fatalf("unexpected payment reference %v", row.PaymentReference)
	}
}

func TestRouterUnsupportedEvent(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{})
	err := r.Handle(context.Background(), types.Envelope{EventType: "receipt_archived", Payload: json.RawMessage(`{}`)})
	if !errors.Is(err, ErrUnsupportedEventType) {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRouterPropagatesWriterError(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{err: errors.New("bq down")})
	env := envelopeFor(t, enums.EventReceiptDeleted, outboxpayloads.ReceiptChangedEvent{ReceiptID: uuid.New(), AccountID: uuid.New()})
	if err := r.Handle(context.Background(), env); err == nil {
		t.Fatal("expected writer error")
	}
}

func TestRouterRejectsEmptyPayload(t *testing.T) {
	r := newTestRouter(t, &fakeWriter{})
	if err := r.Handle(context.Background(), types.Envelope{EventType: enums.EventReceiptUploaded}); err == nil {
		t.Fatal("expected empty payload error")
	}
}
