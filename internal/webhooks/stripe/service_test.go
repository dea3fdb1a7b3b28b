package stripewebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/angelmondragon/fueltax-backend/internal/quota"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

type fakeQuota struct {
	purchases []quota.PurchaseCompleted
	packs     []quota.PackPurchased
	cancels   []quota.SubscriptionCanceled
}

func (f *fakeQuota) ApplyPurchase(_ context.Context, input quota.PurchaseCompleted) (bool, error) {
	f.purchases = append(f.purchases, input)
	return true, nil
}

func (f *fakeQuota) ApplyPack(_ context.Context, input quota.PackPurchased) (bool, error) {
	f.packs = append(f.packs, input)
	return true, nil
}

func (f *fakeQuota) Cancel(_ context.Context, input quota.SubscriptionCanceled) (bool, error) {
	f.cancels = append(f.cancels, input)
	return true, nil
}

func newTestService(t *testing.T) (*Service, *fakeQuota, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	fq := &fakeQuota{}
	svc, err := NewService(ServiceParams{
		Quota:  fq,
		Logger: logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("debug"), Output: buf}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, fq, buf
}

func checkoutEvent(t *testing.T, id string, metadata map[string]string, amount int64) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":           "cs_" + id,
		"object":       "checkout.session",
		"amount_total": amount,
		"metadata":     metadata,
	})
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_" + id,
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestService_PlanCheckoutActivatesQuota(t *testing.T) {
	svc, fq, _ := newTestService(t)
	accountID := uuid.New()
	event := checkoutEvent(t, "plan", map[string]string{
		"account_id":    accountID.String(),
		"fiscal_year":   "2024-2025",
		"purchase_type": "plan",
	}, 4999)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(fq.purchases) != 1 {
		t.Fatalf("expected one purchase, got %d", len(fq.purchases))
	}
	got := fq.purchases[0]
	if got.AccountID != accountID || got.FiscalYear != "2024-2025" {
		t.Fatalf("unexpected target %+v", got)
	}
	if got.PaymentReference != "cs_plan" {
		t.Fatalf("expected session id as payment reference, got %q", got.PaymentReference)
	}
	if got.Billing.Provider != "stripe" || got.Billing.EventID != "evt_plan" || got.Billing.EventType != "checkout.session.completed" {
		t.Fatalf("unexpected billing ref %+v", got.Billing)
	}
}

func TestService_PackCheckoutAddsReceipts(t *testing.T) {
	svc, fq, _ := newTestService(t)
	event := checkoutEvent(t, "pack", map[string]string{
		"account_id":    uuid.NewString(),
		"fiscal_year":   "2024-2025",
		"purchase_type": "receipt_pack",
		"pack_size":     "25",
	}, 999)

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(fq.packs) != 1 {
		t.Fatalf("expected one pack, got %d", len(fq.packs))
	}
	if fq.packs[0].ReceiptsAdded != 25 || fq.packs[0].AmountMinor != 999 {
		t.Fatalf("unexpected pack %+v", fq.packs[0])
	}
}

func TestService_SubscriptionDeletedCancels(t *testing.T) {
	svc, fq, _ := newTestService(t)
	accountID := uuid.New()
	raw, _ := json.Marshal(map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"metadata": map[string]string{"account_id": accountID.String(), "fiscal_year": "2023-2024"},
	})
	event := &stripe.Event{
		ID:   "evt_cancel",
		Type: stripe.EventTypeCustomerSubscriptionDeleted,
		Data: &stripe.EventData{Raw: raw},
	}

	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(fq.cancels) != 1 || fq.cancels[0].AccountID != accountID || fq.cancels[0].FiscalYear != "2023-2024" {
		t.Fatalf("unexpected cancels %+v", fq.cancels)
	}
}

func TestService_DropsEventsWithBadMetadata(t *testing.T) {
	cases := map[string]map[string]string{
		"missing account":   {"fiscal_year": "2024-2025", "purchase_type": "plan"},
		"bad account":       {"account_id": "nope", "fiscal_year": "2024-2025", "purchase_type": "plan"},
		"bad fiscal year":   {"account_id": uuid.NewString(), "fiscal_year": "2024", "purchase_type": "plan"},
		"unknown purchase":  {"account_id": uuid.NewString(), "fiscal_year": "2024-2025", "purchase_type": "gift"},
		"missing pack size": {"account_id": uuid.NewString(), "fiscal_year": "2024-2025", "purchase_type": "receipt_pack"},
		"zero pack size":    {"account_id": uuid.NewString(), "fiscal_year": "2024-2025", "purchase_type": "receipt_pack", "pack_size": "0"},
	}
	for name, metadata := range cases {
		t.Run(name, func(t *testing.T) {
			svc, fq, buf := newTestService(t)
			if err := svc.HandleEvent(context.Background(), checkoutEvent(t, "bad", metadata, 100)); err != nil {
				t.Fatalf("expected event acknowledged, got %v", err)
			}
			if len(fq.purchases)+len(fq.packs)+len(fq.cancels) != 0 {
				t.Fatalf("expected no quota changes")
			}
			if !strings.Contains(buf.String(), "stripe event dropped") {
				t.Fatalf("expected drop warning, got %s", buf.String())
			}
		})
	}
}

func TestService_IgnoresUnhandledEventTypes(t *testing.T) {
	svc, fq, _ := newTestService(t)
	event := &stripe.Event{
		ID:   "evt_invoice",
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{Raw: json.RawMessage(`{"id":"in_1"}`)},
	}
	if err := svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(fq.purchases)+len(fq.packs)+len(fq.cancels) != 0 {
		t.Fatalf("expected no quota changes")
	}
}

func TestService_RejectsEmptyEvent(t *testing.T) {
	svc, _, _ := newTestService(t)
	if err := svc.HandleEvent(context.Background(), &stripe.Event{}); err == nil {
		t.Fatal("expected error for event without data")
	}
}
