package router

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/fueltax-backend/internal/analytics/types"
	"github.com/angelmondragon/fueltax-backend/internal/analytics/writer"
	outboxpayloads "github.com/angelmondragon/fueltax-backend/pkg/outbox/payloads"
	"github.com/shopspring/decimal"
)

func baseRow(envelope types.Envelope, accountID string) (types.ReceiptEventRow, error) {
	payload, err := writer.EncodeJSON(envelope.Payload)
	if err != nil {
		return types.ReceiptEventRow{}, err
	}
	return types.ReceiptEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt.UTC(),
		AccountID:  accountID,
		Payload:    payload,
	}, nil
}

func uploadedRow(envelope types.Envelope, payload any) (types.ReceiptEventRow, error) {
	evt, ok := payload.(*outboxpayloads.ReceiptUploadedEvent)
	if !ok {
		return types.ReceiptEventRow{}, fmt.Errorf("unexpected payload %T", payload)
	}
	row, err := baseRow(envelope, evt.AccountID.String())
	if err != nil {
		return row, err
	}
	row.ReceiptID = stringPtr(evt.ReceiptID.String())
	if evt.VehicleID != nil {
		row.VehicleID = stringPtr(evt.VehicleID.String())
	}
	row.FiscalYear = optionalString(evt.QuotaFiscalYear)
	return row, nil
}

func processedRow(envelope types.Envelope, payload any) (types.ReceiptEventRow, error) {
	evt, ok := payload.(*outboxpayloads.ReceiptProcessedEvent)
	if !ok {
		return types.ReceiptEventRow{}, fmt.Errorf("unexpected payload %T", payload)
	}
	row, err := baseRow(envelope, evt.AccountID.String())
	if err != nil {
		return row, err
	}
	row.ReceiptID = stringPtr(evt.ReceiptID.String())
	row.FiscalYear = optionalString(evt.FiscalYear)
	row.Status = optionalString(string(evt.Status))
	row.PurchaseDate = optionalString(evt.PurchaseDate)
	row.SellerState = optionalString(evt.SellerState)
	row.Gallons = decimalPtr(evt.Gallons)
	row.TotalAmount = decimalPtr(evt.TotalAmount)
	row.ProcessingError = optionalString(evt.ProcessingError)
	ms := evt.ExtractionMillis
	row.ExtractionMillis = &ms
	return row, nil
}

func changedRow(envelope types.Envelope, payload any) (types.ReceiptEventRow, error) {
	evt, ok := payload.(*outboxpayloads.ReceiptChangedEvent)
	if !ok {
		return types.ReceiptEventRow{}, fmt.Errorf("unexpected payload %T", payload)
	}
	row, err := baseRow(envelope, evt.AccountID.String())
	if err != nil {
		return row, err
	}
	row.ReceiptID = stringPtr(evt.ReceiptID.String())
	row.FiscalYear = optionalString(evt.FiscalYear)
	return row, nil
}

func quotaRow(envelope types.Envelope, payload any) (types.ReceiptEventRow, error) {
	evt, ok := payload.(*outboxpayloads.QuotaChangedEvent)
	if !ok {
		return types.ReceiptEventRow{}, fmt.Errorf("unexpected payload %T", payload)
	}
	row, err := baseRow(envelope, evt.AccountID.String())
	if err != nil {
		return row, err
	}
	row.FiscalYear = optionalString(evt.FiscalYear)
	row.Status = optionalString(string(evt.Status))
	limit := int64(evt.ReceiptLimit)
	count := int64(evt.ReceiptCount)
	row.ReceiptLimit = &limit
	row.ReceiptCount = &count
	row.PaymentReference = optionalString(evt.PaymentReference)
	return row, nil
}

func stringPtr(v string) *string { return &v }

func optionalString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

// decimalPtr converts a decimal string payload field. Unparsable values are
// dropped rather than failing the whole row.
func decimalPtr(v string) *float64 {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}
