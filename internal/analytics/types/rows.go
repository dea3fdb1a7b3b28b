package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// ReceiptEventRow mirrors the receipt_events BigQuery schema. Columns that do
// not apply to an event type stay NULL.
type ReceiptEventRow struct {
	EventID          string             `bigquery:"event_id"`
	EventType        string             `bigquery:"event_type"`
	OccurredAt       time.Time          `bigquery:"occurred_at"`
	AccountID        string             `bigquery:"account_id"`
	ReceiptID        *string            `bigquery:"receipt_id"`
	VehicleID        *string            `bigquery:"vehicle_id"`
	FiscalYear       *string            `bigquery:"fiscal_year"`
	Status           *string            `bigquery:"status"`
	PurchaseDate     *string            `bigquery:"purchase_date"`
	SellerState      *string            `bigquery:"seller_state"`
	Gallons          *float64           `bigquery:"gallons"`
	TotalAmount      *float64           `bigquery:"total_amount"`
	ExtractionMillis *int64             `bigquery:"extraction_ms"`
	ProcessingError  *string            `bigquery:"processing_error"`
	ReceiptLimit     *int64             `bigquery:"receipt_limit"`
	ReceiptCount     *int64             `bigquery:"receipt_count"`
	PaymentReference *string            `bigquery:"payment_reference"`
	Payload          cbigquery.NullJSON `bigquery:"payload"`
}
