package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// ReceiptUploadedEvent is emitted once an upload is admitted and queued.
type ReceiptUploadedEvent struct {
	ReceiptID       uuid.UUID  `json:"receipt_id"`
	AccountID       uuid.UUID  `json:"account_id"`
	VehicleID       *uuid.UUID `json:"vehicle_id,omitempty"`
	QuotaFiscalYear string     `json:"quota_fiscal_year"`
	ImageMime       string     `json:"image_mime"`
	UploadedAt      time.Time  `json:"uploaded_at"`
}

// ReceiptProcessedEvent is emitted when extraction reaches a terminal state.
type ReceiptProcessedEvent struct {
	ReceiptID        uuid.UUID              `json:"receipt_id"`
	AccountID        uuid.UUID              `json:"account_id"`
	Status           enums.ProcessingStatus `json:"status"`
	FiscalYear       string                 `json:"fiscal_year"`
	PurchaseDate     string                 `json:"purchase_date,omitempty"`
	SellerState      string                 `json:"seller_state,omitempty"`
	Gallons          string                 `json:"gallons,omitempty"`
	TotalAmount      string                 `json:"total_amount,omitempty"`
	ProcessingError  string                 `json:"processing_error,omitempty"`
	ExtractionMillis int64                  `json:"extraction_ms"`
	ProcessedAt      time.Time              `json:"processed_at"`
}

// ReceiptChangedEvent covers manual edits and deletes.
type ReceiptChangedEvent struct {
	ReceiptID  uuid.UUID `json:"receipt_id"`
	AccountID  uuid.UUID `json:"account_id"`
	FiscalYear string    `json:"fiscal_year"`
	ChangedAt  time.Time `json:"changed_at"`
}

// QuotaChangedEvent is emitted on activation, pack purchase, cancellation and trial expiry.
type QuotaChangedEvent struct {
	AccountID        uuid.UUID                `json:"account_id"`
	FiscalYear       string                   `json:"fiscal_year"`
	Status           enums.SubscriptionStatus `json:"status"`
	ReceiptLimit     int                      `json:"receipt_limit"`
	ReceiptCount     int                      `json:"receipt_count"`
	PaymentReference string                   `json:"payment_reference,omitempty"`
	ChangedAt        time.Time                `json:"changed_at"`
}
