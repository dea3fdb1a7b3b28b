package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReceiptPack is an immutable purchase of additional receipt slots.
type ReceiptPack struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID        uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index"`
	FiscalYear       string          `gorm:"column:fiscal_year;not null"`
	ReceiptsAdded    int             `gorm:"column:receipts_added;not null"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	PaymentReference string          `gorm:"column:payment_reference;not null;uniqueIndex"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}
