package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// AccountSubscription holds the upload quota of an account for one fiscal year.
type AccountSubscription struct {
	ID             uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID      uuid.UUID                `gorm:"column:account_id;type:uuid;not null;uniqueIndex:account_subscriptions_account_fy_key"`
	FiscalYear     string                   `gorm:"column:fiscal_year;not null;uniqueIndex:account_subscriptions_account_fy_key"`
	Status         enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null;default:'trial'"`
	TrialStartedAt time.Time                `gorm:"column:trial_started_at;not null"`
	TrialEndsAt    time.Time                `gorm:"column:trial_ends_at;not null"`
	ReceiptCount   int                      `gorm:"column:receipt_count;not null;default:0"`
	ReceiptLimit   int                      `gorm:"column:receipt_limit;not null"`
	BaseLimit      int                      `gorm:"column:base_limit;not null"`
	ActivatedAt    *time.Time               `gorm:"column:activated_at"`
	CanceledAt     *time.Time               `gorm:"column:canceled_at"`
	LastPaymentRef *string                  `gorm:"column:last_payment_ref"`
	CreatedAt      time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
