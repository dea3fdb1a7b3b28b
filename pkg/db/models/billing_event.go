package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// BillingEvent records a processed billing provider delivery.
type BillingEvent struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Provider        string          `gorm:"column:provider;not null;uniqueIndex:billing_events_provider_event_key"`
	ProviderEventID string          `gorm:"column:provider_event_id;not null;uniqueIndex:billing_events_provider_event_key"`
	EventType       string          `gorm:"column:event_type;not null"`
	AccountID       *uuid.UUID      `gorm:"column:account_id;type:uuid"`
	FiscalYear      *string         `gorm:"column:fiscal_year"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb"`
	ProcessedAt     time.Time       `gorm:"column:processed_at;not null"`
}
