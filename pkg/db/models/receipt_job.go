package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// ReceiptJob is the durable extraction work item for a receipt. ReceiptID is
// unique so redelivery never creates a second job.
type ReceiptJob struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReceiptID   uuid.UUID       `gorm:"column:receipt_id;type:uuid;not null;uniqueIndex"`
	Status      enums.JobStatus `gorm:"column:status;type:receipt_job_status;not null;default:'queued'"`
	Attempts    int             `gorm:"column:attempts;not null;default:0"`
	AvailableAt time.Time       `gorm:"column:available_at;not null"`
	LockedAt    *time.Time      `gorm:"column:locked_at"`
	LockedBy    *string         `gorm:"column:locked_by"`
	LastError   *string         `gorm:"column:last_error"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
