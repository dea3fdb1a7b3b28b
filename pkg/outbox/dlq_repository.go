package outbox

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fueltax-backend/pkg/db"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
)

const maxDLQErrorLen = 1024

var errTxRequired = errors.New("transaction required")

// DLQRepository stores outbox events the publisher gave up on. An event has
// at most one dead-letter entry.
type DLQRepository struct{}

func NewDLQRepository() *DLQRepository {
	return &DLQRepository{}
}

// RecordTx dead-letters entry and reports whether a new row was written. An
// event that already has an entry, because an operator redrove it or a second
// publisher raced this one, gets that entry refreshed instead.
func (r *DLQRepository) RecordTx(tx *gorm.DB, entry models.OutboxDLQ) (bool, error) {
	if tx == nil {
		return false, errTxRequired
	}
	if entry.ErrorMessage != nil {
		msg := truncateDLQError(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	// The savepoint keeps the caller's transaction usable after a conflict.
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&entry).Error
	})
	if err == nil {
		return true, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return false, err
	}

	existing, err := r.FindByEventID(tx, entry.EventID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("dlq entry for event %s conflicted but was not found", entry.EventID)
	}
	err = tx.Model(&models.OutboxDLQ{}).
		Where("id = ?", existing.ID).
		Updates(map[string]any{
			"payload_json":  entry.Payload,
			"error_reason":  entry.ErrorReason,
			"error_message": entry.ErrorMessage,
			"attempt_count": entry.AttemptCount,
			"failed_at":     entry.FailedAt,
		}).Error
	return false, err
}

// FindByEventID returns the dead-letter entry for an outbox event, or nil.
func (r *DLQRepository) FindByEventID(tx *gorm.DB, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	var dlq models.OutboxDLQ
	err := tx.Where("event_id = ?", eventID).Take(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

func truncateDLQError(message string) string {
	if len(message) <= maxDLQErrorLen {
		return message
	}
	return message[:maxDLQErrorLen]
}
