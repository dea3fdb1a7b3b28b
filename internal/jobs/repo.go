// Package jobs is the durable queue of receipt extraction work.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/fueltax-backend/pkg/db"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

const maxErrorLen = 1000

// Repository stores receipt_jobs rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Enqueue adds the job for receiptID inside tx. A second enqueue for the same
// receipt is ignored.
func (r *Repository) Enqueue(ctx context.Context, tx *gorm.DB, receiptID uuid.UUID, now time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	job := models.ReceiptJob{
		ID:          uuid.New(),
		ReceiptID:   receiptID,
		Status:      enums.JobStatusQueued,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "receipt_id"}}, DoNothing: true}).
		Create(&job).Error
}

// Claim marks up to limit due jobs as running for workerID and returns them.
// On Postgres the candidate rows are locked with SKIP LOCKED so concurrent
// workers never claim the same job; elsewhere the status guard on the update
// provides the same exclusion.
func (r *Repository) Claim(ctx context.Context, tx *gorm.DB, workerID string, limit int, now time.Time) ([]models.ReceiptJob, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.WithContext(ctx).
		Where("status = ? AND available_at <= ?", enums.JobStatusQueued, now).
		Order("available_at ASC").Order("id ASC").
		Limit(limit)
	if dbpkg.IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var candidates []models.ReceiptJob
	if err := query.Find(&candidates).Error; err != nil {
		return nil, err
	}

	claimed := make([]models.ReceiptJob, 0, len(candidates))
	for _, job := range candidates {
		res := tx.WithContext(ctx).Model(&models.ReceiptJob{}).
			Where("id = ? AND status = ?", job.ID, enums.JobStatusQueued).
			Updates(map[string]any{
				"status":     enums.JobStatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"locked_by":  workerID,
				"updated_at": now,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		job.Status = enums.JobStatusRunning
		job.Attempts++
		lockedAt, lockedBy := now, workerID
		job.LockedAt = &lockedAt
		job.LockedBy = &lockedBy
		claimed = append(claimed, job)
	}
	return claimed, nil
}

// MarkDone finishes a running job.
func (r *Repository) MarkDone(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error {
	return tx.WithContext(ctx).Model(&models.ReceiptJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.JobStatusDone,
			"locked_at":  nil,
			"locked_by":  nil,
			"updated_at": now,
		}).Error
}

// Retry puts a running job back in the queue, due at availableAt.
func (r *Repository) Retry(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, availableAt, now time.Time) error {
	return tx.WithContext(ctx).Model(&models.ReceiptJob{}).
		Where("id = ? AND status = ?", id, enums.JobStatusRunning).
		Updates(map[string]any{
			"status":       enums.JobStatusQueued,
			"available_at": availableAt,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   truncate(cause),
			"updated_at":   now,
		}).Error
}

// MarkDead parks a job that exhausted its attempts.
func (r *Repository) MarkDead(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, now time.Time) error {
	return tx.WithContext(ctx).Model(&models.ReceiptJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     enums.JobStatusDead,
			"locked_at":  nil,
			"locked_by":  nil,
			"last_error": truncate(cause),
			"updated_at": now,
		}).Error
}

// ListExpiredLeases returns running jobs locked at or before cutoff.
func (r *Repository) ListExpiredLeases(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]models.ReceiptJob, error) {
	query := tx.WithContext(ctx).
		Where("status = ? AND locked_at <= ?", enums.JobStatusRunning, cutoff).
		Order("locked_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if dbpkg.IsPostgres(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.ReceiptJob
	err := query.Find(&rows).Error
	return rows, err
}

// FindByReceipt returns the job of receiptID, or nil.
func (r *Repository) FindByReceipt(ctx context.Context, receiptID uuid.UUID) (*models.ReceiptJob, error) {
	var job models.ReceiptJob
	err := r.db.WithContext(ctx).Where("receipt_id = ?", receiptID).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func truncate(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return &msg
}
