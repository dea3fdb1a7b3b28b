package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// Repository persists account subscriptions, receipt packs and processed
// billing events. Mutating methods take the caller's transaction.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a quota repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Find returns the subscription row, or nil when the account has none for fiscalYear.
func (r *Repository) Find(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string) (*models.AccountSubscription, error) {
	if tx == nil {
		tx = r.db
	}
	var sub models.AccountSubscription
	err := tx.WithContext(ctx).
		Where("account_id = ? AND fiscal_year = ?", accountID, fiscalYear).
		Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// InsertIfAbsent creates sub unless a row for the same account and fiscal
// year already exists. It reports whether a row was inserted.
func (r *Repository) InsertIfAbsent(ctx context.Context, tx *gorm.DB, sub *models.AccountSubscription) (bool, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "fiscal_year"}},
			DoNothing: true,
		}).
		Create(sub)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// TryIncrement consumes one upload slot if the row is uploadable at now. The
// check and the increment are a single statement, so concurrent callers can
// never push receipt_count past receipt_limit.
func (r *Repository) TryIncrement(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.AccountSubscription{}).
		Where("account_id = ? AND fiscal_year = ?", accountID, fiscalYear).
		Where("receipt_count < receipt_limit").
		Where("(status = ? OR (status = ? AND trial_ends_at > ?))",
			enums.SubscriptionStatusActive, enums.SubscriptionStatusTrial, now).
		Updates(map[string]any{
			"receipt_count": gorm.Expr("receipt_count + 1"),
			"updated_at":    now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Save writes the mutable columns of sub.
func (r *Repository) Save(ctx context.Context, tx *gorm.DB, sub *models.AccountSubscription) error {
	return tx.WithContext(ctx).
		Model(&models.AccountSubscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{
			"status":           sub.Status,
			"receipt_limit":    sub.ReceiptLimit,
			"base_limit":       sub.BaseLimit,
			"activated_at":     sub.ActivatedAt,
			"canceled_at":      sub.CanceledAt,
			"last_payment_ref": sub.LastPaymentRef,
			"updated_at":       sub.UpdatedAt,
		}).Error
}

// InsertPack records a pack purchase. A repeated payment reference is a
// no-op and reports false.
func (r *Repository) InsertPack(ctx context.Context, tx *gorm.DB, pack *models.ReceiptPack) (bool, error) {
	if pack.ID == uuid.Nil {
		pack.ID = uuid.New()
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_reference"}},
			DoNothing: true,
		}).
		Create(pack)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SumPacks returns the receipts added by packs for the account and fiscal year.
func (r *Repository) SumPacks(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, fiscalYear string) (int, error) {
	var total int
	err := tx.WithContext(ctx).
		Model(&models.ReceiptPack{}).
		Select("COALESCE(SUM(receipts_added), 0)").
		Where("account_id = ? AND fiscal_year = ?", accountID, fiscalYear).
		Scan(&total).Error
	return total, err
}

// ListPacks returns the packs bought for the fiscal year, oldest first.
func (r *Repository) ListPacks(ctx context.Context, accountID uuid.UUID, fiscalYear string) ([]models.ReceiptPack, error) {
	var rows []models.ReceiptPack
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND fiscal_year = ?", accountID, fiscalYear).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

// RecordBillingEvent stores a provider delivery. It reports false when the
// same provider event was already processed.
func (r *Repository) RecordBillingEvent(ctx context.Context, tx *gorm.DB, ev *models.BillingEvent) (bool, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(ev)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListExpiredTrials returns trial rows whose trial ended at or before now.
func (r *Repository) ListExpiredTrials(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.AccountSubscription, error) {
	var rows []models.AccountSubscription
	q := tx.WithContext(ctx).
		Where("status = ? AND trial_ends_at <= ?", enums.SubscriptionStatusTrial, now).
		Order("trial_ends_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&rows).Error
	return rows, err
}

// ExpireTrial moves one row from trial to expired if it is still a trial.
func (r *Repository) ExpireTrial(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).
		Model(&models.AccountSubscription{}).
		Where("id = ? AND status = ?", id, enums.SubscriptionStatusTrial).
		Updates(map[string]any{"status": enums.SubscriptionStatusExpired, "updated_at": now})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// packPrice parses a provider amount in minor units.
func packPrice(amountMinor int64) decimal.Decimal {
	return decimal.New(amountMinor, -2)
}
