package receipts

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

// Repository exposes receipt persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a receipt repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListFilter narrows an account's receipts.
type ListFilter struct {
	AccountID  uuid.UUID
	FiscalYear string
	VehicleID  *uuid.UUID
	Status     *enums.ProcessingStatus
}

// Create inserts r inside tx.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, receipt *models.Receipt) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	return tx.WithContext(ctx).Create(receipt).Error
}

// FindByID returns the receipt or nil. When tx is a Postgres transaction the
// row is locked until it commits.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Receipt, error) {
	query := r.db
	if tx != nil {
		query = tx
		if dbpkg.IsPostgres(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
	}
	var receipt models.Receipt
	err := query.WithContext(ctx).Where("id = ?", id).Take(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// FindForAccount returns the receipt only when it belongs to accountID.
func (r *Repository) FindForAccount(ctx context.Context, accountID, id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.WithContext(ctx).Where("id = ? AND account_id = ?", id, accountID).Take(&receipt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// List returns the filtered receipts, newest purchase first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Receipt, error) {
	query := r.db.WithContext(ctx).Model(&models.Receipt{}).Where("account_id = ?", filter.AccountID)
	if filter.FiscalYear != "" {
		query = query.Where("fiscal_year = ?", filter.FiscalYear)
	}
	if filter.VehicleID != nil {
		query = query.Where("vehicle_id = ?", *filter.VehicleID)
	}
	if filter.Status != nil {
		query = query.Where("processing_status = ?", *filter.Status)
	}
	var rows []models.Receipt
	err := query.Order("purchase_date DESC").Order("created_at DESC").Find(&rows).Error
	return rows, err
}

// Transition moves the receipt to next, applying updates in the same
// statement. The WHERE clause only matches rows whose current status may
// legally precede next, so a terminal receipt is never rewritten. It
// reports whether the row changed.
func (r *Repository) Transition(ctx context.Context, tx *gorm.DB, id uuid.UUID, next enums.ProcessingStatus, updates map[string]any) (bool, error) {
	from := enums.PredecessorsOf(next)
	if len(from) == 0 {
		return false, nil
	}
	values := map[string]any{"processing_status": next}
	for k, v := range updates {
		values[k] = v
	}
	res := tx.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND processing_status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateContent writes user-editable fields of a receipt that has finished
// processing. It reports false when the receipt is still pending or processing.
func (r *Repository) UpdateContent(ctx context.Context, tx *gorm.DB, receipt *models.Receipt, now time.Time) (bool, error) {
	res := tx.WithContext(ctx).Model(&models.Receipt{}).
		Where("id = ? AND account_id = ?", receipt.ID, receipt.AccountID).
		Where("processing_status IN ?", []enums.ProcessingStatus{enums.ProcessingStatusCompleted, enums.ProcessingStatusFailed}).
		Updates(map[string]any{
			"vehicle_id":       receipt.VehicleID,
			"purchase_date":    receipt.PurchaseDate,
			"station_name":     receipt.StationName,
			"seller_address":   receipt.SellerAddress,
			"seller_city":      receipt.SellerCity,
			"seller_state":     receipt.SellerState,
			"seller_zip":       receipt.SellerZip,
			"fuel_type":        receipt.FuelType,
			"gallons":          receipt.Gallons,
			"price_per_gallon": receipt.PricePerGallon,
			"total_amount":     receipt.TotalAmount,
			"fiscal_year":      receipt.FiscalYear,
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Delete removes the receipt row; its job cascades.
func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, accountID, id uuid.UUID) (int64, error) {
	res := tx.WithContext(ctx).
		Where("id = ? AND account_id = ?", id, accountID).
		Delete(&models.Receipt{})
	return res.RowsAffected, res.Error
}
