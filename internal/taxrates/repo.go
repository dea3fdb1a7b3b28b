package taxrates

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository reads the tax rate schedule.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a tax rate repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindEffective returns the window covering date for fuelType, or nil when
// the schedule has no such window.
func (r *Repository) FindEffective(ctx context.Context, fuelType enums.FuelType, date time.Time) (*models.TaxRate, error) {
	var rate models.TaxRate
	err := r.db.WithContext(ctx).
		Where("fuel_type = ?", fuelType).
		Where("start_date <= ?", date).
		Where("end_date IS NULL OR end_date > ?", date).
		Order("start_date DESC").
		Take(&rate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rate, nil
}

// ListByFuelType returns the full schedule of fuelType ordered by start date.
func (r *Repository) ListByFuelType(ctx context.Context, fuelType enums.FuelType) ([]models.TaxRate, error) {
	var rows []models.TaxRate
	if err := r.db.WithContext(ctx).
		Where("fuel_type = ?", fuelType).
		Order("start_date ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
