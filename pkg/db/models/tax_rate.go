package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// TaxRate is one [StartDate, EndDate) window of the fuel tax schedule.
type TaxRate struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FuelType  enums.FuelType  `gorm:"column:fuel_type;not null"`
	StartDate time.Time       `gorm:"column:start_date;type:date;not null"`
	EndDate   *time.Time      `gorm:"column:end_date;type:date"`
	BaseRate  decimal.Decimal `gorm:"column:base_rate;type:numeric(8,4);not null"`
	Increase  decimal.Decimal `gorm:"column:increase;type:numeric(8,4);not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}
