package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

// PlaceholderStationName marks a receipt whose extraction has not finished.
const PlaceholderStationName = "Processing..."

// Receipt is one uploaded fuel purchase and its extraction state.
type Receipt struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID        uuid.UUID              `gorm:"column:account_id;type:uuid;not null;index"`
	VehicleID        *uuid.UUID             `gorm:"column:vehicle_id;type:uuid"`
	UploadedBy       *uuid.UUID             `gorm:"column:uploaded_by;type:uuid"`
	ImageRef         string                 `gorm:"column:image_ref;not null"`
	ImageMime        string                 `gorm:"column:image_mime;not null"`
	PurchaseDate     time.Time              `gorm:"column:purchase_date;type:date;not null"`
	StationName      string                 `gorm:"column:station_name;not null"`
	SellerAddress    *string                `gorm:"column:seller_address"`
	SellerCity       *string                `gorm:"column:seller_city"`
	SellerState      *string                `gorm:"column:seller_state"`
	SellerZip        *string                `gorm:"column:seller_zip"`
	FuelType         enums.FuelType         `gorm:"column:fuel_type;not null;default:'gasoline'"`
	Gallons          decimal.NullDecimal    `gorm:"column:gallons;type:numeric(12,3)"`
	PricePerGallon   decimal.NullDecimal    `gorm:"column:price_per_gallon;type:numeric(12,3)"`
	TotalAmount      decimal.NullDecimal    `gorm:"column:total_amount;type:numeric(12,2)"`
	ProcessingStatus enums.ProcessingStatus `gorm:"column:processing_status;type:processing_status;not null;default:'pending'"`
	ProcessingError  *string                `gorm:"column:processing_error"`
	FiscalYear       string                 `gorm:"column:fiscal_year;not null;index"`
	QuotaFiscalYear  string                 `gorm:"column:quota_fiscal_year;not null"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time              `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt      *time.Time             `gorm:"column:completed_at"`
}
