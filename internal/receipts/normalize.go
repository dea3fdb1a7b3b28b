package receipts

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/internal/extraction"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
)

// MissingDateWarning is stored on a completed receipt whose date was not readable.
const MissingDateWarning = "purchase date not found on receipt; defaulted to upload date"

var amountNoise = strings.NewReplacer("$", "", "USD", "", "usd", "", ",", "", " ", "", "\t", "", "\u00a0", "")

// ParseAmount strips currency symbols, thousands separators and whitespace
// and parses the remainder. ok is false when nothing numeric is left.
func ParseAmount(raw string) (decimal.NullDecimal, bool) {
	cleaned := amountNoise.Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return decimal.NullDecimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}

// amountColumn bounds a receipts numeric column: values are rounded to its
// scale and must stay non-negative and below limit.
type amountColumn struct {
	name  string
	scale int32
	limit decimal.Decimal
}

var (
	gallonsColumn        = amountColumn{name: "gallons", scale: 3, limit: decimal.New(1, 9)}
	pricePerGallonColumn = amountColumn{name: "price_per_gallon", scale: 3, limit: decimal.New(1, 9)}
	totalAmountColumn    = amountColumn{name: "total_amount", scale: 2, limit: decimal.New(1, 10)}
)

// parse normalizes raw into a storable value. Blank text is NULL with ok
// true; unparsable, negative or overflowing text is NULL with ok false.
func (c amountColumn) parse(raw string) (decimal.NullDecimal, bool) {
	if strings.TrimSpace(raw) == "" {
		return decimal.NullDecimal{}, true
	}
	v, ok := ParseAmount(raw)
	if !ok {
		return decimal.NullDecimal{}, false
	}
	d := v.Decimal.Round(c.scale)
	if d.IsNegative() || d.GreaterThanOrEqual(c.limit) {
		return decimal.NullDecimal{}, false
	}
	return decimal.NewNullDecimal(d), true
}

// Extracted is the completed-state content derived from an extraction.
type Extracted struct {
	PurchaseDate   time.Time
	StationName    string
	SellerAddress  *string
	SellerCity     *string
	SellerState    *string
	SellerZip      *string
	FuelType       enums.FuelType
	Gallons        decimal.NullDecimal
	PricePerGallon decimal.NullDecimal
	TotalAmount    decimal.NullDecimal
	FiscalYear     string
	Warning        *string
	// Unparsed lists numeric fields whose text could not be parsed.
	Unparsed []string
}

// Normalize converts an extraction result into receipt content. uploaded is
// used when the receipt carries no date.
func Normalize(res *extraction.Result, uploaded time.Time, defaultFuel enums.FuelType) Extracted {
	out := Extracted{StationName: models.PlaceholderStationName, FuelType: defaultFuel}
	if res == nil {
		res = &extraction.Result{}
	}

	if res.PurchaseDate != nil {
		out.PurchaseDate = fiscal.DateOnly(*res.PurchaseDate)
	} else {
		out.PurchaseDate = fiscal.DateOnly(uploaded)
		warning := MissingDateWarning
		out.Warning = &warning
	}
	out.FiscalYear = fiscal.Year(out.PurchaseDate)

	if name := strings.TrimSpace(res.StationName); name != "" {
		out.StationName = name
	} else {
		out.StationName = "Unknown station"
	}
	out.SellerAddress = optional(res.SellerAddress)
	out.SellerCity = optional(res.SellerCity)
	out.SellerState = optional(strings.ToUpper(res.SellerState))
	out.SellerZip = optional(res.SellerZip)
	if ft, err := enums.ParseFuelType(res.FuelType); err == nil {
		out.FuelType = ft
	}

	out.Gallons = parseField(gallonsColumn, res.Gallons, &out.Unparsed)
	out.PricePerGallon = parseField(pricePerGallonColumn, res.PricePerGallon, &out.Unparsed)
	out.TotalAmount = parseField(totalAmountColumn, res.TotalAmount, &out.Unparsed)
	return out
}

func parseField(col amountColumn, raw string, unparsed *[]string) decimal.NullDecimal {
	v, ok := col.parse(raw)
	if !ok {
		*unparsed = append(*unparsed, col.name)
	}
	return v
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Updates returns the column set written when a receipt completes.
func (e Extracted) Updates(now time.Time) map[string]any {
	return map[string]any{
		"purchase_date":    e.PurchaseDate,
		"station_name":     e.StationName,
		"seller_address":   e.SellerAddress,
		"seller_city":      e.SellerCity,
		"seller_state":     e.SellerState,
		"seller_zip":       e.SellerZip,
		"fuel_type":        e.FuelType,
		"gallons":          e.Gallons,
		"price_per_gallon": e.PricePerGallon,
		"total_amount":     e.TotalAmount,
		"fiscal_year":      e.FiscalYear,
		"processing_error": e.Warning,
		"completed_at":     now,
		"updated_at":       now,
	}
}
