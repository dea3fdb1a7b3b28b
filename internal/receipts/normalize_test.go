package receipts

import (
	"testing"
	"time"

	"github.com/angelmondragon/fueltax-backend/internal/extraction"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"10.5", "10.5", true},
		{"$45.20", "45.2", true},
		{" 1,234.56 USD", "1234.56", true},
		{"3.499 ", "3.499", true},
		{"", "", false},
		{"$", "", false},
		{"ten", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseAmount(tc.raw)
		if ok != tc.ok {
			t.Fatalf("ParseAmount(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
		}
		if !ok {
			if got.Valid {
				t.Fatalf("ParseAmount(%q) returned a value for unparsable input", tc.raw)
			}
			continue
		}
		if got.Decimal.String() != tc.want {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.raw, got.Decimal.String(), tc.want)
		}
	}
}

func TestNormalizeFullResult(t *testing.T) {
	date := time.Date(2024, 8, 3, 0, 0, 0, 0, time.UTC)
	res := &extraction.Result{
		PurchaseDate:   &date,
		StationName:    "  Casey's ",
		SellerCity:     "Columbia",
		SellerState:    "mo",
		FuelType:       "diesel",
		Gallons:        "12.345",
		PricePerGallon: "$3.19",
		TotalAmount:    "39.38",
	}
	out := Normalize(res, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), enums.FuelTypeGasoline)

	if out.StationName != "Casey's" {
		t.Fatalf("station = %q", out.StationName)
	}
	if out.SellerState == nil || *out.SellerState != "MO" {
		t.Fatalf("state = %v", out.SellerState)
	}
	if out.SellerAddress != nil {
		t.Fatalf("empty address should be nil")
	}
	if out.FuelType != enums.FuelTypeDiesel {
		t.Fatalf("fuel = %s", out.FuelType)
	}
	if out.FiscalYear != "2024-2025" {
		t.Fatalf("fiscal year = %s", out.FiscalYear)
	}
	if !out.Gallons.Valid || out.Gallons.Decimal.String() != "12.345" {
		t.Fatalf("gallons = %+v", out.Gallons)
	}
	if out.PricePerGallon.Decimal.String() != "3.19" {
		t.Fatalf("price = %s", out.PricePerGallon.Decimal)
	}
	if out.Warning != nil {
		t.Fatalf("unexpected warning %q", *out.Warning)
	}
	if len(out.Unparsed) != 0 {
		t.Fatalf("unexpected unparsed fields %v", out.Unparsed)
	}
}

func TestNormalizeMissingDateDefaultsToToday(t *testing.T) {
	today := time.Date(2025, 6, 30, 18, 45, 0, 0, time.UTC)
	out := Normalize(&extraction.Result{StationName: "QuikTrip"}, today, enums.FuelTypeGasoline)

	if !out.PurchaseDate.Equal(time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("purchase date = %s", out.PurchaseDate)
	}
	if out.FiscalYear != "2024-2025" {
		t.Fatalf("fiscal year = %s", out.FiscalYear)
	}
	if out.Warning == nil || *out.Warning != MissingDateWarning {
		t.Fatalf("expected missing date warning, got %v", out.Warning)
	}
}

func TestNormalizeKeepsDefaultsForUnreadableFields(t *testing.T) {
	out := Normalize(&extraction.Result{FuelType: "kerosene", Gallons: "lots", TotalAmount: ""}, time.Now(), enums.FuelTypeGasoline)

	if out.StationName != "Unknown station" {
		t.Fatalf("station = %q", out.StationName)
	}
	if out.FuelType != enums.FuelTypeGasoline {
		t.Fatalf("fuel = %s", out.FuelType)
	}
	if out.Gallons.Valid {
		t.Fatalf("gallons should be null")
	}
	if out.TotalAmount.Valid {
		t.Fatalf("total should be null")
	}
	if len(out.Unparsed) != 1 || out.Unparsed[0] != "gallons" {
		t.Fatalf("unparsed = %v", out.Unparsed)
	}
}

func TestNormalizeNilResult(t *testing.T) {
	out := Normalize(nil, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), enums.FuelTypeDiesel)
	if out.FuelType != enums.FuelTypeDiesel || out.FiscalYear != "2024-2025" || out.Warning == nil {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestExtractedUpdatesCarryWarning(t *testing.T) {
	now := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	out := Normalize(&extraction.Result{}, now, enums.FuelTypeGasoline)
	updates := out.Updates(now)
	if updates["processing_error"] != out.Warning {
		t.Fatalf("processing_error should carry the warning")
	}
	if updates["completed_at"] != now {
		t.Fatalf("completed_at = %v", updates["completed_at"])
	}
	if updates["fiscal_year"] != "2024-2025" {
		t.Fatalf("fiscal_year = %v", updates["fiscal_year"])
	}
}

func TestNormalizeDropsValuesOutsideColumnRange(t *testing.T) {
	res := &extraction.Result{
		Gallons:        "-5.25",
		PricePerGallon: "1234567890.5",
		TotalAmount:    "123456789012.00",
	}
	out := Normalize(res, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), enums.FuelTypeGasoline)

	if out.Gallons.Valid || out.PricePerGallon.Valid || out.TotalAmount.Valid {
		t.Fatalf("expected out of range values stored as NULL, got %+v %+v %+v", out.Gallons, out.PricePerGallon, out.TotalAmount)
	}
	want := []string{"gallons", "price_per_gallon", "total_amount"}
	if len(out.Unparsed) != len(want) {
		t.Fatalf("unparsed = %v, want %v", out.Unparsed, want)
	}
	for i, name := range want {
		if out.Unparsed[i] != name {
			t.Fatalf("unparsed = %v, want %v", out.Unparsed, want)
		}
	}
}

func TestAmountColumnRoundsToScale(t *testing.T) {
	got, ok := totalAmountColumn.parse("$1,234.505")
	if !ok || got.Decimal.String() != "1234.51" {
		t.Fatalf("parse = %+v %v, want 1234.51", got, ok)
	}
	if got, ok := gallonsColumn.parse("  "); !ok || got.Valid {
		t.Fatalf("blank text should be NULL without a parse failure, got %+v %v", got, ok)
	}
	if _, ok := gallonsColumn.parse("999999999.9999"); ok {
		t.Fatal("expected value rounding past the column limit to be rejected")
	}
}
