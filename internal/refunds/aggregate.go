package refunds

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundingMode selects how per-receipt refunds become a fiscal year total.
type RoundingMode string

const (
	// RoundOnce sums full-precision amounts and rounds each total once.
	RoundOnce RoundingMode = "round_once"
	// RoundPerItem rounds every receipt to cents before summing.
	RoundPerItem RoundingMode = "round_per_item"
)

// ParseRoundingMode defaults to RoundOnce for empty input.
func ParseRoundingMode(raw string) (RoundingMode, error) {
	switch RoundingMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RoundOnce:
		return RoundOnce, nil
	case RoundPerItem:
		return RoundPerItem, nil
	default:
		return "", fmt.Errorf("unknown refund rounding mode %q", raw)
	}
}

// Item is one receipt's contribution to its fiscal year.
type Item struct {
	FiscalYear string
	Result     Result
}

// Aggregate totals eligible refunds per fiscal year. Ineligible items are
// skipped, and fiscal years with no eligible receipt are absent. The result
// does not depend on the order of items.
func Aggregate(items []Item, mode RoundingMode) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, it := range items {
		if !it.Result.Eligible {
			continue
		}
		amount := it.Result.Amount
		if mode == RoundPerItem {
			amount = Round(amount)
		}
		totals[it.FiscalYear] = totals[it.FiscalYear].Add(amount)
	}
	for fy, total := range totals {
		totals[fy] = Round(total)
	}
	return totals
}
