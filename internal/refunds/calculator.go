// Package refunds computes the fuel tax refund earned by completed receipts
// and totals it per fiscal year.
package refunds

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
)

// DisplayPlaces is the precision refunds are shown with.
const DisplayPlaces = 2

// Result is the refund outcome of one receipt. Amount keeps full precision
// for aggregation; Display is rounded half-up to cents.
type Result struct {
	Eligible bool
	Reason   enums.RefundReason
	Amount   decimal.Decimal
	Display  decimal.Decimal
}

func ineligible(reason enums.RefundReason) Result {
	return Result{Reason: reason, Amount: decimal.Zero, Display: decimal.Zero}
}

// Round applies half-up rounding to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(DisplayPlaces)
}

// Calculator applies the home-state eligibility rule.
type Calculator struct {
	homeState string
	logg      *logger.Logger
}

func NewCalculator(homeState string, logg *logger.Logger) *Calculator {
	return &Calculator{homeState: normalizeState(homeState), logg: logg}
}

func normalizeState(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NeedsRate reports whether the receipt passes every check that does not
// depend on the tax rate, so callers only resolve rates they will use.
func (c *Calculator) NeedsRate(r *models.Receipt) bool {
	return c.precheck(r) == ""
}

func (c *Calculator) precheck(r *models.Receipt) enums.RefundReason {
	if r == nil || r.ProcessingStatus != enums.ProcessingStatusCompleted {
		return enums.RefundReasonNotCompleted
	}
	if r.SellerState == nil || normalizeState(*r.SellerState) != c.homeState {
		return enums.RefundReasonOutOfState
	}
	if !r.Gallons.Valid || !r.Gallons.Decimal.IsPositive() {
		return enums.RefundReasonParseError
	}
	return ""
}

// Calculate evaluates r against rate. It never fails: any missing input
// yields a zero refund and the reason.
func (c *Calculator) Calculate(ctx context.Context, r *models.Receipt, rate *models.TaxRate) Result {
	if reason := c.precheck(r); reason != "" {
		if reason == enums.RefundReasonParseError {
			c.warn(ctx, r, "receipt gallons missing or not positive; refund set to zero")
		}
		return ineligible(reason)
	}
	if rate == nil {
		c.warn(ctx, r, "no tax rate covers purchase date; refund set to zero")
		return ineligible(enums.RefundReasonNoRate)
	}

	amount := r.Gallons.Decimal.Mul(rate.Increase)
	return Result{
		Eligible: true,
		Reason:   enums.RefundReasonEligible,
		Amount:   amount,
		Display:  Round(amount),
	}
}

func (c *Calculator) warn(ctx context.Context, r *models.Receipt, msg string) {
	if c.logg == nil || r == nil {
		return
	}
	ctx = c.logg.WithReceiptID(ctx, r.ID.String())
	c.logg.Warn(ctx, msg)
}
