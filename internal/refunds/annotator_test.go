package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fueltax-backend/internal/taxrates"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

type scheduleRepo struct {
	calls int
}

func (s *scheduleRepo) FindEffective(ctx context.Context, fuelType enums.FuelType, date time.Time) (*models.TaxRate, error) {
	s.calls++
	if date.Before(time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)) {
		return nil, nil
	}
	return &models.TaxRate{Increase: decimal.RequireFromString("0.075")}, nil
}

func TestAnnotatorAnnotatesAndTotals(t *testing.T) {
	repo := &scheduleRepo{}
	resolver, err := taxrates.NewResolver(repo)
	require.NoError(t, err)
	annotator, err := NewAnnotator(resolver, NewCalculator("MO", nil), RoundOnce)
	require.NoError(t, err)

	a := *completedReceipt("MO", gallons("10.5"))
	b := *completedReceipt("MO", gallons("10.5"))
	old := *completedReceipt("MO", gallons("8"))
	old.PurchaseDate = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	old.FiscalYear = "2019-2020"
	kansas := *completedReceipt("KS", gallons("12"))
	pending := *completedReceipt("MO", gallons("1"))
	pending.ProcessingStatus = enums.ProcessingStatusPending

	out, totals, err := annotator.Annotate(context.Background(), []models.Receipt{a, b, old, kansas, pending})
	require.NoError(t, err)
	require.Len(t, out, 5)

	assert.Equal(t, "0.79", out[0].Refund.Display.StringFixed(2))
	assert.Equal(t, enums.RefundReasonNoRate, out[2].Refund.Reason)
	assert.Equal(t, enums.RefundReasonOutOfState, out[3].Refund.Reason)
	assert.Equal(t, enums.RefundReasonNotCompleted, out[4].Refund.Reason)

	// 0.7875 * 2 = 1.575
	assert.Equal(t, "1.58", totals["2023-2024"].StringFixed(2))
	assert.Len(t, totals, 1)
	// a, b share a key; old has its own. kansas and pending need no rate.
	assert.Equal(t, 2, repo.calls)
}

func TestAnnotateOne(t *testing.T) {
	resolver, _ := taxrates.NewResolver(&scheduleRepo{})
	annotator, err := NewAnnotator(resolver, NewCalculator("MO", nil), "")
	require.NoError(t, err)

	got, err := annotator.AnnotateOne(context.Background(), *completedReceipt("MO", gallons("2")))
	require.NoError(t, err)
	assert.True(t, got.Refund.Eligible)
	assert.Equal(t, "0.15", got.Refund.Display.StringFixed(2))
}
