package refunds

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fueltax-backend/pkg/enums"
)

func eligible(fy, amount string) Item {
	a := decimal.RequireFromString(amount)
	return Item{FiscalYear: fy, Result: Result{Eligible: true, Reason: enums.RefundReasonEligible, Amount: a, Display: Round(a)}}
}

func sampleItems() []Item {
	return []Item{
		eligible("2023-2024", "0.7875"),
		eligible("2023-2024", "0.7875"),
		eligible("2023-2024", "0.3333"),
		eligible("2024-2025", "1.005"),
		eligible("2024-2025", "0.0049"),
		{FiscalYear: "2024-2025", Result: ineligible(enums.RefundReasonOutOfState)},
		{FiscalYear: "2022-2023", Result: ineligible(enums.RefundReasonNoRate)},
	}
}

func TestAggregateRoundOnce(t *testing.T) {
	totals := Aggregate(sampleItems(), RoundOnce)
	// 0.7875 + 0.7875 + 0.3333 = 1.9083
	assert.Equal(t, "1.91", totals["2023-2024"].StringFixed(2))
	// 1.005 + 0.0049 = 1.0099
	assert.Equal(t, "1.01", totals["2024-2025"].StringFixed(2))
	_, ok := totals["2022-2023"]
	assert.False(t, ok, "fiscal years without eligible receipts are omitted")
}

func TestAggregateRoundPerItem(t *testing.T) {
	totals := Aggregate(sampleItems(), RoundPerItem)
	// 0.79 + 0.79 + 0.33
	assert.Equal(t, "1.91", totals["2023-2024"].StringFixed(2))
	// 1.01 + 0.00
	assert.Equal(t, "1.01", totals["2024-2025"].StringFixed(2))
}

func TestAggregateModesDiverge(t *testing.T) {
	items := []Item{eligible("2023-2024", "0.004"), eligible("2023-2024", "0.004")}
	assert.Equal(t, "0.01", Aggregate(items, RoundOnce)["2023-2024"].StringFixed(2))
	assert.Equal(t, "0.00", Aggregate(items, RoundPerItem)["2023-2024"].StringFixed(2))
}

func TestAggregateIsPermutationInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, mode := range []RoundingMode{RoundOnce, RoundPerItem} {
		want := Aggregate(sampleItems(), mode)
		for i := 0; i < 50; i++ {
			items := sampleItems()
			rng.Shuffle(len(items), func(a, b int) { items[a], items[b] = items[b], items[a] })
			got := Aggregate(items, mode)
			require.Len(t, got, len(want))
			for fy, total := range want {
				require.True(t, total.Equal(got[fy]), "mode %s fy %s: %s != %s", mode, fy, total, got[fy])
			}
		}
	}
}

func TestParseRoundingMode(t *testing.T) {
	mode, err := ParseRoundingMode("")
	require.NoError(t, err)
	assert.Equal(t, RoundOnce, mode)

	mode, err = ParseRoundingMode("ROUND_PER_ITEM")
	require.NoError(t, err)
	assert.Equal(t, RoundPerItem, mode)

	_, err = ParseRoundingMode("bankers")
	assert.Error(t, err)
}
