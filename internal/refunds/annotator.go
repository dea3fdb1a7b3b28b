package refunds

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fueltax-backend/internal/taxrates"
	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
)

// Annotated pairs a receipt with its refund outcome.
type Annotated struct {
	Receipt models.Receipt
	Refund  Result
}

// Annotator resolves rates for a page of receipts and computes their refunds.
type Annotator struct {
	resolver *taxrates.Resolver
	calc     *Calculator
	mode     RoundingMode
}

func NewAnnotator(resolver *taxrates.Resolver, calc *Calculator, mode RoundingMode) (*Annotator, error) {
	if resolver == nil {
		return nil, fmt.Errorf("tax rate resolver required")
	}
	if calc == nil {
		return nil, fmt.Errorf("refund calculator required")
	}
	if mode == "" {
		mode = RoundOnce
	}
	return &Annotator{resolver: resolver, calc: calc, mode: mode}, nil
}

// Annotate computes refunds for receipts with a single request-scoped rate
// cache and returns the per fiscal year totals.
func (a *Annotator) Annotate(ctx context.Context, receipts []models.Receipt) ([]Annotated, map[string]decimal.Decimal, error) {
	batch := a.resolver.NewBatch()

	keys := make([]taxrates.Key, 0, len(receipts))
	for i := range receipts {
		if a.calc.NeedsRate(&receipts[i]) {
			keys = append(keys, taxrates.Key{FuelType: receipts[i].FuelType, Date: receipts[i].PurchaseDate})
		}
	}
	if err := batch.ResolveAll(ctx, keys); err != nil {
		return nil, nil, err
	}

	out := make([]Annotated, 0, len(receipts))
	items := make([]Item, 0, len(receipts))
	for i := range receipts {
		r := &receipts[i]
		var rate *models.TaxRate
		if a.calc.NeedsRate(r) {
			resolved, err := batch.Resolve(ctx, r.FuelType, r.PurchaseDate)
			if err != nil {
				return nil, nil, err
			}
			rate = resolved
		}
		result := a.calc.Calculate(ctx, r, rate)
		out = append(out, Annotated{Receipt: *r, Refund: result})
		items = append(items, Item{FiscalYear: r.FiscalYear, Result: result})
	}
	return out, Aggregate(items, a.mode), nil
}

// AnnotateOne is Annotate for a single receipt.
func (a *Annotator) AnnotateOne(ctx context.Context, receipt models.Receipt) (Annotated, error) {
	out, _, err := a.Annotate(ctx, []models.Receipt{receipt})
	if err != nil {
		return Annotated{}, err
	}
	return out[0], nil
}
