// Package taxrates resolves the fuel tax increase in effect on a purchase date.
package taxrates

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/fueltax-backend/pkg/db/models"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/fiscal"
)

type ratesRepository interface {
	FindEffective(ctx context.Context, fuelType enums.FuelType, date time.Time) (*models.TaxRate, error)
}

// Resolver hands out request-scoped lookup batches.
type Resolver struct {
	repo ratesRepository
}

// NewResolver builds a resolver over the tax rate repository.
func NewResolver(repo ratesRepository) (*Resolver, error) {
	if repo == nil {
		return nil, fmt.Errorf("tax rate repository required")
	}
	return &Resolver{repo: repo}, nil
}

// Key identifies one lookup.
type Key struct {
	FuelType enums.FuelType
	Date     time.Time
}

func newKey(fuelType enums.FuelType, date time.Time) Key {
	return Key{FuelType: fuelType, Date: fiscal.DateOnly(date)}
}

// Batch caches lookups for the lifetime of one request. It is not safe for
// concurrent use and must not outlive the request that created it.
type Batch struct {
	repo  ratesRepository
	cache map[Key]*models.TaxRate
}

// NewBatch starts an empty cache.
func (r *Resolver) NewBatch() *Batch {
	return &Batch{repo: r.repo, cache: make(map[Key]*models.TaxRate)}
}

// Resolve returns the rate effective on date, or nil when none applies.
func (b *Batch) Resolve(ctx context.Context, fuelType enums.FuelType, date time.Time) (*models.TaxRate, error) {
	key := newKey(fuelType, date)
	if rate, ok := b.cache[key]; ok {
		return rate, nil
	}
	rate, err := b.repo.FindEffective(ctx, key.FuelType, key.Date)
	if err != nil {
		return nil, fmt.Errorf("resolve %s rate on %s: %w", fuelType, key.Date.Format(time.DateOnly), err)
	}
	b.cache[key] = rate
	return rate, nil
}

// ResolveAll prefetches every distinct key so later Resolve calls are served
// from the cache.
func (b *Batch) ResolveAll(ctx context.Context, keys []Key) error {
	for _, k := range keys {
		if _, err := b.Resolve(ctx, k.FuelType, k.Date); err != nil {
			return err
		}
	}
	return nil
}
