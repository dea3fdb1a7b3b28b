// Package extraction turns a fuel receipt image into structured fields.
package extraction

import (
	"context"
	"errors"
	"time"
)

// ErrNoContent is returned when the model answered without usable output.
var ErrNoContent = errors.New("extractor returned no content")

// Result holds the fields read off a receipt. Numeric fields are the raw text
// the model produced; callers normalize them. PurchaseDate is nil when no
// date could be read.
type Result struct {
	PurchaseDate   *time.Time
	StationName    string
	SellerAddress  string
	SellerCity     string
	SellerState    string
	SellerZip      string
	FuelType       string
	Gallons        string
	PricePerGallon string
	TotalAmount    string
}

// Extractor reads a receipt image. Implementations must honor ctx
// cancellation.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mime string) (*Result, error)
}

// Func adapts a function to Extractor.
type Func func(ctx context.Context, data []byte, mime string) (*Result, error)

func (f Func) Extract(ctx context.Context, data []byte, mime string) (*Result, error) {
	return f(ctx, data, mime)
}
