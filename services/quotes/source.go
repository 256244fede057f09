package quotes

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a single price observation from the provider
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// Source is the pluggable quote provider the price cache fetches from.
// Implementations return the apperrors taxonomy: ErrSymbolNotFound when
// the provider has no data for the symbol, ErrUpstreamTimeout when the
// call exceeds its deadline, ErrUpstreamError for any other transport
// or decode failure.
type Source interface {
	Fetch(ctx context.Context, symbol string) (Quote, error)
}
