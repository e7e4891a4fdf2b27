// Package prices defines the historical price source used by the simulation
// engine. The engine only ever consumes daily adjusted closes; the provider
// behind the interface is an external, unreliable, rate-limited service.
package prices

import (
	"context"
	"errors"
	"fmt"

	"github.com/inversim/career-engine/internal/dates"
)

// Point is one daily observation of an instrument's adjusted close.
type Point struct {
	Date  dates.Date `json:"date"`
	Close float64    `json:"close"`
}

// ErrNoData marks a symbol/range the underlying source has nothing for.
// It is distinguishable (errors.Is) from transient fetch failures, which
// surface as ordinary errors.
var ErrNoData = errors.New("prices: no historical data")

// NoDataFor wraps ErrNoData with the offending ticker.
func NoDataFor(ticker string) error {
	return fmt.Errorf("%w for %s", ErrNoData, ticker)
}

// Provider returns the daily adjusted-close series for a ticker over an
// inclusive date range, in ascending date order. Implementations must never
// be asked about synthetic cash tickers; callers filter those out first.
type Provider interface {
	Series(ctx context.Context, ticker string, start, end dates.Date) ([]Point, error)
}

// Cash tickers are synthetic: flat value, never fetched.
const (
	CashTicker    = "CASH"
	CashTickerUSD = "CASH:USD"
)

// IsCash reports whether a ticker is the synthetic cash instrument.
func IsCash(ticker string) bool {
	return ticker == CashTicker || ticker == CashTickerUSD
}
