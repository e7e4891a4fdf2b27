// Package series turns raw price history into the rebased index series
// and period returns the career engine works with.
package series

import (
	"context"
	"errors"
	"math"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/prices"
)

// Point is one observation of a base-100 index series.
type Point struct {
	Date  dates.Date `json:"date"`
	Value float64    `json:"value"`
}

// Normalize fetches each ticker's history over [start, end] and rebases
// it so the first in-range observation is exactly 100. Tickers without
// data map to an empty series; only transient provider failures abort
// the whole call.
//
// Synthetic cash tickers never reach the provider. They are emitted as
// a flat 100 line over the anchor dates: the trading calendar of the
// first non-cash ticker whose fetch returned rows, or the Mon-Fri
// business days of the range when none did.
func Normalize(ctx context.Context, provider prices.Provider, tickers []string, start, end dates.Date) (map[string][]Point, error) {
	out := make(map[string][]Point, len(tickers))
	var anchor []dates.Date
	var cash []string

	for _, ticker := range tickers {
		if _, done := out[ticker]; done {
			continue
		}
		if prices.IsCash(ticker) {
			out[ticker] = nil
			cash = append(cash, ticker)
			continue
		}

		raw, err := provider.Series(ctx, ticker, start, end)
		if err != nil {
			if errors.Is(err, prices.ErrNoData) {
				out[ticker] = []Point{}
				continue
			}
			return nil, err
		}
		out[ticker] = rebase(raw)
		// The anchor follows the raw rows, not the rebased series: a
		// ticker whose zero base keeps its index empty still trades on
		// real dates, and cash should follow that calendar.
		if anchor == nil && len(raw) > 0 {
			anchor = make([]dates.Date, len(raw))
			for i, p := range raw {
				anchor[i] = p.Date
			}
		}
	}

	if len(cash) > 0 {
		if anchor == nil {
			anchor = dates.BusinessDays(start, end)
		}
		flat := make([]Point, len(anchor))
		for i, d := range anchor {
			flat[i] = Point{Date: d, Value: 100.0}
		}
		for _, ticker := range cash {
			out[ticker] = flat
		}
	}
	return out, nil
}

// rebase converts raw closes to a base-100 index, 4 decimal places. A
// zero first close cannot be rebased and yields an empty series.
func rebase(raw []prices.Point) []Point {
	if len(raw) == 0 {
		return []Point{}
	}
	base := raw[0].Close
	if base == 0 {
		return []Point{}
	}
	out := make([]Point, len(raw))
	for i, p := range raw {
		out[i] = Point{Date: p.Date, Value: round4(p.Close / base * 100.0)}
	}
	return out
}

func round4(x float64) float64 { return math.Round(x*1e4) / 1e4 }
func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
