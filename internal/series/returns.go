package series

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/prices"
)

// InsufficientDataError reports every ticker that could not produce a
// return for the requested sub-range. Partial results are never
// returned alongside it.
type InsufficientDataError struct {
	Tickers []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("series: insufficient data for %s", strings.Join(e.Tickers, ", "))
}

// RangeReturns computes each ticker's price return over the sub-range
// [subStart, subEnd]. History is fetched over the full session period
// [periodStart, periodEnd] so repeated turns of the same session hit
// the provider's memo instead of the network.
//
// The start price is the first observation dated on or after subStart,
// the end price the last dated on or before subEnd. Cash tickers are
// exactly 0. Tickers missing either bound, or with a zero start price,
// are aggregated into a single InsufficientDataError.
func RangeReturns(ctx context.Context, provider prices.Provider, tickers []string, periodStart, periodEnd, subStart, subEnd dates.Date) (map[string]float64, error) {
	out := make(map[string]float64, len(tickers))
	var missing []string

	for _, ticker := range tickers {
		if _, done := out[ticker]; done {
			continue
		}
		if prices.IsCash(ticker) {
			out[ticker] = 0.0
			continue
		}

		raw, err := provider.Series(ctx, ticker, periodStart, periodEnd)
		if err != nil {
			if errors.Is(err, prices.ErrNoData) {
				missing = append(missing, ticker)
				continue
			}
			return nil, err
		}

		start, end, ok := rangeBounds(raw, subStart, subEnd)
		if !ok || start == 0 {
			missing = append(missing, ticker)
			continue
		}
		out[ticker] = round6(end/start - 1.0)
	}

	if len(missing) > 0 {
		return nil, &InsufficientDataError{Tickers: missing}
	}
	return out, nil
}

// rangeBounds finds the first close on or after subStart and the last
// close on or before subEnd.
func rangeBounds(raw []prices.Point, subStart, subEnd dates.Date) (start, end float64, ok bool) {
	var haveStart, haveEnd bool
	for _, p := range raw {
		if !haveStart && !p.Date.Before(subStart) {
			start = p.Close
			haveStart = true
		}
		if !p.Date.After(subEnd) {
			end = p.Close
			haveEnd = true
		}
	}
	return start, end, haveStart && haveEnd
}

// WeightedReturn is the allocation-weighted sum of per-ticker returns.
// Summation runs in ticker order so the result is reproducible; tickers
// absent from returns contribute nothing.
func WeightedReturn(weights map[string]float64, returns map[string]float64) float64 {
	tickers := make([]string, 0, len(weights))
	for ticker := range weights {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var total float64
	for _, ticker := range tickers {
		total += weights[ticker] * returns[ticker]
	}
	return round6(total)
}
