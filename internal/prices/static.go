package prices

import (
	"context"
	"sort"

	"github.com/inversim/career-engine/internal/dates"
)

// Static serves price series from an in-memory table. It is used for
// testing and development, where hitting a live quote service is
// unwanted.
type Static struct {
	series map[string][]Point
}

// NewStatic returns a provider backed by the given table. Each series
// is sorted by date once at construction.
func NewStatic(table map[string][]Point) *Static {
	s := &Static{series: make(map[string][]Point, len(table))}
	for ticker, pts := range table {
		cp := make([]Point, len(pts))
		copy(cp, pts)
		sort.Slice(cp, func(i, j int) bool { return cp[i].Date.Before(cp[j].Date) })
		s.series[ticker] = cp
	}
	return s
}

// Series returns the points for ticker within [start, end]. Unknown
// tickers report ErrNoData, as do known tickers with no points in
// range.
func (s *Static) Series(ctx context.Context, ticker string, start, end dates.Date) ([]Point, error) {
	all, ok := s.series[ticker]
	if !ok {
		return nil, NoDataFor(ticker)
	}
	var out []Point
	for _, p := range all {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil, NoDataFor(ticker)
	}
	return out, nil
}
