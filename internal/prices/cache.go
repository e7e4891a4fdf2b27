package prices

import (
	"context"
	"sync"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/metrics"
)

// seriesKey identifies one memoized range fetch.
type seriesKey struct {
	ticker string
	start  dates.Date
	end    dates.Date
}

// Cached wraps a Provider with an in-process memo of range fetches.
// Entries never expire: the engine only asks for historical ranges that
// ended in the past, so a series fetched once stays valid for the life
// of the process. Errors are not memoized; a failed fetch is retried on
// the next call.
type Cached struct {
	inner Provider

	mu   sync.RWMutex
	data map[seriesKey][]Point
}

// NewCached returns a caching wrapper around inner.
func NewCached(inner Provider) *Cached {
	return &Cached{
		inner: inner,
		data:  make(map[seriesKey][]Point),
	}
}

// Series returns the cached points for (ticker, start, end), fetching
// from the wrapped provider on a miss. Callers must not mutate the
// returned slice; the engine treats price series as read-only.
func (c *Cached) Series(ctx context.Context, ticker string, start, end dates.Date) ([]Point, error) {
	key := seriesKey{ticker: ticker, start: start, end: end}

	c.mu.RLock()
	pts, ok := c.data[key]
	c.mu.RUnlock()
	if ok {
		metrics.PriceCacheHits.Inc()
		return pts, nil
	}

	metrics.PriceCacheMisses.Inc()
	pts, err := c.inner.Series(ctx, ticker, start, end)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.data[key] = pts
	c.mu.Unlock()
	return pts, nil
}

// Len reports how many ranges are cached.
func (c *Cached) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
