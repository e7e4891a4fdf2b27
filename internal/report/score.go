package report

import (
	"math"
	"sort"

	"github.com/inversim/career-engine/internal/model"
)

// Score component caps. A 20% CAGR maxes the growth component; a
// drawdown, tracking error, or turnover at or past its cap zeroes that
// component.
const (
	scoreCAGRTarget  = 0.20
	scoreDrawdownCap = 0.50
	scoreTrackingCap = 0.30
	scoreTurnoverCap = 0.50
)

// computeScore blends the four report components into a 0-10 score and
// a 1-10 star count.
func computeScore(cagr, maxDD, trackingError, avgTurnover float64) (float64, int) {
	cagrC := clamp01(cagr / scoreCAGRTarget)
	ddC := clamp01((scoreDrawdownCap - math.Min(math.Abs(maxDD), scoreDrawdownCap)) / scoreDrawdownCap)
	teC := clamp01((scoreTrackingCap - math.Min(trackingError, scoreTrackingCap)) / scoreTrackingCap)
	toC := clamp01((scoreTurnoverCap - math.Min(avgTurnover, scoreTurnoverCap)) / scoreTurnoverCap)

	score := round2(10 * (0.45*cagrC + 0.25*ddC + 0.20*teC + 0.10*toC))

	stars := int(math.Round(score))
	if stars < 1 {
		stars = 1
	}
	if stars > 10 {
		stars = 10
	}
	return score, stars
}

// turnover is the mean one-way turnover between consecutive snapshot
// allocations: 0.5 × Σ|Δweight| per rebalance, 0 below two snapshots.
func turnover(history []model.TurnSnapshot) float64 {
	if len(history) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(history); i++ {
		sum += 0.5 * allocationDistance(history[i-1].Allocation, history[i].Allocation)
	}
	return round6(sum / float64(len(history)-1))
}

// allocationDistance sums |Δweight| across the union of both
// allocations' tickers, in sorted order for reproducible float sums.
func allocationDistance(a, b []model.Allocation) float64 {
	wa, wb := weightsOf(a), weightsOf(b)

	union := make(map[string]bool, len(wa)+len(wb))
	for t := range wa {
		union[t] = true
	}
	for t := range wb {
		union[t] = true
	}
	tickers := make([]string, 0, len(union))
	for t := range union {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var d float64
	for _, t := range tickers {
		d += math.Abs(wb[t] - wa[t])
	}
	return d
}

func weightsOf(alloc []model.Allocation) map[string]float64 {
	m := make(map[string]float64, len(alloc))
	for _, a := range alloc {
		m[a.Ticker] += a.Weight
	}
	return m
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
func round4(x float64) float64 { return math.Round(x*1e4) / 1e4 }
func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
