package report

import (
	"math"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/series"
)

// Metrics summarizes one equity curve. CAGR keeps its upper-case JSON
// key from the original report consumers.
type Metrics struct {
	TotalReturn float64 `json:"total_return"`
	CAGR        float64 `json:"CAGR"`
	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// Tracking compares the portfolio against the benchmark.
type Tracking struct {
	ActiveReturn     float64  `json:"active_return"`
	TrackingError    float64  `json:"tracking_error"`
	InformationRatio *float64 `json:"information_ratio"` // null when the error is zero
}

// computeMetrics derives the four curve metrics from a base-100 series.
// A ratio that cannot be annualized (zero span or non-positive equity)
// falls back to the total return, which stays finite even after a
// beyond-total loss.
func computeMetrics(curve []series.Point) Metrics {
	if len(curve) == 0 {
		return Metrics{}
	}
	first, last := curve[0].Value, curve[len(curve)-1].Value
	if first == 0 {
		return Metrics{}
	}
	ratio := last / first
	total := ratio - 1.0

	cagr := total
	if days := curve[0].Date.DaysUntil(curve[len(curve)-1].Date); days > 0 && ratio > 0 {
		cagr = math.Pow(ratio, 365.25/float64(days)) - 1.0
	}

	return Metrics{
		TotalReturn: round6(total),
		CAGR:        round6(cagr),
		Volatility:  round6(annualizedVolatility(curve)),
		MaxDrawdown: round6(maxDrawdown(curve)),
	}
}

// computeTracking inner-joins the two curves' monthly returns on the
// calendar month and annualizes the stdev of the differences.
func computeTracking(portfolio, benchmark []series.Point, portfolioCAGR, benchmarkCAGR float64) Tracking {
	benchByMonth := make(map[int]float64)
	for _, r := range monthlyReturns(benchmark) {
		benchByMonth[r.month] = r.ret
	}
	var diffs []float64
	for _, r := range monthlyReturns(portfolio) {
		if b, ok := benchByMonth[r.month]; ok {
			diffs = append(diffs, r.ret-b)
		}
	}

	tr := Tracking{
		ActiveReturn:  round6(portfolioCAGR - benchmarkCAGR),
		TrackingError: round6(sampleStdev(diffs) * math.Sqrt(12)),
	}
	if tr.TrackingError > 0 {
		ir := round6(tr.ActiveReturn / tr.TrackingError)
		tr.InformationRatio = &ir
	}
	return tr
}

// monthlyReturn is one month-end-to-month-end return, keyed by the
// later month as year*100+month.
type monthlyReturn struct {
	month int
	ret   float64
}

func monthKey(d dates.Date) int {
	return d.Year()*100 + int(d.Month())
}

// monthlyReturns keeps the last observation of each calendar month and
// returns the consecutive month-end returns.
func monthlyReturns(curve []series.Point) []monthlyReturn {
	var ends []series.Point
	for _, p := range curve {
		if len(ends) > 0 && monthKey(ends[len(ends)-1].Date) == monthKey(p.Date) {
			ends[len(ends)-1] = p
			continue
		}
		ends = append(ends, p)
	}

	var out []monthlyReturn
	for i := 1; i < len(ends); i++ {
		prev := ends[i-1].Value
		if prev == 0 {
			continue
		}
		out = append(out, monthlyReturn{
			month: monthKey(ends[i].Date),
			ret:   ends[i].Value/prev - 1.0,
		})
	}
	return out
}

func annualizedVolatility(curve []series.Point) float64 {
	rets := monthlyReturns(curve)
	xs := make([]float64, len(rets))
	for i, r := range rets {
		xs[i] = r.ret
	}
	return sampleStdev(xs) * math.Sqrt(12)
}

// maxDrawdown is the worst peak-to-trough loss, 0 for a curve that
// never dips under its running maximum.
func maxDrawdown(curve []series.Point) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak := curve[0].Value
	var worst float64
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := p.Value/peak - 1.0; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// sampleStdev is the n-1 standard deviation, 0 below two samples.
func sampleStdev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
