package report

import (
	"fmt"
	"math"

	charts "github.com/vicanso/go-charts/v2"

	"github.com/inversim/career-engine/internal/series"
)

// RenderChart draws the portfolio and benchmark equity curves of a
// report as a PNG. Both lines are sampled at the portfolio curve's turn
// boundaries so they share one axis; the benchmark carries its last
// value forward between its own observations.
func RenderChart(rep *Report) ([]byte, error) {
	portfolio := rep.PortfolioEquity.Series
	if len(portfolio) == 0 {
		return nil, fmt.Errorf("report: no series to draw; build the report with series included")
	}

	labels := make([]string, len(portfolio))
	values := make([]float64, len(portfolio))
	for i, p := range portfolio {
		labels[i] = p.Date.String()
		values[i] = p.Value
	}
	bench := sampleAt(rep.Benchmark.Series, portfolio)

	yMin, yMax := chartBounds(values, bench)

	splitNum := 6
	if len(labels) <= 30 {
		splitNum = len(labels) / 3
		if splitNum < 3 {
			splitNum = 3
		}
	}

	title := fmt.Sprintf("Career %s (%s .. %s)", rep.SessionID, rep.Period.Start, rep.Period.End)
	subtitle := fmt.Sprintf("Score %.2f | CAGR %.2f%% | MaxDD %.2f%% | vs %s",
		rep.Score,
		rep.PortfolioEquity.Metrics.CAGR*100,
		rep.PortfolioEquity.Metrics.MaxDrawdown*100,
		rep.Benchmark.Ticker)

	p, err := charts.LineRender(
		[][]float64{values, bench},
		charts.TitleTextOptionFunc(title, subtitle),
		charts.LegendOptionFunc(charts.LegendOption{Data: []string{"Portfolio", rep.Benchmark.Ticker}}),
		charts.XAxisOptionFunc(charts.XAxisOption{
			Data:        labels,
			SplitNumber: splitNum,
			BoundaryGap: charts.FalseFlag(),
		}),
		charts.YAxisOptionFunc(charts.YAxisOption{
			Min:         &yMin,
			Max:         &yMax,
			DivideCount: 5,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
	)
	if err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return p.Bytes()
}

// sampleAt projects the benchmark onto the portfolio curve's dates,
// holding the last known value between observations.
func sampleAt(bench []series.Point, at []series.Point) []float64 {
	out := make([]float64, len(at))
	value := 100.0
	j := 0
	for i, p := range at {
		for j < len(bench) && !bench[j].Date.After(p.Date) {
			value = bench[j].Value
			j++
		}
		out[i] = value
	}
	return out
}

func chartBounds(curves ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, curve := range curves {
		for _, v := range curve {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if lo > hi {
		return 0, 1
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Abs(hi) * 0.05
	}
	if pad == 0 {
		pad = 1
	}
	return lo - pad, hi + pad
}
