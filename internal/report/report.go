// Package report builds the end-of-career performance report: the
// replayed equity curve, risk metrics against a benchmark, theoretical
// best portfolios, data-quality warnings, and the 0-10 score the
// ranking accepts.
package report

import (
	"context"
	"sort"
	"strings"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/metrics"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/prices"
	"github.com/inversim/career-engine/internal/series"
)

// DefaultBenchmark is used when a report request names no benchmark.
const DefaultBenchmark = "^GSPC"

// Builder renders reports against a price provider. Wrap the provider
// in prices.Cached so repeated reports reuse fetched history.
type Builder struct {
	provider prices.Provider
}

// NewBuilder creates a report builder on top of a provider.
func NewBuilder(p prices.Provider) *Builder {
	return &Builder{provider: p}
}

// Report is the self-contained result of a career run.
type Report struct {
	SessionID       string         `json:"session_id"`
	Period          model.Period   `json:"period"`
	PortfolioEquity EquityBlock    `json:"portfolio_equity"`
	Benchmark       BenchmarkBlock `json:"benchmark"`
	Tracking        Tracking       `json:"tracking"`
	Theoretical     []Combo        `json:"theoretical,omitempty"`
	Turnover        float64        `json:"turnover"`
	Score           float64        `json:"score"`
	Stars           int            `json:"stars"`
	Warnings        []string       `json:"warnings"`
}

// EquityBlock pairs an equity curve with its metrics. The series is
// only populated when the caller asked for it.
type EquityBlock struct {
	Series  []series.Point `json:"series,omitempty"`
	Metrics Metrics        `json:"metrics"`
}

// BenchmarkBlock is the benchmark's side of the comparison.
type BenchmarkBlock struct {
	Ticker  string         `json:"ticker"`
	Series  []series.Point `json:"series,omitempty"`
	Metrics Metrics        `json:"metrics"`
}

// Build assembles the full report. The analysis range runs from the
// period start to the last completed turn's end, or across the whole
// period before any close. A benchmark without data in that range fails
// the report with series.InsufficientDataError.
func (b *Builder) Build(ctx context.Context, sess *model.Session, benchmark string, includeSeries bool) (*Report, error) {
	benchmark = strings.ToUpper(strings.TrimSpace(benchmark))
	if benchmark == "" {
		benchmark = DefaultBenchmark
	}
	rng := analysisRange(sess)

	benchCurve, err := b.benchmarkSeries(ctx, benchmark, rng)
	if err != nil {
		return nil, err
	}

	curve := equityCurve(sess, rng.End)
	portfolioMetrics := computeMetrics(curve)
	benchMetrics := computeMetrics(benchCurve)
	tracking := computeTracking(curve, benchCurve, portfolioMetrics.CAGR, benchMetrics.CAGR)
	avgTurnover := turnover(sess.History)

	rep := &Report{
		SessionID:       sess.ID,
		Period:          sess.Period,
		PortfolioEquity: EquityBlock{Metrics: portfolioMetrics},
		Benchmark:       BenchmarkBlock{Ticker: benchmark, Metrics: benchMetrics},
		Tracking:        tracking,
		Turnover:        avgTurnover,
		Warnings:        []string{},
	}
	rep.Score, rep.Stars = computeScore(portfolioMetrics.CAGR, portfolioMetrics.MaxDrawdown, tracking.TrackingError, avgTurnover)

	rep.Warnings = append(rep.Warnings, b.dataQualityWarnings(ctx, sess, rng)...)

	if combos := b.Theoretical(ctx, sess, 3); len(combos) > 0 {
		rep.Theoretical = combos
	} else {
		rep.Warnings = append(rep.Warnings, "no theoretical portfolio could be evaluated")
	}

	if includeSeries {
		rep.PortfolioEquity.Series = curve
		rep.Benchmark.Series = benchCurve
	}

	metrics.ReportsBuilt.Inc()
	return rep, nil
}

func (b *Builder) benchmarkSeries(ctx context.Context, ticker string, rng model.Period) ([]series.Point, error) {
	normalized, err := series.Normalize(ctx, b.provider, []string{ticker}, rng.Start, rng.End)
	if err != nil {
		return nil, err
	}
	curve := normalized[ticker]
	if len(curve) == 0 {
		return nil, &series.InsufficientDataError{Tickers: []string{ticker}}
	}
	return curve, nil
}

// analysisRange spans the period start through the last completed
// turn's end. Before any close it covers the whole period.
func analysisRange(sess *model.Session) model.Period {
	end := sess.Period.End
	var lastClosed dates.Date
	for _, t := range sess.Turns {
		if t.Status == model.TurnCompleted && t.End.After(lastClosed) {
			lastClosed = t.End
		}
	}
	if !lastClosed.IsZero() {
		end = lastClosed
	}
	if end.Before(sess.Period.Start) {
		end = sess.Period.Start
	}
	return model.Period{Start: sess.Period.Start, End: end}
}

// equityCurve replays the session's snapshots into a base-100 curve:
// one point at the period start, one per closed turn end. With no
// history the curve is flat across the range.
func equityCurve(sess *model.Session, rangeEnd dates.Date) []series.Point {
	curve := []series.Point{{Date: sess.Period.Start, Value: 100.0}}
	equity := 100.0
	for _, snap := range sess.History {
		equity *= 1.0 + snap.RetTotal
		curve = append(curve, series.Point{Date: snap.End, Value: round4(equity)})
	}
	if len(sess.History) == 0 && rangeEnd.After(sess.Period.Start) {
		curve = append(curve, series.Point{Date: rangeEnd, Value: 100.0})
	}
	return curve
}

// observedUniverse is the validated universe plus every ticker that
// ever appeared in a decision, plus cash, deduplicated and sorted.
func observedUniverse(sess *model.Session) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, t := range sess.Universe {
		add(t)
	}
	for _, d := range sess.Decisions {
		for _, a := range d.Allocation {
			add(a.Ticker)
		}
	}
	add(prices.CashTicker)
	sort.Strings(out)
	return out
}
