package report

import (
	"context"
	"math"
	"sort"

	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/series"
)

// maxExhaustiveCandidates is where the combination search switches from
// exhaustive enumeration to greedy extension of the best smaller set.
// Greedy results are an approximation and can miss the true optimum.
const maxExhaustiveCandidates = 30

// Combo is one theoretical equal-weight buy-and-hold portfolio.
type Combo struct {
	K           int      `json:"k"`
	Tickers     []string `json:"tickers"`
	CAGR        float64  `json:"CAGR"`
	TotalReturn float64  `json:"total_return"`
}

// Theoretical finds the best equal-weight portfolios of sizes 1..kmax
// (capped at 3) from the session's observed universe, ranked by CAGR
// with total return as tie-break. Candidates that cannot produce a
// return over the analysis range are skipped; an empty result means
// nothing was evaluable and is the caller's warning to attach.
func (b *Builder) Theoretical(ctx context.Context, sess *model.Session, kmax int) []Combo {
	if kmax < 1 {
		kmax = 1
	}
	if kmax > 3 {
		kmax = 3
	}
	rng := analysisRange(sess)
	days := rng.Start.DaysUntil(rng.End)

	growth := b.candidateGrowths(ctx, sess, rng)
	tickers := make([]string, 0, len(growth))
	for t := range growth {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	if len(tickers) == 0 {
		return nil
	}

	var combos []Combo
	var prev []string
	for k := 1; k <= kmax && k <= len(tickers); k++ {
		best := bestCombo(tickers, growth, k, prev, days)
		if best == nil {
			break
		}
		combos = append(combos, *best)
		prev = best.Tickers
	}
	return combos
}

// candidateGrowths evaluates each candidate's growth factor over the
// range, one provider call per ticker so a single bad symbol cannot
// poison the rest.
func (b *Builder) candidateGrowths(ctx context.Context, sess *model.Session, rng model.Period) map[string]float64 {
	growth := make(map[string]float64)
	for _, ticker := range observedUniverse(sess) {
		rets, err := series.RangeReturns(ctx, b.provider, []string{ticker}, rng.Start, rng.End, rng.Start, rng.End)
		if err != nil {
			continue
		}
		growth[ticker] = 1.0 + rets[ticker]
	}
	return growth
}

func bestCombo(tickers []string, growth map[string]float64, k int, prev []string, days int) *Combo {
	var best *Combo
	consider := func(set []string) {
		c := evalCombo(set, growth, days)
		if best == nil || c.CAGR > best.CAGR || (c.CAGR == best.CAGR && c.TotalReturn > best.TotalReturn) {
			best = &c
		}
	}

	if len(tickers) <= maxExhaustiveCandidates || k == 1 {
		forEachCombination(tickers, k, consider)
		return best
	}

	// Greedy: keep the best k-1 set fixed and search only the extra slot.
	inPrev := make(map[string]bool, len(prev))
	for _, t := range prev {
		inPrev[t] = true
	}
	for _, t := range tickers {
		if inPrev[t] {
			continue
		}
		consider(append(append([]string(nil), prev...), t))
	}
	return best
}

func evalCombo(set []string, growth map[string]float64, days int) Combo {
	var g float64
	for _, t := range set {
		g += growth[t]
	}
	g /= float64(len(set))

	total := g - 1.0
	cagr := total
	if days > 0 && g > 0 {
		cagr = math.Pow(g, 365.25/float64(days)) - 1.0
	}

	tickers := append([]string(nil), set...)
	sort.Strings(tickers)
	return Combo{
		K:           len(set),
		Tickers:     tickers,
		CAGR:        round6(cagr),
		TotalReturn: round6(total),
	}
}

func forEachCombination(tickers []string, k int, fn func([]string)) {
	n := len(tickers)
	switch k {
	case 1:
		for i := 0; i < n; i++ {
			fn([]string{tickers[i]})
		}
	case 2:
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				fn([]string{tickers[i], tickers[j]})
			}
		}
	case 3:
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for l := j + 1; l < n; l++ {
					fn([]string{tickers[i], tickers[j], tickers[l]})
				}
			}
		}
	}
}
