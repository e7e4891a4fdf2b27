package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/prices"
)

// Data-quality thresholds: an instrument should cover at least 80% of
// the range's business days, with no gap longer than 10 of them.
const (
	minCoverage        = 0.80
	maxGapBusinessDays = 10
)

// dataQualityWarnings screens every non-cash observed instrument over
// the analysis range. Warnings are advisory; they never fail a report.
func (b *Builder) dataQualityWarnings(ctx context.Context, sess *model.Session, rng model.Period) []string {
	var warnings []string

	allocated := allocatedTickers(sess)
	for _, t := range sess.RejectedUniverse {
		if allocated[t] {
			warnings = append(warnings, fmt.Sprintf("%s was rejected at creation but later allocated", t))
		}
	}

	expected := len(dates.BusinessDays(rng.Start, rng.End))
	for _, ticker := range observedUniverse(sess) {
		if prices.IsCash(ticker) {
			continue
		}
		raw, err := b.provider.Series(ctx, ticker, rng.Start, rng.End)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: history unavailable for %s..%s", ticker, rng.Start, rng.End))
			continue
		}
		if len(raw) < 2 {
			warnings = append(warnings, fmt.Sprintf("%s: only %d observation(s) in %s..%s", ticker, len(raw), rng.Start, rng.End))
			continue
		}
		if expected > 0 {
			if coverage := float64(len(raw)) / float64(expected); coverage < minCoverage {
				warnings = append(warnings, fmt.Sprintf("%s: covers %.0f%% of expected business days", ticker, coverage*100))
			}
		}
		for i := 1; i < len(raw); i++ {
			if gap := businessDaysBetween(raw[i-1].Date, raw[i].Date); gap > maxGapBusinessDays {
				warnings = append(warnings, fmt.Sprintf("%s: %d-business-day gap before %s", ticker, gap, raw[i].Date))
				break
			}
		}
	}
	return warnings
}

func allocatedTickers(sess *model.Session) map[string]bool {
	out := make(map[string]bool)
	for _, d := range sess.Decisions {
		for _, a := range d.Allocation {
			out[strings.ToUpper(strings.TrimSpace(a.Ticker))] = true
		}
	}
	return out
}

// businessDaysBetween counts business days strictly between two dates.
func businessDaysBetween(a, b dates.Date) int {
	if !b.After(a) {
		return 0
	}
	n := 0
	for d := a.AddDays(1); d.Before(b); d = d.AddDays(1) {
		if d.IsBusinessDay() {
			n++
		}
	}
	return n
}
