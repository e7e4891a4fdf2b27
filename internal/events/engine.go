package events

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/google/uuid"

	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/prices"
)

// ErrInvalidEvent rejects a manual event payload.
var ErrInvalidEvent = errors.New("events: invalid manual event")

// Manual injection bounds.
const (
	MaxImpact   = 0.5
	MinDuration = 1
	MaxDuration = 6
)

// Draw stream constants. These are the replay contract: a session is
// reproducible from its seed only while they stay untouched.
const (
	turnFactor     = 997
	historyFactor  = 1931
	templateFactor = 97
	periodOffset   = 1543
)

// PeriodRNG returns the generator used to draw a session's period at
// creation time.
func PeriodRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed + periodOffset))
}

// templateRNG returns the draw stream for one template on one turn.
// Each template gets its own stream so adding history or reordering
// draws inside a turn cannot shift a neighbour's outcome.
func templateRNG(seed int64, turnN, historyLen, templateIdx int) *rand.Rand {
	return rand.New(rand.NewSource(seed +
		int64(turnN)*turnFactor +
		int64(historyLen)*historyFactor +
		int64(templateIdx)*templateFactor))
}

// Draw samples the catalog for turnN and returns the events that
// fire. historyLen is the number of events already logged for the
// session; it feeds the stream seed, so draws are reproducible per
// (seed, turn, history length) but not replayable out of order.
//
// Scoped templates need a target inside the allocation: sector
// templates pick among the sectors resolvable from alloc, ticker
// templates among its non-cash tickers. With no candidates the
// template is skipped even when its probability fires.
func Draw(seed int64, turnN, historyLen int, difficulty model.Difficulty, alloc []model.Allocation, sectors map[string]string) []model.Event {
	var drawn []model.Event
	for idx, tpl := range catalog {
		prob := tpl.Probability[difficulty]
		if prob <= 0 {
			continue
		}
		rng := templateRNG(seed, turnN, historyLen, idx)
		if rng.Float64() > prob {
			continue
		}

		candidates := targetCandidates(tpl.Scope, alloc, sectors)
		if tpl.Scope != model.ScopePortfolio && len(candidates) == 0 {
			continue
		}

		impact := round6(tpl.ImpactLo + rng.Float64()*(tpl.ImpactHi-tpl.ImpactLo))
		duration := drawDuration(rng, tpl)
		target := ""
		if tpl.Scope != model.ScopePortfolio {
			target = candidates[rng.Intn(len(candidates))]
		}

		drawn = append(drawn, model.Event{
			ID:             uuid.NewString(),
			TemplateID:     tpl.ID,
			Name:           tpl.Name,
			Scope:          tpl.Scope,
			Target:         target,
			ImpactPct:      impact,
			RemainingTurns: duration,
			Source:         model.EventSourceAuto,
			CreatedTurn:    turnN,
		})
	}
	return drawn
}

func drawDuration(rng *rand.Rand, tpl Template) int {
	lo := tpl.DurationLo
	if lo < MinDuration {
		lo = MinDuration
	}
	hi := tpl.DurationHi
	if hi > MaxDuration {
		hi = MaxDuration
	}
	if hi < lo {
		hi = lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// targetCandidates lists the valid targets for a scope, in allocation
// order: unique resolvable sectors for sector scope, non-cash tickers
// for ticker scope, nothing for portfolio scope.
func targetCandidates(scope model.Scope, alloc []model.Allocation, sectors map[string]string) []string {
	switch scope {
	case model.ScopePortfolio:
		return nil
	case model.ScopeTicker:
		var out []string
		for _, item := range alloc {
			if !prices.IsCash(item.Ticker) {
				out = append(out, item.Ticker)
			}
		}
		return out
	case model.ScopeSector:
		var out []string
		seen := make(map[string]bool)
		for _, item := range alloc {
			if prices.IsCash(item.Ticker) {
				continue
			}
			sector := resolveSector(item.Ticker, sectors)
			if sector == "" || seen[sector] {
				continue
			}
			seen[sector] = true
			out = append(out, sector)
		}
		return out
	}
	return nil
}

func resolveSector(ticker string, memo map[string]string) string {
	if s, ok := memo[ticker]; ok {
		return s
	}
	s, _ := SectorOf(ticker)
	return s
}

// Apply folds every live event into return shifts against alloc.
// Portfolio events accumulate into portfolioShift, but only when the
// allocation holds at least one non-cash position: parked cash has no
// market exposure for a macro event to move. Ticker events land in
// tickerShifts for their target when it is allocated; sector events on
// every allocated ticker of the matching sector. Every live event then
// loses one remaining turn, and the ones still above zero come back in
// remaining. applied holds the events that actually moved something
// this turn, pre-decay.
func Apply(active []model.Event, alloc []model.Allocation, sectors map[string]string) (portfolioShift float64, tickerShifts map[string]float64, applied, remaining []model.Event) {
	tickerShifts = make(map[string]float64)
	invested := hasNonCash(alloc)
	for _, ev := range active {
		if ev.RemainingTurns <= 0 {
			continue
		}
		hit := false
		switch ev.Scope {
		case model.ScopePortfolio:
			if invested {
				portfolioShift += ev.ImpactPct
				hit = true
			}
		case model.ScopeTicker:
			if !prices.IsCash(ev.Target) && allocated(alloc, ev.Target) {
				tickerShifts[ev.Target] += ev.ImpactPct
				hit = true
			}
		case model.ScopeSector:
			for _, item := range alloc {
				if prices.IsCash(item.Ticker) {
					continue
				}
				if sectorsEqual(resolveSector(item.Ticker, sectors), ev.Target) {
					tickerShifts[item.Ticker] += ev.ImpactPct
					hit = true
				}
			}
		}
		if hit {
			applied = append(applied, ev)
		}

		next := ev
		next.RemainingTurns--
		if next.RemainingTurns > 0 {
			remaining = append(remaining, next)
		}
	}

	portfolioShift = round6(portfolioShift)
	for ticker, shift := range tickerShifts {
		tickerShifts[ticker] = round6(shift)
	}
	return portfolioShift, tickerShifts, applied, remaining
}

func allocated(alloc []model.Allocation, ticker string) bool {
	for _, item := range alloc {
		if item.Ticker == ticker {
			return true
		}
	}
	return false
}

func hasNonCash(alloc []model.Allocation) bool {
	for _, item := range alloc {
		if !prices.IsCash(item.Ticker) {
			return true
		}
	}
	return false
}

// ManualEventInput is the payload of the inject endpoint. Pointer
// fields distinguish "absent" from zero.
type ManualEventInput struct {
	TemplateID    string   `json:"template_id"`
	Name          string   `json:"name"`
	Scope         string   `json:"scope"`
	Target        string   `json:"target"`
	ImpactPct     *float64 `json:"impact_pct"`
	DurationTurns *int     `json:"duration_turns"`
}

// ValidateManual turns a manual payload into an Event. A named
// template supplies scope, name, and defaults (midpoint impact, low
// duration bound); explicit impact and duration override them.
// Without a template, scope, impact and duration are all required.
// Impact must lie in [-0.5, 0.5] and duration in [1, 6] turns.
func ValidateManual(in ManualEventInput, turnN int) (model.Event, error) {
	var tpl Template
	hasTpl := false
	if in.TemplateID != "" {
		var ok bool
		tpl, ok = TemplateByID(in.TemplateID)
		if !ok {
			return model.Event{}, fmt.Errorf("%w: unknown template %q", ErrInvalidEvent, in.TemplateID)
		}
		hasTpl = true
	}

	scope := model.Scope(strings.ToLower(strings.TrimSpace(in.Scope)))
	switch {
	case scope == "" && hasTpl:
		scope = tpl.Scope
	case scope == "":
		return model.Event{}, fmt.Errorf("%w: scope is required without a template", ErrInvalidEvent)
	case !scope.Valid():
		return model.Event{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidEvent, in.Scope)
	case hasTpl && scope != tpl.Scope:
		return model.Event{}, fmt.Errorf("%w: scope %q conflicts with template %q", ErrInvalidEvent, scope, tpl.ID)
	}

	var impact float64
	switch {
	case in.ImpactPct != nil:
		impact = *in.ImpactPct
	case hasTpl:
		impact = (tpl.ImpactLo + tpl.ImpactHi) / 2
	default:
		return model.Event{}, fmt.Errorf("%w: impact_pct is required without a template", ErrInvalidEvent)
	}
	impact = round6(impact)
	if math.Abs(impact) > MaxImpact {
		return model.Event{}, fmt.Errorf("%w: impact_pct %v outside [-0.5, 0.5]", ErrInvalidEvent, impact)
	}

	var duration int
	switch {
	case in.DurationTurns != nil:
		duration = *in.DurationTurns
	case hasTpl:
		duration = tpl.DurationLo
	default:
		return model.Event{}, fmt.Errorf("%w: duration_turns is required without a template", ErrInvalidEvent)
	}
	if duration < MinDuration || duration > MaxDuration {
		return model.Event{}, fmt.Errorf("%w: duration_turns %d outside [1, 6]", ErrInvalidEvent, duration)
	}

	target := strings.TrimSpace(in.Target)
	switch scope {
	case model.ScopePortfolio:
		target = ""
	case model.ScopeTicker:
		target = strings.ToUpper(target)
		if target == "" {
			return model.Event{}, fmt.Errorf("%w: ticker scope needs a target", ErrInvalidEvent)
		}
		if prices.IsCash(target) {
			return model.Event{}, fmt.Errorf("%w: cash cannot be shocked", ErrInvalidEvent)
		}
	case model.ScopeSector:
		if target == "" {
			return model.Event{}, fmt.Errorf("%w: sector scope needs a target", ErrInvalidEvent)
		}
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		if hasTpl {
			name = tpl.Name
		} else {
			name = "Evento manual"
		}
	}

	return model.Event{
		ID:             uuid.NewString(),
		TemplateID:     in.TemplateID,
		Name:           name,
		Scope:          scope,
		Target:         target,
		ImpactPct:      impact,
		RemainingTurns: duration,
		Source:         model.EventSourceManual,
		CreatedTurn:    turnN,
	}, nil
}

func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
