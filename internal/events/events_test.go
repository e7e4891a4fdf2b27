package events

import (
	"errors"
	"testing"

	"github.com/inversim/career-engine/internal/model"
)

func alloc(pairs ...string) []model.Allocation {
	out := make([]model.Allocation, len(pairs))
	for i, t := range pairs {
		out[i] = model.Allocation{Ticker: t, Weight: 1.0 / float64(len(pairs))}
	}
	return out
}

func TestCatalog_Contract(t *testing.T) {
	cat := Catalog()
	if len(cat) == 0 {
		t.Fatal("empty catalog")
	}

	macro, ok := TemplateByID("shock_macro")
	if !ok {
		t.Fatal("shock_macro template missing")
	}
	if macro.Scope != model.ScopePortfolio {
		t.Errorf("shock_macro scope = %s", macro.Scope)
	}
	wantProbs := map[model.Difficulty]float64{
		model.Principiante: 0.12,
		model.Intermedio:   0.22,
		model.Experto:      0.35,
	}
	for d, want := range wantProbs {
		if got := macro.Probability[d]; got != want {
			t.Errorf("shock_macro probability[%s] = %v, want %v", d, got, want)
		}
	}

	for _, tpl := range cat {
		if !tpl.Scope.Valid() {
			t.Errorf("template %s has invalid scope %q", tpl.ID, tpl.Scope)
		}
		if tpl.ImpactLo > tpl.ImpactHi {
			t.Errorf("template %s has inverted impact range", tpl.ID)
		}
		for _, d := range []model.Difficulty{model.Principiante, model.Intermedio, model.Experto} {
			p := tpl.Probability[d]
			if p <= 0 || p >= 1 {
				t.Errorf("template %s probability[%s] = %v", tpl.ID, d, p)
			}
		}
	}

	// Catalog hands out a copy.
	cat[0].ID = "mutated"
	if _, ok := TemplateByID("shock_macro"); !ok {
		t.Error("mutating the returned catalog leaked into the package")
	}
}

func TestDraw_Deterministic(t *testing.T) {
	a := alloc("AAPL", "JPM", "CASH")
	sectors := ResolveSectors(a, nil)

	for turn := 1; turn <= 20; turn++ {
		x := Draw(12345, turn, 3, model.Experto, a, sectors)
		y := Draw(12345, turn, 3, model.Experto, a, sectors)
		if len(x) != len(y) {
			t.Fatalf("turn %d: %d vs %d events", turn, len(x), len(y))
		}
		for i := range x {
			// Instance ids differ; everything drawn must not.
			x[i].ID, y[i].ID = "", ""
			if x[i] != y[i] {
				t.Fatalf("turn %d event %d: %+v vs %+v", turn, i, x[i], y[i])
			}
		}
	}
}

func TestDraw_EventInvariants(t *testing.T) {
	a := alloc("AAPL", "MSFT", "JPM", "CASH")
	sectors := ResolveSectors(a, nil)

	for seed := int64(0); seed < 300; seed++ {
		for _, ev := range Draw(seed, 1, 0, model.Experto, a, sectors) {
			tpl, ok := TemplateByID(ev.TemplateID)
			if !ok {
				t.Fatalf("drawn event references unknown template %q", ev.TemplateID)
			}
			if ev.ImpactPct < tpl.ImpactLo || ev.ImpactPct > tpl.ImpactHi {
				t.Errorf("%s impact %v outside [%v, %v]", ev.TemplateID, ev.ImpactPct, tpl.ImpactLo, tpl.ImpactHi)
			}
			if ev.RemainingTurns < 1 || ev.RemainingTurns > 6 {
				t.Errorf("%s duration %d outside [1, 6]", ev.TemplateID, ev.RemainingTurns)
			}
			if ev.Source != model.EventSourceAuto || ev.CreatedTurn != 1 {
				t.Errorf("bad provenance: %+v", ev)
			}
			switch ev.Scope {
			case model.ScopePortfolio:
				if ev.Target != "" {
					t.Errorf("portfolio event with target %q", ev.Target)
				}
			case model.ScopeTicker:
				if ev.Target == "CASH" || !allocated(a, ev.Target) {
					t.Errorf("ticker event targets %q", ev.Target)
				}
			case model.ScopeSector:
				if ev.Target != "Tecnología" && ev.Target != "Finanzas" {
					t.Errorf("sector event targets %q, not a held sector", ev.Target)
				}
			}
		}
	}
}

func TestDraw_MacroShockRate(t *testing.T) {
	a := alloc("AAPL")
	sectors := ResolveSectors(a, nil)

	fired := 0
	const n = 2000
	for turn := 1; turn <= n; turn++ {
		for _, ev := range Draw(999, turn, 0, model.Experto, a, sectors) {
			if ev.TemplateID == "shock_macro" {
				fired++
			}
		}
	}
	rate := float64(fired) / n
	if rate < 0.25 || rate > 0.45 {
		t.Fatalf("shock_macro fired at %.3f over %d turns, want around 0.35", rate, n)
	}
}

func TestDraw_SkipsUnresolvableScopes(t *testing.T) {
	// A ticker outside the sector table can never take a sector event.
	a := alloc("ZZZZ")
	for seed := int64(0); seed < 200; seed++ {
		for _, ev := range Draw(seed, 1, 0, model.Experto, a, nil) {
			if ev.Scope == model.ScopeSector {
				t.Fatalf("sector event drawn with no resolvable sector: %+v", ev)
			}
		}
	}

	// Cash-only allocations can take neither ticker nor sector events.
	cashOnly := alloc("CASH")
	for seed := int64(0); seed < 200; seed++ {
		for _, ev := range Draw(seed, 1, 0, model.Experto, cashOnly, nil) {
			if ev.Scope != model.ScopePortfolio {
				t.Fatalf("non-portfolio event drawn against cash-only allocation: %+v", ev)
			}
		}
	}
}

func TestApply_PortfolioShiftAndDecay(t *testing.T) {
	a := alloc("AAPL")
	active := []model.Event{
		{ID: "e1", Scope: model.ScopePortfolio, ImpactPct: -0.10, RemainingTurns: 2},
		{ID: "e2", Scope: model.ScopePortfolio, ImpactPct: 0.03, RemainingTurns: 1},
	}

	shift, tickerShifts, applied, remaining := Apply(active, a, nil)
	if shift != -0.07 {
		t.Fatalf("portfolio shift = %v, want -0.07", shift)
	}
	if len(tickerShifts) != 0 {
		t.Fatalf("unexpected ticker shifts %v", tickerShifts)
	}
	if len(applied) != 2 {
		t.Fatalf("applied %d events, want 2", len(applied))
	}
	if len(remaining) != 1 || remaining[0].ID != "e1" || remaining[0].RemainingTurns != 1 {
		t.Fatalf("remaining = %+v, want e1 with 1 turn left", remaining)
	}
}

func TestApply_CashOnlyTakesNoPortfolioShift(t *testing.T) {
	cashOnly := alloc("CASH")
	active := []model.Event{
		{ID: "macro", Scope: model.ScopePortfolio, ImpactPct: -0.10, RemainingTurns: 2},
	}

	shift, _, applied, remaining := Apply(active, cashOnly, nil)
	if shift != 0 {
		t.Fatalf("portfolio shift = %v against pure cash, want 0", shift)
	}
	if len(applied) != 0 {
		t.Fatalf("applied = %+v, want none", applied)
	}
	// Immunity does not stop the clock.
	if len(remaining) != 1 || remaining[0].RemainingTurns != 1 {
		t.Fatalf("remaining = %+v, want macro with 1 turn left", remaining)
	}
}

func TestApply_TickerScope(t *testing.T) {
	a := alloc("AAPL", "MSFT")
	active := []model.Event{
		{ID: "hit", Scope: model.ScopeTicker, Target: "AAPL", ImpactPct: -0.08, RemainingTurns: 1},
		{ID: "miss", Scope: model.ScopeTicker, Target: "TSLA", ImpactPct: -0.05, RemainingTurns: 2},
	}

	shift, tickerShifts, applied, remaining := Apply(active, a, nil)
	if shift != 0 {
		t.Fatalf("portfolio shift = %v", shift)
	}
	if tickerShifts["AAPL"] != -0.08 {
		t.Fatalf("AAPL shift = %v", tickerShifts["AAPL"])
	}
	if _, ok := tickerShifts["TSLA"]; ok {
		t.Fatal("unallocated ticker got a shift")
	}
	if len(applied) != 1 || applied[0].ID != "hit" {
		t.Fatalf("applied = %+v", applied)
	}
	// The miss still decays.
	if len(remaining) != 1 || remaining[0].ID != "miss" || remaining[0].RemainingTurns != 1 {
		t.Fatalf("remaining = %+v", remaining)
	}
}

func TestApply_SectorScope(t *testing.T) {
	a := alloc("AAPL", "MSFT", "JPM", "CASH")
	sectors := ResolveSectors(a, nil)
	active := []model.Event{
		{ID: "tech", Scope: model.ScopeSector, Target: "tecnología", ImpactPct: -0.04, RemainingTurns: 1},
	}

	_, tickerShifts, applied, _ := Apply(active, a, sectors)
	if tickerShifts["AAPL"] != -0.04 || tickerShifts["MSFT"] != -0.04 {
		t.Fatalf("tech tickers shifts = %v", tickerShifts)
	}
	if _, ok := tickerShifts["JPM"]; ok {
		t.Fatal("JPM is not tech, must not shift")
	}
	if len(applied) != 1 {
		t.Fatalf("applied = %+v", applied)
	}
}

func TestApply_AccumulatesSameTarget(t *testing.T) {
	a := alloc("AAPL")
	sectors := ResolveSectors(a, nil)
	active := []model.Event{
		{ID: "a", Scope: model.ScopeTicker, Target: "AAPL", ImpactPct: -0.02, RemainingTurns: 1},
		{ID: "b", Scope: model.ScopeSector, Target: "Tecnología", ImpactPct: -0.03, RemainingTurns: 1},
	}

	_, tickerShifts, _, remaining := Apply(active, a, sectors)
	if got := tickerShifts["AAPL"]; got != -0.05 {
		t.Fatalf("AAPL shift = %v, want -0.05", got)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining = %+v, want all expired", remaining)
	}
}

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

func TestValidateManual_FromTemplate(t *testing.T) {
	ev, err := ValidateManual(ManualEventInput{TemplateID: "shock_macro"}, 3)
	if err != nil {
		t.Fatalf("ValidateManual: %v", err)
	}
	if ev.Scope != model.ScopePortfolio || ev.Target != "" {
		t.Errorf("scope/target = %s %q", ev.Scope, ev.Target)
	}
	// Midpoint of [-0.06, -0.012], low duration bound.
	if ev.ImpactPct != -0.036 {
		t.Errorf("impact = %v, want -0.036", ev.ImpactPct)
	}
	if ev.RemainingTurns != 1 {
		t.Errorf("duration = %d, want 1", ev.RemainingTurns)
	}
	if ev.Source != model.EventSourceManual || ev.CreatedTurn != 3 {
		t.Errorf("provenance: %+v", ev)
	}
	if ev.Name != "Shock macroeconómico" {
		t.Errorf("name = %q", ev.Name)
	}
}

func TestValidateManual_ExplicitOverrides(t *testing.T) {
	ev, err := ValidateManual(ManualEventInput{
		TemplateID:    "profit_warning",
		Target:        " aapl ",
		ImpactPct:     f(-0.20),
		DurationTurns: n(2),
	}, 1)
	if err != nil {
		t.Fatalf("ValidateManual: %v", err)
	}
	if ev.Target != "AAPL" {
		t.Errorf("target = %q, want AAPL", ev.Target)
	}
	if ev.ImpactPct != -0.20 || ev.RemainingTurns != 2 {
		t.Errorf("overrides not honored: %+v", ev)
	}
}

func TestValidateManual_Rejections(t *testing.T) {
	cases := []struct {
		name string
		in   ManualEventInput
	}{
		{"unknown template", ManualEventInput{TemplateID: "apocalypse"}},
		{"no template no scope", ManualEventInput{ImpactPct: f(-0.1), DurationTurns: n(1)}},
		{"unknown scope", ManualEventInput{Scope: "galaxy", ImpactPct: f(-0.1), DurationTurns: n(1)}},
		{"scope conflicts with template", ManualEventInput{TemplateID: "shock_macro", Scope: "ticker", Target: "AAPL"}},
		{"missing impact", ManualEventInput{Scope: "portfolio", DurationTurns: n(1)}},
		{"missing duration", ManualEventInput{Scope: "portfolio", ImpactPct: f(-0.1)}},
		{"impact too low", ManualEventInput{Scope: "portfolio", ImpactPct: f(-0.51), DurationTurns: n(1)}},
		{"impact too high", ManualEventInput{Scope: "portfolio", ImpactPct: f(0.51), DurationTurns: n(1)}},
		{"duration zero", ManualEventInput{Scope: "portfolio", ImpactPct: f(-0.1), DurationTurns: n(0)}},
		{"duration too long", ManualEventInput{Scope: "portfolio", ImpactPct: f(-0.1), DurationTurns: n(7)}},
		{"ticker without target", ManualEventInput{Scope: "ticker", ImpactPct: f(-0.1), DurationTurns: n(1)}},
		{"sector without target", ManualEventInput{Scope: "sector", ImpactPct: f(-0.1), DurationTurns: n(1)}},
		{"cash target", ManualEventInput{Scope: "ticker", Target: "CASH", ImpactPct: f(-0.1), DurationTurns: n(1)}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := ValidateManual(c.in, 1); !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("got %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestValidateManual_BoundaryValues(t *testing.T) {
	for _, impact := range []float64{-0.5, 0.5} {
		if _, err := ValidateManual(ManualEventInput{Scope: "portfolio", ImpactPct: f(impact), DurationTurns: n(1)}, 1); err != nil {
			t.Errorf("impact %v should be accepted: %v", impact, err)
		}
	}
	for _, dur := range []int{1, 6} {
		if _, err := ValidateManual(ManualEventInput{Scope: "portfolio", ImpactPct: f(-0.1), DurationTurns: n(dur)}, 1); err != nil {
			t.Errorf("duration %d should be accepted: %v", dur, err)
		}
	}
}

func TestResolveSectors(t *testing.T) {
	memo := ResolveSectors(alloc("AAPL", "ZZZZ", "CASH"), nil)
	if memo["AAPL"] != "Tecnología" {
		t.Errorf("AAPL sector = %q", memo["AAPL"])
	}
	if _, ok := memo["ZZZZ"]; ok {
		t.Error("unclassified ticker got a sector")
	}
	if _, ok := memo["CASH"]; ok {
		t.Error("cash got a sector")
	}

	// Memoized entries survive.
	memo2 := ResolveSectors(alloc("MSFT"), memo)
	if memo2["AAPL"] != "Tecnología" || memo2["MSFT"] != "Tecnología" {
		t.Errorf("memo lost entries: %v", memo2)
	}
}

func TestPeriodRNG_Deterministic(t *testing.T) {
	a, b := PeriodRNG(42), PeriodRNG(42)
	for i := 0; i < 5; i++ {
		if a.Int63() != b.Int63() {
			t.Fatal("same seed produced different period streams")
		}
	}
}
