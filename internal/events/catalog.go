// Package events draws, applies and validates the market shocks of a
// career session. Draws are deterministic per (seed, turn, history
// length) so a session can be replayed from its seed.
package events

import "github.com/inversim/career-engine/internal/model"

// Template describes one kind of market event the engine can draw.
// Probability is keyed by difficulty; impact is a uniform draw from
// [ImpactLo, ImpactHi] and duration an integer uniform draw from
// [DurationLo, DurationHi] capped to [1, 6] turns.
type Template struct {
	ID          string
	Name        string
	Scope       model.Scope
	ImpactLo    float64
	ImpactHi    float64
	DurationLo  int
	DurationHi  int
	Probability map[model.Difficulty]float64
}

// catalog is the fixed template set. Order matters: each template's
// position seeds its own draw stream, so reordering or inserting
// entries changes every historical replay.
var catalog = []Template{
	{
		ID:         "shock_macro",
		Name:       "Shock macroeconómico",
		Scope:      model.ScopePortfolio,
		ImpactLo:   -0.06,
		ImpactHi:   -0.012,
		DurationLo: 1,
		DurationHi: 2,
		Probability: map[model.Difficulty]float64{
			model.Principiante: 0.12,
			model.Intermedio:   0.22,
			model.Experto:      0.35,
		},
	},
	{
		ID:         "rally_macro",
		Name:       "Rally de mercado",
		Scope:      model.ScopePortfolio,
		ImpactLo:   0.01,
		ImpactHi:   0.05,
		DurationLo: 1,
		DurationHi: 2,
		Probability: map[model.Difficulty]float64{
			model.Principiante: 0.10,
			model.Intermedio:   0.15,
			model.Experto:      0.20,
		},
	},
	{
		ID:         "crisis_sectorial",
		Name:       "Crisis sectorial",
		Scope:      model.ScopeSector,
		ImpactLo:   -0.08,
		ImpactHi:   -0.02,
		DurationLo: 1,
		DurationHi: 3,
		Probability: map[model.Difficulty]float64{
			model.Principiante: 0.08,
			model.Intermedio:   0.14,
			model.Experto:      0.22,
		},
	},
	{
		ID:         "auge_sectorial",
		Name:       "Auge sectorial",
		Scope:      model.ScopeSector,
		ImpactLo:   0.02,
		ImpactHi:   0.07,
		DurationLo: 1,
		DurationHi: 3,
		Probability: map[model.Difficulty]float64{
			model.Principiante: 0.08,
			model.Intermedio:   0.12,
			model.Experto:      0.18,
		},
	},
	{
		ID:         "profit_warning",
		Name:       "Profit warning",
		Scope:      model.ScopeTicker,
		ImpactLo:   -0.12,
		ImpactHi:   -0.04,
		DurationLo: 1,
		DurationHi: 2,
		Probability: map[model.Difficulty]float64{
			model.Principiante: 0.05,
			model.Intermedio:   0.10,
			model.Experto:      0.16,
		},
	},
	{
		ID:         "resultados_record",
		Name:       "Resultados récord",
		Scope:      model.ScopeTicker,
		ImpactLo:   0.03,
		ImpactHi:   0.10,
		DurationLo: 1,
		DurationHi: 2,
		Probability: map[model.Difficulty]float64{
			model.Principiante: 0.05,
			model.Intermedio:   0.10,
			model.Experto:      0.15,
		},
	},
}

// Catalog returns the fixed template list in draw order.
func Catalog() []Template {
	out := make([]Template, len(catalog))
	copy(out, catalog)
	return out
}

// TemplateByID looks a template up by id.
func TemplateByID(id string) (Template, bool) {
	for _, tpl := range catalog {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return Template{}, false
}
