// Package model defines the core domain types shared across the career
// engine. Monetary amounts use shopspring/decimal; returns, weights and
// index values are float64.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inversim/career-engine/internal/dates"
)

// Difficulty selects the simulation period length and turn step.
type Difficulty string

const (
	Principiante Difficulty = "principiante" // 10-15 years, 12-month turns
	Intermedio   Difficulty = "intermedio"   // 3-7 years, 6-month turns
	Experto      Difficulty = "experto"      // 1-2 years, 1-month turns
)

// ParseDifficulty resolves a difficulty name, accepting the English
// aliases beginner/intermediate/expert.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "principiante", "beginner":
		return Principiante, nil
	case "intermedio", "intermediate":
		return Intermedio, nil
	case "experto", "expert":
		return Experto, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

// Scope says what an event's impact lands on. Dispatch on it with an
// exhaustive switch; Valid rejects anything outside the three cases.
type Scope string

const (
	ScopePortfolio Scope = "portfolio" // shifts the whole portfolio return
	ScopeSector    Scope = "sector"    // shifts every allocated ticker in one sector
	ScopeTicker    Scope = "ticker"    // shifts one allocated ticker
)

// Valid reports whether s is one of the three known scopes.
func (s Scope) Valid() bool {
	switch s {
	case ScopePortfolio, ScopeSector, ScopeTicker:
		return true
	}
	return false
}

// Turn statuses.
const (
	TurnPending   = "pending"
	TurnCompleted = "completed"
)

// Event sources.
const (
	EventSourceAuto   = "auto"
	EventSourceManual = "manual"
)

// Period modes.
const (
	PeriodModeAuto   = "auto"
	PeriodModeManual = "manual"
)

// Period is the simulated date range of a session.
type Period struct {
	Start dates.Date `json:"start"`
	End   dates.Date `json:"end"`
}

// Turn is one step of the simulation calendar.
type Turn struct {
	N           int        `json:"n"` // 1-based, contiguous
	Start       dates.Date `json:"start"`
	End         dates.Date `json:"end"`
	Status      string     `json:"status"` // "pending" or "completed"
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Allocation is one portfolio line: a ticker and its weight in [0, 1].
type Allocation struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// Event is a market shock, drawn by the engine or injected manually,
// that shifts returns for a number of turns.
type Event struct {
	ID             string  `json:"id"`
	TemplateID     string  `json:"template_id"`
	Name           string  `json:"name"`
	Scope          Scope   `json:"scope"`
	Target         string  `json:"target"` // "" for portfolio scope
	ImpactPct      float64 `json:"impact_pct"`
	RemainingTurns int     `json:"remaining_turns"`
	Source         string  `json:"source"` // "auto" or "manual"
	CreatedTurn    int     `json:"created_turn"`
}

// Decision records the allocation a player submitted for a turn.
type Decision struct {
	TurnN      int          `json:"turn_n"`
	Allocation []Allocation `json:"allocation"`
	UseDCA     bool         `json:"use_dca"`
	At         time.Time    `json:"at"`
}

// TurnSnapshot is the immutable result of closing one turn.
type TurnSnapshot struct {
	TurnN             int                `json:"turn_n"`
	Start             dates.Date         `json:"start"`
	End               dates.Date         `json:"end"`
	Allocation        []Allocation       `json:"allocation"`
	UseDCA            bool               `json:"use_dca"`
	DCAInTurn         decimal.Decimal    `json:"dca_in_turn"`
	InvestedSoFar     decimal.Decimal    `json:"invested_so_far"`
	RetMarket         float64            `json:"ret_market"`
	RetPortfolioShift float64            `json:"ret_portfolio_shift"`
	TickerShifts      map[string]float64 `json:"ticker_shifts"`
	RetTotal          float64            `json:"ret_total"`
	CapitalBefore     decimal.Decimal    `json:"capital_before"`
	CapitalAfter      decimal.Decimal    `json:"capital_after"`
	PnLAbs            decimal.Decimal    `json:"pnl_abs"`
	PnLPct            float64            `json:"pnl_pct"`
	CumReturnNet      float64            `json:"cum_return_net"`
	DeltaVsPrev       decimal.Decimal    `json:"delta_vs_prev"`
	EventsApplied     []Event            `json:"events_applied"`
	EventsDrawn       []Event            `json:"events_drawn"`
	ClosedAt          time.Time          `json:"closed_at"`
}

// EventLogEntry records what the event engine did on one turn.
type EventLogEntry struct {
	TurnN   int       `json:"turn_n"`
	Applied []Event   `json:"applied"`
	Drawn   []Event   `json:"drawn"`
	Source  string    `json:"source"` // "auto" or "manual"
	At      time.Time `json:"at"`
}

// RankingEntry is one leaderboard row, keyed by session.
type RankingEntry struct {
	SessionID   string     `json:"session_id"`
	Player      string     `json:"player"`
	Difficulty  Difficulty `json:"difficulty"`
	Score       float64    `json:"score"`
	Stars       int        `json:"stars"`
	CAGR        float64    `json:"cagr"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// Session is the aggregate root of a career run. It is persisted as a
// whole document and mutated only under the service's per-session lock.
type Session struct {
	ID               string            `json:"id"`
	Player           string            `json:"player"`
	Difficulty       Difficulty        `json:"difficulty"`
	Seed             int64             `json:"seed"`
	CapitalInitial   decimal.Decimal   `json:"capital_initial"`
	CapitalCurrent   decimal.Decimal   `json:"capital_current"`
	InvestedSoFar    decimal.Decimal   `json:"invested_so_far"`
	CumReturn        float64           `json:"cum_return"`
	CumReturnNet     float64           `json:"cum_return_net"`
	Closed           bool              `json:"closed"`
	PeriodMode       string            `json:"period_mode"` // "auto" or "manual"
	Period           Period            `json:"period"`
	Universe         []string          `json:"universe"`
	RejectedUniverse []string          `json:"rejected_universe"`
	Turns            []Turn            `json:"turns"`
	Decisions        []Decision        `json:"decisions"`
	History          []TurnSnapshot    `json:"history"`
	ActiveEvents     []Event           `json:"active_events"`
	EventsLog        []EventLogEntry   `json:"events_log"`
	Sectors          map[string]string `json:"sectors"` // ticker -> sector memo
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PendingTurn returns the lowest-numbered pending turn. An open session
// has exactly one; a closed session has none.
func (s *Session) PendingTurn() (Turn, bool) {
	for _, t := range s.Turns {
		if t.Status == TurnPending {
			return t, true
		}
	}
	return Turn{}, false
}

// TotalTurns is the number of scheduled turns.
func (s *Session) TotalTurns() int { return len(s.Turns) }

// Clone returns a deep copy. Stores hand out clones so callers can
// never mutate shared state behind the session lock's back.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Universe = append([]string(nil), s.Universe...)
	cp.RejectedUniverse = append([]string(nil), s.RejectedUniverse...)

	cp.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		cp.Turns[i] = t
		if t.CompletedAt != nil {
			at := *t.CompletedAt
			cp.Turns[i].CompletedAt = &at
		}
	}

	cp.Decisions = make([]Decision, len(s.Decisions))
	for i, d := range s.Decisions {
		cp.Decisions[i] = d
		cp.Decisions[i].Allocation = append([]Allocation(nil), d.Allocation...)
	}

	cp.History = make([]TurnSnapshot, len(s.History))
	for i, snap := range s.History {
		cp.History[i] = cloneSnapshot(snap)
	}

	cp.ActiveEvents = append([]Event(nil), s.ActiveEvents...)

	cp.EventsLog = make([]EventLogEntry, len(s.EventsLog))
	for i, e := range s.EventsLog {
		cp.EventsLog[i] = e
		cp.EventsLog[i].Applied = append([]Event(nil), e.Applied...)
		cp.EventsLog[i].Drawn = append([]Event(nil), e.Drawn...)
	}

	if s.Sectors != nil {
		cp.Sectors = make(map[string]string, len(s.Sectors))
		for k, v := range s.Sectors {
			cp.Sectors[k] = v
		}
	}
	return &cp
}

func cloneSnapshot(snap TurnSnapshot) TurnSnapshot {
	cp := snap
	cp.Allocation = append([]Allocation(nil), snap.Allocation...)
	cp.EventsApplied = append([]Event(nil), snap.EventsApplied...)
	cp.EventsDrawn = append([]Event(nil), snap.EventsDrawn...)
	if snap.TickerShifts != nil {
		cp.TickerShifts = make(map[string]float64, len(snap.TickerShifts))
		for k, v := range snap.TickerShifts {
			cp.TickerShifts[k] = v
		}
	}
	return cp
}
