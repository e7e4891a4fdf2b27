package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inversim/career-engine/internal/dates"
)

func TestParseDifficulty(t *testing.T) {
	cases := []struct {
		in   string
		want Difficulty
		ok   bool
	}{
		{"principiante", Principiante, true},
		{"beginner", Principiante, true},
		{"Intermedio", Intermedio, true},
		{"intermediate", Intermedio, true},
		{"EXPERTO", Experto, true},
		{"expert", Experto, true},
		{" experto ", Experto, true},
		{"nightmare", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, err := ParseDifficulty(c.in)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("ParseDifficulty(%q) = %v, %v; want %v", c.in, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("ParseDifficulty(%q) accepted, want error", c.in)
		}
	}
}

func TestScopeValid(t *testing.T) {
	for _, s := range []Scope{ScopePortfolio, ScopeSector, ScopeTicker} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Scope("galaxy").Valid() {
		t.Error("unknown scope should be invalid")
	}
}

func TestPendingTurn(t *testing.T) {
	s := &Session{Turns: []Turn{
		{N: 1, Status: TurnCompleted},
		{N: 2, Status: TurnPending},
		{N: 3, Status: TurnPending},
	}}
	turn, ok := s.PendingTurn()
	if !ok || turn.N != 2 {
		t.Fatalf("got %v %v, want turn 2", turn, ok)
	}

	s.Turns[1].Status = TurnCompleted
	s.Turns[2].Status = TurnCompleted
	if _, ok := s.PendingTurn(); ok {
		t.Fatal("all turns completed, want no pending turn")
	}
}

func TestSessionClone_IsDeep(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	orig := &Session{
		ID:             "car_abc123",
		CapitalCurrent: decimal.NewFromInt(10000),
		Universe:       []string{"AAPL", "MSFT"},
		Turns: []Turn{
			{N: 1, Start: dates.New(2020, time.January, 1), Status: TurnCompleted, CompletedAt: &at},
			{N: 2, Status: TurnPending},
		},
		History: []TurnSnapshot{{
			TurnN:        1,
			Allocation:   []Allocation{{Ticker: "AAPL", Weight: 1}},
			TickerShifts: map[string]float64{"AAPL": -0.02},
		}},
		ActiveEvents: []Event{{ID: "ev1", Scope: ScopeTicker, Target: "AAPL"}},
		EventsLog:    []EventLogEntry{{TurnN: 1, Drawn: []Event{{ID: "ev1"}}}},
		Sectors:      map[string]string{"AAPL": "technology"},
	}

	cp := orig.Clone()
	cp.Universe[0] = "TSLA"
	cp.Turns[0].N = 99
	*cp.Turns[0].CompletedAt = at.Add(time.Hour)
	cp.History[0].Allocation[0].Weight = 0.5
	cp.History[0].TickerShifts["AAPL"] = 1
	cp.ActiveEvents[0].Target = "MSFT"
	cp.EventsLog[0].Drawn[0].ID = "mutated"
	cp.Sectors["AAPL"] = "energy"

	if orig.Universe[0] != "AAPL" {
		t.Error("universe shared between clone and original")
	}
	if orig.Turns[0].N != 1 || !orig.Turns[0].CompletedAt.Equal(at) {
		t.Error("turns shared between clone and original")
	}
	if orig.History[0].Allocation[0].Weight != 1 {
		t.Error("snapshot allocation shared")
	}
	if orig.History[0].TickerShifts["AAPL"] != -0.02 {
		t.Error("ticker shifts shared")
	}
	if orig.ActiveEvents[0].Target != "AAPL" {
		t.Error("active events shared")
	}
	if orig.EventsLog[0].Drawn[0].ID != "ev1" {
		t.Error("events log shared")
	}
	if orig.Sectors["AAPL"] != "technology" {
		t.Error("sectors map shared")
	}
}
