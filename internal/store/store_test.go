package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/store"
)

// forEachStore runs a subtest against every embeddable Store backend.
// Postgres and Redis need external servers and are covered by the same
// document model, so the suite exercises memory and SQLite.
func forEachStore(t *testing.T, fn func(t *testing.T, s store.Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewMemoryStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "career.db"))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

// seedSession builds a session with every nested structure populated so
// round-trip tests cover the full document.
func seedSession(id string, createdAt time.Time) *model.Session {
	completed := createdAt.Add(time.Hour)
	return &model.Session{
		ID:             id,
		Player:         "ana",
		Difficulty:     model.Experto,
		Seed:           421873,
		CapitalInitial: decimal.NewFromInt(50000),
		CapitalCurrent: decimal.RequireFromString("51234.56"),
		InvestedSoFar:  decimal.NewFromInt(50000),
		CumReturn:      0.024691,
		CumReturnNet:   0.024691,
		PeriodMode:     model.PeriodModeAuto,
		Period: model.Period{
			Start: dates.MustParse("2015-03-02"),
			End:   dates.MustParse("2016-03-01"),
		},
		Universe:         []string{"AAPL", "CASH", "MSFT"},
		RejectedUniverse: []string{"NOPE"},
		Turns: []model.Turn{
			{N: 1, Start: dates.MustParse("2015-03-02"), End: dates.MustParse("2015-04-01"), Status: model.TurnCompleted, CompletedAt: &completed},
			{N: 2, Start: dates.MustParse("2015-04-02"), End: dates.MustParse("2015-05-01"), Status: model.TurnPending},
		},
		Decisions: []model.Decision{
			{TurnN: 1, Allocation: []model.Allocation{{Ticker: "AAPL", Weight: 0.6}, {Ticker: "CASH", Weight: 0.4}}, At: createdAt},
		},
		History: []model.TurnSnapshot{
			{
				TurnN:         1,
				Start:         dates.MustParse("2015-03-02"),
				End:           dates.MustParse("2015-04-01"),
				Allocation:    []model.Allocation{{Ticker: "AAPL", Weight: 0.6}, {Ticker: "CASH", Weight: 0.4}},
				InvestedSoFar: decimal.NewFromInt(50000),
				RetMarket:     0.0412,
				TickerShifts:  map[string]float64{"AAPL": -0.02},
				RetTotal:      0.024691,
				CapitalBefore: decimal.NewFromInt(50000),
				CapitalAfter:  decimal.RequireFromString("51234.56"),
				PnLAbs:        decimal.RequireFromString("1234.56"),
				PnLPct:        0.024691,
				CumReturnNet:  0.024691,
				DeltaVsPrev:   decimal.RequireFromString("1234.56"),
				EventsApplied: []model.Event{{ID: "ev-1", TemplateID: "shock_macro", Scope: model.ScopePortfolio, ImpactPct: -0.0165, Source: model.EventSourceAuto, CreatedTurn: 1}},
				EventsDrawn:   []model.Event{{ID: "ev-1", TemplateID: "shock_macro", Scope: model.ScopePortfolio, ImpactPct: -0.0165, RemainingTurns: 1, Source: model.EventSourceAuto, CreatedTurn: 1}},
				ClosedAt:      completed,
			},
		},
		ActiveEvents: []model.Event{
			{ID: "ev-2", TemplateID: "profit_warning", Scope: model.ScopeTicker, Target: "AAPL", ImpactPct: -0.08, RemainingTurns: 1, Source: model.EventSourceManual, CreatedTurn: 1},
		},
		EventsLog: []model.EventLogEntry{
			{TurnN: 1, Drawn: []model.Event{{ID: "ev-1", TemplateID: "shock_macro"}}, Source: model.EventSourceAuto, At: completed},
		},
		Sectors:   map[string]string{"AAPL": "Tecnología", "MSFT": "Tecnología"},
		CreatedAt: createdAt,
		UpdatedAt: completed,
	}
}

// --- Session tests ---

func TestPutGetSession_RoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		want := seedSession("car_a1b2c3", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))

		if err := s.PutSession(ctx, want); err != nil {
			t.Fatalf("put session: %v", err)
		}

		got, err := s.GetSession(ctx, "car_a1b2c3")
		if err != nil {
			t.Fatalf("get session: %v", err)
		}

		if got.ID != want.ID || got.Player != want.Player || got.Difficulty != want.Difficulty {
			t.Errorf("identity fields mismatch: got %+v", got)
		}
		if got.Seed != want.Seed {
			t.Errorf("seed = %d, want %d", got.Seed, want.Seed)
		}
		if !got.CapitalCurrent.Equal(want.CapitalCurrent) {
			t.Errorf("capital_current = %s, want %s", got.CapitalCurrent, want.CapitalCurrent)
		}
		if !got.Period.Start.Equal(want.Period.Start) || !got.Period.End.Equal(want.Period.End) {
			t.Errorf("period = %v, want %v", got.Period, want.Period)
		}
		if len(got.Turns) != 2 || got.Turns[0].Status != model.TurnCompleted {
			t.Fatalf("turns not preserved: %+v", got.Turns)
		}
		if got.Turns[0].CompletedAt == nil || !got.Turns[0].CompletedAt.Equal(*want.Turns[0].CompletedAt) {
			t.Errorf("turn completed_at not preserved: %v", got.Turns[0].CompletedAt)
		}
		if len(got.History) != 1 {
			t.Fatalf("expected 1 snapshot, got %d", len(got.History))
		}
		snap := got.History[0]
		if !snap.CapitalAfter.Equal(want.History[0].CapitalAfter) {
			t.Errorf("snapshot capital_after = %s, want %s", snap.CapitalAfter, want.History[0].CapitalAfter)
		}
		if snap.TickerShifts["AAPL"] != -0.02 {
			t.Errorf("ticker shifts not preserved: %v", snap.TickerShifts)
		}
		if len(snap.EventsApplied) != 1 || snap.EventsApplied[0].TemplateID != "shock_macro" {
			t.Errorf("events_applied not preserved: %+v", snap.EventsApplied)
		}
		if len(got.ActiveEvents) != 1 || got.ActiveEvents[0].Target != "AAPL" {
			t.Errorf("active events not preserved: %+v", got.ActiveEvents)
		}
		if got.Sectors["MSFT"] != "Tecnología" {
			t.Errorf("sectors memo not preserved: %v", got.Sectors)
		}
	})
}

func TestGetSession_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		_, err := s.GetSession(context.Background(), "car_missing")
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestPutSession_Upsert(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		sess := seedSession("car_upsert", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))

		if err := s.PutSession(ctx, sess); err != nil {
			t.Fatalf("first put: %v", err)
		}

		sess.CapitalCurrent = decimal.RequireFromString("60000.00")
		sess.Closed = true
		if err := s.PutSession(ctx, sess); err != nil {
			t.Fatalf("second put: %v", err)
		}

		got, err := s.GetSession(ctx, "car_upsert")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.CapitalCurrent.Equal(decimal.RequireFromString("60000.00")) {
			t.Errorf("capital not updated: %s", got.CapitalCurrent)
		}
		if !got.Closed {
			t.Error("closed flag not updated")
		}
	})
}

func TestListSessions_OrderedByCreation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

		// Insert out of creation order.
		for _, spec := range []struct {
			id     string
			offset time.Duration
		}{
			{"car_c", 2 * time.Hour},
			{"car_a", 0},
			{"car_b", time.Hour},
		} {
			if err := s.PutSession(ctx, seedSession(spec.id, base.Add(spec.offset))); err != nil {
				t.Fatalf("put %s: %v", spec.id, err)
			}
		}

		sessions, err := s.ListSessions(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(sessions) != 3 {
			t.Fatalf("expected 3 sessions, got %d", len(sessions))
		}
		for i, want := range []string{"car_a", "car_b", "car_c"} {
			if sessions[i].ID != want {
				t.Errorf("sessions[%d].ID = %s, want %s", i, sessions[i].ID, want)
			}
		}
	})
}

func TestMemoryStore_HandsOutCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	sess := seedSession("car_iso", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))

	if err := s.PutSession(ctx, sess); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Mutating the original after Put must not reach the store.
	sess.Universe[0] = "HACK"
	sess.Sectors["AAPL"] = "Otro"
	sess.History[0].TickerShifts["AAPL"] = 9.9

	got, err := s.GetSession(ctx, "car_iso")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Universe[0] != "AAPL" {
		t.Errorf("stored universe mutated: %v", got.Universe)
	}
	if got.Sectors["AAPL"] != "Tecnología" {
		t.Errorf("stored sectors mutated: %v", got.Sectors)
	}
	if got.History[0].TickerShifts["AAPL"] != -0.02 {
		t.Errorf("stored snapshot mutated: %v", got.History[0].TickerShifts)
	}

	// Mutating what Get returned must not reach the store either.
	got.Turns[1].Status = model.TurnCompleted
	again, _ := s.GetSession(ctx, "car_iso")
	if again.Turns[1].Status != model.TurnPending {
		t.Errorf("stored turn mutated through Get result: %v", again.Turns[1])
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "career.db")

	s, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.PutSession(ctx, seedSession("car_persist", time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC))); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetSession(ctx, "car_persist")
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Player != "ana" || len(got.Turns) != 2 {
		t.Errorf("session not persisted intact: %+v", got)
	}
}

// --- Ranking tests ---

func TestRanking_UpsertAndOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s store.Store) {
		ctx := context.Background()
		base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

		entries := []model.RankingEntry{
			{SessionID: "car_low", Player: "b", Difficulty: model.Experto, Score: 5.1, Stars: 5, CAGR: 0.04, SubmittedAt: base},
			{SessionID: "car_tie2", Player: "c", Difficulty: model.Intermedio, Score: 8.5, Stars: 9, CAGR: 0.11, SubmittedAt: base.Add(time.Hour)},
			{SessionID: "car_tie1", Player: "a", Difficulty: model.Experto, Score: 8.5, Stars: 9, CAGR: 0.12, SubmittedAt: base.Add(time.Minute)},
		}
		for _, e := range entries {
			if err := s.UpsertRankingEntry(ctx, e); err != nil {
				t.Fatalf("upsert %s: %v", e.SessionID, err)
			}
		}

		got, err := s.ListRanking(ctx)
		if err != nil {
			t.Fatalf("list ranking: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(got))
		}
		// Highest score first; on ties, the earlier submission wins.
		for i, want := range []string{"car_tie1", "car_tie2", "car_low"} {
			if got[i].SessionID != want {
				t.Errorf("ranking[%d] = %s, want %s", i, got[i].SessionID, want)
			}
		}

		// Resubmitting the same session replaces its row.
		if err := s.UpsertRankingEntry(ctx, model.RankingEntry{
			SessionID: "car_low", Player: "b", Difficulty: model.Experto,
			Score: 9.9, Stars: 10, CAGR: 0.2, SubmittedAt: base.Add(2 * time.Hour),
		}); err != nil {
			t.Fatalf("re-upsert: %v", err)
		}

		got, err = s.ListRanking(ctx)
		if err != nil {
			t.Fatalf("list after upsert: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("upsert should replace, not append: got %d entries", len(got))
		}
		if got[0].SessionID != "car_low" || got[0].Score != 9.9 {
			t.Errorf("expected car_low promoted to top, got %+v", got[0])
		}
	})
}
