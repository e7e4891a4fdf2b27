package career

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/inversim/career-engine/internal/events"
	"github.com/inversim/career-engine/internal/metrics"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/series"
)

// AllocationInput is one submitted portfolio line. Entries with an
// empty ticker or a non-positive weight are dropped, and repeated
// tickers aggregate into one line.
type AllocationInput struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// CloseTurnRequest is the JSON body for POST .../close-turn.
type CloseTurnRequest struct {
	TurnN      int               `json:"turn_n"`
	Allocation []AllocationInput `json:"allocation"`
	UseDCA     bool              `json:"use_dca"`
}

// CloseTurnResponse returns the settled turn and what comes next.
type CloseTurnResponse struct {
	Snapshot  model.TurnSnapshot `json:"snapshot"`
	CumReturn float64            `json:"cum_return"`
	NextTurn  *model.Turn        `json:"next_turn"` // null when the session just closed
}

// CloseTurn handles POST /api/v1/career/sessions/{sessionID}/close-turn
//
// The whole turn settles or nothing does: the session document is
// written back exactly once, after the market return, events, and
// capital all resolved.
func (s *Service) CloseTurn(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	sessionID := chi.URLParam(r, "sessionID")

	var req CloseTurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeValidation, http.StatusBadRequest)
		return
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}
	if sess.Closed {
		writeError(w, "session already finished", codeConflict, http.StatusConflict)
		return
	}

	pending, ok := sess.PendingTurn()
	if !ok {
		// Calendar exhausted but the flag never flipped; repair it.
		sess.Closed = true
		sess.UpdatedAt = time.Now().UTC()
		if err := s.store.PutSession(ctx, sess); err != nil {
			writeError(w, "failed to persist session", codeInternal, http.StatusInternalServerError)
			return
		}
		writeError(w, "no pending turns", codeConflict, http.StatusConflict)
		return
	}
	if pending.N != req.TurnN {
		writeError(w, "turn_n does not match the pending turn", codeConflict, http.StatusConflict)
		return
	}

	alloc, err := cleanAllocation(req.Allocation)
	if err != nil {
		writeError(w, err.Error(), codeValidation, http.StatusBadRequest)
		return
	}
	var weightSum float64
	for _, item := range alloc {
		weightSum += item.Weight
	}
	if weightSum > 1.0+1e-6 {
		writeError(w, "allocation weights cannot exceed 1.0", codeValidation, http.StatusBadRequest)
		return
	}

	// Tickers outside the known universe must hold data over the whole
	// period; one invalid newcomer rejects the call untouched.
	known := make(map[string]bool, len(sess.Universe))
	for _, t := range sess.Universe {
		known[t] = true
	}
	var newcomers []string
	for _, item := range alloc {
		if !known[item.Ticker] {
			newcomers = append(newcomers, item.Ticker)
		}
	}
	if len(newcomers) > 0 {
		validNew, rejectedNew := s.validateUniverse(ctx, newcomers, sess.Period.Start, sess.Period.End)
		if len(rejectedNew) > 0 {
			writeError(w, "no data in the session period for: "+strings.Join(rejectedNew, ", "), codeData, http.StatusBadRequest)
			return
		}
		for _, t := range validNew {
			known[t] = true
		}
		universe := make([]string, 0, len(known))
		for t := range known {
			universe = append(universe, t)
		}
		sort.Strings(universe)
		sess.Universe = universe
	}

	weights := make(map[string]float64, len(alloc))
	tickers := make([]string, 0, len(alloc))
	for _, item := range alloc {
		weights[item.Ticker] = item.Weight
		tickers = append(tickers, item.Ticker)
	}

	rets, err := series.RangeReturns(ctx, s.provider, tickers, sess.Period.Start, sess.Period.End, pending.Start, pending.End)
	if err != nil {
		var ide *series.InsufficientDataError
		if errors.As(err, &ide) {
			writeError(w, "insufficient data for tickers: "+strings.Join(ide.Tickers, ", "), codeData, http.StatusBadRequest)
			return
		}
		writeError(w, "price provider unavailable", codeInternal, http.StatusInternalServerError)
		return
	}
	retMarket := series.WeightedReturn(weights, rets)

	// Live events shift this turn and decay; fresh draws start
	// shifting from the next one.
	sess.Sectors = events.ResolveSectors(alloc, sess.Sectors)
	portfolioShift, tickerShifts, applied, remaining := events.Apply(sess.ActiveEvents, alloc, sess.Sectors)
	drawn := events.Draw(sess.Seed, pending.N, countLoggedEvents(sess), sess.Difficulty, alloc, sess.Sectors)
	sess.ActiveEvents = append(remaining, drawn...)

	retTotal := round6(retMarket + portfolioShift + series.WeightedReturn(weights, tickerShifts))

	capitalBefore := sess.CapitalCurrent
	dca := decimal.Zero
	if req.UseDCA && sess.TotalTurns() > 0 {
		dca = sess.CapitalInitial.Div(decimal.NewFromInt(int64(sess.TotalTurns())))
		sess.InvestedSoFar = sess.InvestedSoFar.Add(dca)
	}
	capitalAfter := capitalBefore.Add(dca).
		Mul(decimal.NewFromFloat(1 + retTotal)).
		Round(2)
	sess.CapitalCurrent = capitalAfter
	sess.CumReturn = round6(capitalAfter.Div(sess.CapitalInitial).InexactFloat64() - 1)

	invested := sess.InvestedSoFar
	pnlAbs := capitalAfter.Sub(invested)
	var pnlPct, cumNet float64
	if invested.IsPositive() {
		pnlPct = round6(pnlAbs.Div(invested).InexactFloat64())
		cumNet = round6(capitalAfter.Div(invested).InexactFloat64() - 1)
	}
	sess.CumReturnNet = cumNet

	now := time.Now().UTC()
	for i := range sess.Turns {
		if sess.Turns[i].N == pending.N {
			sess.Turns[i].Status = model.TurnCompleted
			at := now
			sess.Turns[i].CompletedAt = &at
		}
	}

	snap := model.TurnSnapshot{
		TurnN:             pending.N,
		Start:             pending.Start,
		End:               pending.End,
		Allocation:        alloc,
		UseDCA:            req.UseDCA,
		DCAInTurn:         dca.Round(2),
		InvestedSoFar:     invested.Round(2),
		RetMarket:         retMarket,
		RetPortfolioShift: portfolioShift,
		TickerShifts:      tickerShifts,
		RetTotal:          retTotal,
		CapitalBefore:     capitalBefore,
		CapitalAfter:      capitalAfter,
		PnLAbs:            pnlAbs.Round(2),
		PnLPct:            pnlPct,
		CumReturnNet:      cumNet,
		DeltaVsPrev:       capitalAfter.Sub(capitalBefore).Round(2),
		EventsApplied:     applied,
		EventsDrawn:       drawn,
		ClosedAt:          now,
	}
	sess.History = append(sess.History, snap)
	sess.Decisions = append(sess.Decisions, model.Decision{
		TurnN:      pending.N,
		Allocation: alloc,
		UseDCA:     req.UseDCA,
		At:         now,
	})
	sess.EventsLog = append(sess.EventsLog, model.EventLogEntry{
		TurnN:   pending.N,
		Applied: applied,
		Drawn:   drawn,
		Source:  model.EventSourceAuto,
		At:      now,
	})

	var nextTurn *model.Turn
	if next, open := sess.PendingTurn(); open {
		nextTurn = &next
	} else {
		sess.Closed = true
	}
	sess.UpdatedAt = now

	if err := s.store.PutSession(ctx, sess); err != nil {
		writeError(w, "failed to persist session", codeInternal, http.StatusInternalServerError)
		return
	}

	metrics.TurnsClosed.WithLabelValues(string(sess.Difficulty)).Inc()
	metrics.TurnCloseLatency.Observe(time.Since(started).Seconds())
	for _, ev := range drawn {
		metrics.EventsDrawn.WithLabelValues(string(ev.Scope), ev.Source).Inc()
	}

	slog.Info("turn closed",
		"session", sessionID,
		"turn", pending.N,
		"ret_market", retMarket,
		"ret_total", retTotal,
		"capital", capitalAfter.String(),
		"events_applied", len(applied),
		"events_drawn", len(drawn),
		"closed", sess.Closed,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "turn_closed",
			SessionID: sessionID,
			TurnN:     pending.N,
			RetTotal:  retTotal,
			Closed:    sess.Closed,
		})
	}

	writeJSON(w, http.StatusOK, CloseTurnResponse{
		Snapshot:  snap,
		CumReturn: sess.CumReturn,
		NextTurn:  nextTurn,
	})
}

// InjectEvent handles POST /api/v1/career/sessions/{sessionID}/events
//
// The event joins the active set and applies from the next close on.
// No draw happens and nothing decays.
func (s *Service) InjectEvent(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var input events.ManualEventInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, "invalid request body", codeValidation, http.StatusBadRequest)
		return
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}
	if sess.Closed {
		writeError(w, "session already finished", codeConflict, http.StatusConflict)
		return
	}
	pending, ok := sess.PendingTurn()
	if !ok {
		writeError(w, "no pending turns", codeConflict, http.StatusConflict)
		return
	}

	ev, err := events.ValidateManual(input, pending.N)
	if err != nil {
		writeError(w, err.Error(), codeValidation, http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	sess.ActiveEvents = append(sess.ActiveEvents, ev)
	sess.EventsLog = append(sess.EventsLog, model.EventLogEntry{
		TurnN:  pending.N,
		Drawn:  []model.Event{ev},
		Source: model.EventSourceManual,
		At:     now,
	})
	sess.UpdatedAt = now

	if err := s.store.PutSession(ctx, sess); err != nil {
		writeError(w, "failed to persist session", codeInternal, http.StatusInternalServerError)
		return
	}

	metrics.EventsDrawn.WithLabelValues(string(ev.Scope), ev.Source).Inc()
	slog.Info("event injected",
		"session", sessionID,
		"turn", pending.N,
		"scope", ev.Scope,
		"target", ev.Target,
		"impact", ev.ImpactPct,
		"duration", ev.RemainingTurns,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "event_injected",
			SessionID: sessionID,
			TurnN:     pending.N,
			EventName: ev.Name,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"event":         ev,
		"active_events": sess.ActiveEvents,
	})
}

// ListEvents handles GET /api/v1/career/sessions/{sessionID}/events
func (s *Service) ListEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_events": sess.ActiveEvents,
		"events_log":    sess.EventsLog,
	})
}

// cleanAllocation normalizes a submitted allocation: tickers upper-
// cased, blanks and non-positive weights dropped, duplicates summed in
// first-seen order, weights rounded to 6 decimals.
func cleanAllocation(raw []AllocationInput) ([]model.Allocation, error) {
	weights := make(map[string]float64)
	var order []string
	for _, entry := range raw {
		ticker := strings.ToUpper(strings.TrimSpace(entry.Ticker))
		if ticker == "" || entry.Weight <= 0 {
			continue
		}
		if _, ok := weights[ticker]; !ok {
			order = append(order, ticker)
		}
		weights[ticker] += entry.Weight
	}
	if len(order) > maxAssets {
		return nil, errors.New("a portfolio holds at most 10 assets per turn")
	}
	out := make([]model.Allocation, 0, len(order))
	for _, ticker := range order {
		out = append(out, model.Allocation{Ticker: ticker, Weight: round6(weights[ticker])})
	}
	return out, nil
}

// countLoggedEvents is the draw-stream history component: every event
// ever born in this session, auto or manual.
func countLoggedEvents(sess *model.Session) int {
	n := 0
	for _, entry := range sess.EventsLog {
		n += len(entry.Drawn)
	}
	return n
}

func round6(x float64) float64 { return math.Round(x*1e6) / 1e6 }
