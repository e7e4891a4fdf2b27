// Package career provides the HTTP handlers and business logic for the
// investing career mode: session creation, turn resolution, market
// events, performance reports, and the leaderboard.
//
// A session is mutated read-modify-write as a whole document under a
// per-session lock. Monetary values use shopspring/decimal, never raw
// float64.
package career

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/events"
	"github.com/inversim/career-engine/internal/metrics"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/prices"
	"github.com/inversim/career-engine/internal/report"
	"github.com/inversim/career-engine/internal/schedule"
	"github.com/inversim/career-engine/internal/store"
)

// maxAssets caps portfolio cardinality per turn, after aggregation.
const maxAssets = 10

// defaultCapital is the starting capital when the request omits it.
var defaultCapital = decimal.NewFromInt(50000)

// Error categories carried in every error payload.
const (
	codeValidation = "validation"
	codeNotFound   = "not_found"
	codeData       = "data"
	codeConflict   = "conflict"
	codeInternal   = "internal"
)

// Service handles career sessions. Mutations serialize on a per-session
// lock (single-instance). For horizontal scaling, replace with
// distributed locking or database-level optimistic concurrency.
type Service struct {
	store    store.Store
	provider prices.Provider
	reports  *report.Builder
	wsHub    *WSHub // optional WebSocket hub for the activity feed

	mu    sync.Mutex
	locks map[string]*sync.Mutex // session id -> write lock
}

// NewService creates a new career service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, provider prices.Provider, reports *report.Builder, hub *WSHub) *Service {
	return &Service{
		store:    st,
		provider: provider,
		reports:  reports,
		wsHub:    hub,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Routes registers every career endpoint on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/career/sessions", s.CreateSession)
	r.Get("/career/sessions", s.ListSessions)
	r.Get("/career/sessions/{sessionID}", s.GetSession)
	r.Post("/career/sessions/{sessionID}/close-turn", s.CloseTurn)
	r.Post("/career/sessions/{sessionID}/events", s.InjectEvent)
	r.Get("/career/sessions/{sessionID}/events", s.ListEvents)
	r.Get("/career/sessions/{sessionID}/series", s.SessionSeries)
	r.Get("/career/sessions/{sessionID}/report", s.GetReport)
	r.Get("/career/sessions/{sessionID}/report/chart.png", s.ReportChart)
	r.Get("/career/sessions/{sessionID}/theoretical", s.GetTheoretical)
	r.Get("/career/series", s.NormalizedSeries)
	r.Post("/career/ranking", s.SubmitRanking)
	r.Get("/career/ranking", s.GetRanking)
}

// sessionLock returns the write lock for one session, creating it on
// first use. Locks are never removed; a session id is a few bytes.
func (s *Service) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// --- Request/Response types ---

// CreateSessionRequest is the JSON body for session creation.
type CreateSessionRequest struct {
	Player     string           `json:"player"`
	Difficulty string           `json:"difficulty"`
	Universe   []string         `json:"universe"`
	Capital    *decimal.Decimal `json:"capital"` // nil -> 50000
	// Seed accepts an integer or a numeric string; anything else falls
	// back to the daily player-derived seed.
	Seed        any    `json:"seed"`
	PeriodMode  string `json:"period_mode"` // "auto" (default) or "manual"
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
}

// CreateSessionResponse echoes the new session's identity, its period,
// and only the first turn; the rest of the calendar is revealed as the
// player advances.
type CreateSessionResponse struct {
	SessionID        string           `json:"session_id"`
	Period           model.Period     `json:"period"`
	Turns            []model.Turn     `json:"turns"`
	Difficulty       model.Difficulty `json:"difficulty"`
	Capital          decimal.Decimal  `json:"capital"`
	RejectedUniverse []string         `json:"rejected_universe"`
}

// --- HTTP Handlers ---

// CreateSession handles POST /api/v1/career/sessions
func (s *Service) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeValidation, http.StatusBadRequest)
		return
	}

	difficulty, err := model.ParseDifficulty(req.Difficulty)
	if err != nil {
		writeError(w, "invalid difficulty, use principiante, intermedio or experto", codeValidation, http.StatusBadRequest)
		return
	}

	capital := defaultCapital
	if req.Capital != nil {
		capital = *req.Capital
	}
	if capital.LessThanOrEqual(decimal.Zero) {
		writeError(w, "capital must be greater than zero", codeValidation, http.StatusBadRequest)
		return
	}

	player := strings.TrimSpace(req.Player)
	seed := resolveSeed(req.Seed, player)

	period, turns, err := s.buildSchedule(req, difficulty, seed)
	if err != nil {
		writeError(w, err.Error(), codeValidation, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	universe, rejected := s.validateUniverse(ctx, req.Universe, period.Start, period.End)
	sort.Strings(universe)

	id, err := s.newSessionID(ctx)
	if err != nil {
		writeError(w, "failed to allocate session id", codeInternal, http.StatusInternalServerError)
		return
	}

	now := time.Now().UTC()
	sess := &model.Session{
		ID:               id,
		Player:           player,
		Difficulty:       difficulty,
		Seed:             seed,
		CapitalInitial:   capital,
		CapitalCurrent:   capital,
		InvestedSoFar:    capital,
		PeriodMode:       periodMode(req.PeriodMode),
		Period:           period,
		Universe:         universe,
		RejectedUniverse: rejected,
		Turns:            turns,
		Decisions:        []model.Decision{},
		History:          []model.TurnSnapshot{},
		ActiveEvents:     []model.Event{},
		EventsLog:        []model.EventLogEntry{},
		Sectors:          map[string]string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.store.PutSession(ctx, sess); err != nil {
		writeError(w, "failed to persist session", codeInternal, http.StatusInternalServerError)
		return
	}

	metrics.SessionsCreated.WithLabelValues(string(difficulty)).Inc()
	slog.Info("career session created",
		"id", id,
		"player", player,
		"difficulty", difficulty,
		"period_start", period.Start,
		"period_end", period.End,
		"turns", len(turns),
		"rejected", len(rejected),
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:       "session_created",
			SessionID:  id,
			Player:     player,
			Difficulty: string(difficulty),
		})
	}

	if rejected == nil {
		rejected = []string{}
	}
	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID:        id,
		Period:           period,
		Turns:            turns[:1],
		Difficulty:       difficulty,
		Capital:          capital,
		RejectedUniverse: rejected,
	})
}

// GetSession handles GET /api/v1/career/sessions/{sessionID}
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*model.Session{"session": sess})
}

// SessionSummary is one row of the session listing.
type SessionSummary struct {
	SessionID      string           `json:"session_id"`
	Player         string           `json:"player"`
	Difficulty     model.Difficulty `json:"difficulty"`
	Period         model.Period     `json:"period"`
	TurnsTotal     int              `json:"turns_total"`
	TurnsCompleted int              `json:"turns_completed"`
	CapitalCurrent decimal.Decimal  `json:"capital_current"`
	CumReturn      float64          `json:"cum_return"`
	Closed         bool             `json:"closed"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ListSessions handles GET /api/v1/career/sessions
func (s *Service) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeError(w, "failed to list sessions", codeInternal, http.StatusInternalServerError)
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for i := range sessions {
		sess := &sessions[i]
		summaries = append(summaries, SessionSummary{
			SessionID:      sess.ID,
			Player:         sess.Player,
			Difficulty:     sess.Difficulty,
			Period:         sess.Period,
			TurnsTotal:     sess.TotalTurns(),
			TurnsCompleted: len(sess.History),
			CapitalCurrent: sess.CapitalCurrent,
			CumReturn:      sess.CumReturn,
			Closed:         sess.Closed,
			CreatedAt:      sess.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string][]SessionSummary{"sessions": summaries})
}

// --- Session creation helpers ---

// buildSchedule resolves the simulated period and its turn calendar,
// either drawn from the seed or fixed by an explicit date range.
func (s *Service) buildSchedule(req CreateSessionRequest, difficulty model.Difficulty, seed int64) (model.Period, []model.Turn, error) {
	switch periodMode(req.PeriodMode) {
	case model.PeriodModeAuto:
		return schedule.GenerateSchedule(events.PeriodRNG(seed), difficulty, dates.Today())
	case model.PeriodModeManual:
		start, err := dates.Parse(req.PeriodStart)
		if err != nil {
			return model.Period{}, nil, fmt.Errorf("invalid period_start: %w", err)
		}
		end, err := dates.Parse(req.PeriodEnd)
		if err != nil {
			return model.Period{}, nil, fmt.Errorf("invalid period_end: %w", err)
		}
		if end.Before(start) {
			return model.Period{}, nil, errors.New("period_end must be on or after period_start")
		}
		spec, ok := schedule.SpecFor(difficulty)
		if !ok {
			return model.Period{}, nil, fmt.Errorf("no schedule for difficulty %s", difficulty)
		}
		period := model.Period{Start: start, End: end}
		return period, schedule.BuildTurns(start, end, spec.StepMonths), nil
	default:
		return model.Period{}, nil, fmt.Errorf("unknown period_mode %q", req.PeriodMode)
	}
}

func periodMode(raw string) string {
	mode := strings.ToLower(strings.TrimSpace(raw))
	if mode == "" {
		return model.PeriodModeAuto
	}
	return mode
}

// resolveSeed accepts an integer or numeric-string seed; anything else,
// including absence, derives one from the player name and the UTC day.
func resolveSeed(raw any, player string) int64 {
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n
		}
	}
	return seedFromPlayer(player)
}

func seedFromPlayer(player string) int64 {
	if player == "" {
		player = "anon"
	}
	day := time.Now().UTC().Format("2006-01-02")
	sum := sha256.Sum256([]byte(player + "_" + day))
	n, _ := strconv.ParseUint(hex.EncodeToString(sum[:])[:16], 16, 64)
	return int64(n)
}

// newSessionID draws car_ ids until one is free in the store.
func (s *Service) newSessionID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		var buf [3]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("new session id: %w", err)
		}
		id := "car_" + hex.EncodeToString(buf[:])
		_, err := s.store.GetSession(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("new session id: %w", err)
		}
	}
	return "", errors.New("new session id: space exhausted")
}

// validateUniverse screens tickers against the provider over the
// period. Cash always passes; a ticker passes with at least one
// observation. Any fetch failure rejects the ticker rather than the
// call, so one dead symbol cannot block session creation.
func (s *Service) validateUniverse(ctx context.Context, tickers []string, start, end dates.Date) (valid, rejected []string) {
	seen := make(map[string]bool)
	for _, raw := range tickers {
		ticker := strings.ToUpper(strings.TrimSpace(raw))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		if prices.IsCash(ticker) {
			valid = append(valid, ticker)
			continue
		}
		pts, err := s.provider.Series(ctx, ticker, start, end)
		if err != nil || len(pts) == 0 {
			rejected = append(rejected, ticker)
			continue
		}
		valid = append(valid, ticker)
	}
	return valid, rejected
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response with its category code.
func writeError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
