package career

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/inversim/career-engine/internal/metrics"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/report"
	"github.com/inversim/career-engine/internal/series"
)

// scoreTolerance is how far a claimed score may drift from the
// server-side recomputation before a ranking submission is rejected.
const scoreTolerance = 0.1

// GetReport handles GET /api/v1/career/sessions/{sessionID}/report
//
// Query: benchmark (default ^GSPC), include_series (default true).
func (s *Service) GetReport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}

	includeSeries := true
	if raw := r.URL.Query().Get("include_series"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, "include_series must be a boolean", codeValidation, http.StatusBadRequest)
			return
		}
		includeSeries = v
	}

	rep, err := s.reports.Build(r.Context(), sess, r.URL.Query().Get("benchmark"), includeSeries)
	if err != nil {
		writeReportError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// ReportChart handles GET /api/v1/career/sessions/{sessionID}/report/chart.png
func (s *Service) ReportChart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}

	rep, err := s.reports.Build(r.Context(), sess, r.URL.Query().Get("benchmark"), true)
	if err != nil {
		writeReportError(w, err)
		return
	}
	png, err := report.RenderChart(rep)
	if err != nil {
		writeError(w, "failed to render chart", codeInternal, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// GetTheoretical handles GET /api/v1/career/sessions/{sessionID}/theoretical?kmax=
func (s *Service) GetTheoretical(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}

	kmax := 3
	if raw := r.URL.Query().Get("kmax"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, "kmax must be an integer", codeValidation, http.StatusBadRequest)
			return
		}
		kmax = n
	}

	combos := s.reports.Theoretical(r.Context(), sess, kmax)
	if combos == nil {
		combos = []report.Combo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":  sess.ID,
		"theoretical": combos,
	})
}

// SubmitRankingRequest is the JSON body for a leaderboard submission.
// The claimed score and stars are cross-checked against a server-side
// recomputation before the entry is accepted.
type SubmitRankingRequest struct {
	SessionID string  `json:"session_id"`
	Consent   bool    `json:"consent"`
	Score     float64 `json:"score"`
	Stars     int     `json:"stars"`
}

// SubmitRanking handles POST /api/v1/career/ranking
func (s *Service) SubmitRanking(w http.ResponseWriter, r *http.Request) {
	var req SubmitRankingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", codeValidation, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		writeError(w, "session_id is required", codeValidation, http.StatusBadRequest)
		return
	}
	if !req.Consent {
		writeError(w, "consent is required to join the ranking", codeValidation, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, req.SessionID)
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}

	// Never trust the client's figures; rebuild against the default
	// benchmark and compare.
	rep, err := s.reports.Build(ctx, sess, "", false)
	if err != nil {
		writeReportError(w, err)
		return
	}
	if math.Abs(req.Score-rep.Score) > scoreTolerance || req.Stars != rep.Stars {
		metrics.RankingSubmissions.WithLabelValues("rejected").Inc()
		writeError(w,
			fmt.Sprintf("claimed score %.2f (%d stars) does not match computed %.2f (%d stars)",
				req.Score, req.Stars, rep.Score, rep.Stars),
			codeConflict, http.StatusConflict)
		return
	}

	entry := model.RankingEntry{
		SessionID:   sess.ID,
		Player:      sess.Player,
		Difficulty:  sess.Difficulty,
		Score:       rep.Score,
		Stars:       rep.Stars,
		CAGR:        rep.PortfolioEquity.Metrics.CAGR,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertRankingEntry(ctx, entry); err != nil {
		writeError(w, "failed to persist ranking entry", codeInternal, http.StatusInternalServerError)
		return
	}

	metrics.RankingSubmissions.WithLabelValues("accepted").Inc()
	slog.Info("ranking submission accepted",
		"session", sess.ID,
		"player", sess.Player,
		"score", rep.Score,
		"stars", rep.Stars,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:      "ranking_updated",
			SessionID: sess.ID,
			Player:    sess.Player,
			Score:     rep.Score,
		})
	}

	writeJSON(w, http.StatusCreated, map[string]model.RankingEntry{"entry": entry})
}

// GetRanking handles GET /api/v1/career/ranking
func (s *Service) GetRanking(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListRanking(r.Context())
	if err != nil {
		writeError(w, "failed to list ranking", codeInternal, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, map[string][]model.RankingEntry{"ranking": entries})
}

// writeReportError maps a report failure onto the wire: missing price
// data is the caller's problem, anything else is ours.
func writeReportError(w http.ResponseWriter, err error) {
	var ide *series.InsufficientDataError
	if errors.As(err, &ide) {
		writeError(w, "no price data for: "+strings.Join(ide.Tickers, ", "), codeData, http.StatusBadRequest)
		return
	}
	writeError(w, "failed to build report", codeInternal, http.StatusInternalServerError)
}
