package career

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/inversim/career-engine/internal/dates"
	"github.com/inversim/career-engine/internal/model"
	"github.com/inversim/career-engine/internal/series"
)

// NormalizedSeries handles GET /api/v1/career/series?tickers=&start=&end=
//
// Stateless comparison endpoint: each requested ticker rebased to 100
// at its first in-range observation. Tickers without data come back as
// empty series rather than errors.
func (s *Service) NormalizedSeries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tickers := parseTickers(q.Get("tickers"))
	if len(tickers) == 0 {
		writeError(w, "at least one ticker is required", codeValidation, http.StatusBadRequest)
		return
	}
	if len(tickers) > maxAssets {
		writeError(w, "at most 10 tickers per request", codeValidation, http.StatusBadRequest)
		return
	}

	start, err := dates.Parse(q.Get("start"))
	if err != nil {
		writeError(w, "invalid start date, use YYYY-MM-DD", codeValidation, http.StatusBadRequest)
		return
	}
	end, err := dates.Parse(q.Get("end"))
	if err != nil {
		writeError(w, "invalid end date, use YYYY-MM-DD", codeValidation, http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		writeError(w, "end must be on or after start", codeValidation, http.StatusBadRequest)
		return
	}

	indexed, err := series.Normalize(r.Context(), s.provider, tickers, start, end)
	if err != nil {
		writeError(w, "price provider unavailable", codeInternal, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"base":   start,
		"series": indexed,
	})
}

// SessionSeries handles GET /api/v1/career/sessions/{sessionID}/series?tickers=
//
// Like NormalizedSeries but windowed to what the session has actually
// played, with a map of the turn each ticker was first allocated on.
func (s *Service) SessionSeries(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, "session not found", codeNotFound, http.StatusNotFound)
		return
	}

	tickers := parseTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		writeError(w, "at least one ticker is required", codeValidation, http.StatusBadRequest)
		return
	}
	if len(tickers) > maxAssets {
		writeError(w, "at most 10 tickers per request", codeValidation, http.StatusBadRequest)
		return
	}
	if len(sess.Turns) == 0 {
		writeError(w, "session has no turn calendar", codeValidation, http.StatusBadRequest)
		return
	}

	window := elapsedRange(sess)
	indexed, err := series.Normalize(r.Context(), s.provider, tickers, window.Start, window.End)
	if err != nil {
		writeError(w, "price provider unavailable", codeInternal, http.StatusInternalServerError)
		return
	}

	entered := make(map[string]int, len(tickers))
	for ticker, turnN := range enteredOnTurn(sess) {
		for _, requested := range tickers {
			if ticker == requested {
				entered[ticker] = turnN
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"base":            window.Start,
		"range":           window,
		"series":          indexed,
		"entered_on_turn": entered,
	})
}

// parseTickers splits a comma-separated ticker list, uppercasing and
// deduplicating while preserving order.
func parseTickers(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		ticker := strings.ToUpper(strings.TrimSpace(part))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		out = append(out, ticker)
	}
	return out
}

// elapsedRange is the window a session has actually played: period
// start through the last completed turn's end, or the first turn's end
// before any close. Never inverted.
func elapsedRange(sess *model.Session) model.Period {
	end := sess.Turns[0].End
	for _, t := range sess.Turns {
		if t.Status == model.TurnCompleted && t.End.After(end) {
			end = t.End
		}
	}
	if end.Before(sess.Period.Start) {
		end = sess.Period.Start
	}
	return model.Period{Start: sess.Period.Start, End: end}
}

// enteredOnTurn maps each ever-allocated ticker to the first turn it
// appeared on.
func enteredOnTurn(sess *model.Session) map[string]int {
	entered := make(map[string]int)
	for _, d := range sess.Decisions {
		for _, a := range d.Allocation {
			ticker := strings.ToUpper(strings.TrimSpace(a.Ticker))
			if ticker == "" {
				continue
			}
			if current, ok := entered[ticker]; !ok || d.TurnN < current {
				entered[ticker] = d.TurnN
			}
		}
	}
	return entered
}
