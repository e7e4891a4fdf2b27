// Package store defines the persistence interface for the career
// engine. Implementations include PostgreSQL and SQLite (sources of
// truth), Redis (read-through cache), and in-memory (for testing).
//
// Sessions are persisted as whole documents: a mutation reads the
// session, changes it under the service's session lock, and writes the
// entire document back.
package store

import (
	"context"
	"errors"

	"github.com/inversim/career-engine/internal/model"
)

// ErrNotFound reports a missing session.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface.
type Store interface {
	// --- Sessions ---

	// PutSession inserts or overwrites a session document.
	PutSession(ctx context.Context, s *model.Session) error

	// GetSession retrieves an independent copy of a session, or
	// ErrNotFound.
	GetSession(ctx context.Context, id string) (*model.Session, error)

	// ListSessions returns all sessions ordered by creation time.
	// Unreadable documents are skipped.
	ListSessions(ctx context.Context) ([]model.Session, error)

	// --- Ranking ---

	// UpsertRankingEntry inserts or replaces a leaderboard row by
	// session id.
	UpsertRankingEntry(ctx context.Context, e model.RankingEntry) error

	// ListRanking returns the leaderboard ordered by score descending,
	// oldest submission first on ties.
	ListRanking(ctx context.Context) ([]model.RankingEntry, error)
}
