package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inversim/career-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Sessions are persisted as whole JSONB documents: a session mutates as one
// aggregate (turns, decisions, history, events) under the service's session
// lock, so the document is the unit of consistency. Monetary values travel
// inside the document as decimal strings, never as floats.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the tables if they do not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS sessions (
		     id         TEXT PRIMARY KEY,
		     doc        JSONB NOT NULL,
		     created_at TIMESTAMPTZ NOT NULL
		 )`)
	if err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS ranking (
		     session_id   TEXT PRIMARY KEY,
		     doc          JSONB NOT NULL,
		     score        DOUBLE PRECISION NOT NULL,
		     submitted_at TIMESTAMPTZ NOT NULL
		 )`)
	if err != nil {
		return fmt.Errorf("create ranking table: %w", err)
	}
	return nil
}

func (s *PostgresStore) PutSession(ctx context.Context, sess *model.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, doc, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc`,
		sess.ID, doc, sess.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var sess model.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessionDocs(rows)
}

func (s *PostgresStore) UpsertRankingEntry(ctx context.Context, e model.RankingEntry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ranking entry %s: %w", e.SessionID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ranking (session_id, doc, score, submitted_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id) DO UPDATE
		 SET doc = EXCLUDED.doc, score = EXCLUDED.score, submitted_at = EXCLUDED.submitted_at`,
		e.SessionID, doc, e.Score, e.SubmittedAt,
	)
	return err
}

func (s *PostgresStore) ListRanking(ctx context.Context) ([]model.RankingEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM ranking ORDER BY score DESC, submitted_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RankingEntry
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e model.RankingEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanSessionDocs reads JSONB documents into Session values. Documents that
// no longer decode are skipped so one bad row cannot take down a listing.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanSessionDocs(rows pgxRows) ([]model.Session, error) {
	var sessions []model.Session
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sess model.Session
		if err := json.Unmarshal(doc, &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}
