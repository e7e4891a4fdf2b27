package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	// Register sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/inversim/career-engine/internal/model"
)

// SQLiteStore implements Store on a single-file SQLite database. It keeps
// the same document model as PostgresStore, which makes it the default for
// single-node deployments that want persistence without running a server.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and prepares
// the schema. WAL mode keeps readers from blocking the writer.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS sessions (
		     id         TEXT PRIMARY KEY,
		     doc        TEXT NOT NULL,
		     created_at TEXT NOT NULL
		 )`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	if _, err := db.Exec(
		`CREATE TABLE IF NOT EXISTS ranking (
		     session_id   TEXT PRIMARY KEY,
		     doc          TEXT NOT NULL,
		     score        REAL NOT NULL,
		     submitted_at TEXT NOT NULL
		 )`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ranking table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) PutSession(ctx context.Context, sess *model.Session) error {
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, doc, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET doc = excluded.doc`,
		sess.ID, string(doc), sess.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	return err
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM sessions WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var sess model.Session
	if err := json.Unmarshal([]byte(doc), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var sess model.Session
		if err := json.Unmarshal([]byte(doc), &sess); err != nil {
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *SQLiteStore) UpsertRankingEntry(ctx context.Context, e model.RankingEntry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode ranking entry %s: %w", e.SessionID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ranking (session_id, doc, score, submitted_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE
		 SET doc = excluded.doc, score = excluded.score, submitted_at = excluded.submitted_at`,
		e.SessionID, string(doc), e.Score, e.SubmittedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	return err
}

func (s *SQLiteStore) ListRanking(ctx context.Context) ([]model.RankingEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM ranking ORDER BY score DESC, submitted_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RankingEntry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e model.RankingEntry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
