package store

import (
	"context"
	"sort"
	"sync"

	"github.com/inversim/career-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	ranking  map[string]model.RankingEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*model.Session),
		ranking:  make(map[string]model.RankingEntry),
	}
}

func (s *MemoryStore) PutSession(_ context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a clone so later caller mutations cannot reach the stored
	// document.
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, *sess.Clone())
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

func (s *MemoryStore) UpsertRankingEntry(_ context.Context, e model.RankingEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ranking[e.SessionID] = e
	return nil
}

func (s *MemoryStore) ListRanking(_ context.Context) ([]model.RankingEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]model.RankingEntry, 0, len(s.ranking))
	for _, e := range s.ranking {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].SubmittedAt.Before(entries[j].SubmittedAt)
	})
	return entries, nil
}
