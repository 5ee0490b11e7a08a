package repository

import (
	"context"
	"sync"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

type userRecord struct {
	mu     sync.RWMutex
	prefs  *domain.UserModelPreferences
	models []domain.ModelConfig
}

// InMemoryStore keeps one record per user. The map lock is only held to
// find or create a record; each record has its own lock, so writers for
// different users never contend.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[string]*userRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users: make(map[string]*userRecord),
	}
}

func (s *InMemoryStore) lookup(userID string) *userRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[userID]
}

func (s *InMemoryStore) record(userID string) *userRecord {
	if rec := s.lookup(userID); rec != nil {
		return rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.users[userID]; ok {
		return rec
	}
	rec := &userRecord{}
	s.users[userID] = rec
	return rec
}

func (s *InMemoryStore) GetPreferences(ctx context.Context, userID string) (domain.UserModelPreferences, bool, error) {
	rec := s.lookup(userID)
	if rec == nil {
		return domain.UserModelPreferences{}, false, nil
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()

	if rec.prefs == nil {
		return domain.UserModelPreferences{}, false, nil
	}
	return *rec.prefs, true, nil
}

func (s *InMemoryStore) UpdatePreferences(ctx context.Context, userID string, defaults domain.UserModelPreferences, update domain.PreferencesUpdate) (domain.UserModelPreferences, error) {
	rec := s.record(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	current := defaults
	if rec.prefs != nil {
		current = *rec.prefs
	}
	current.UserID = userID

	merged := update.Apply(current)
	rec.prefs = &merged
	return merged, nil
}

func (s *InMemoryStore) ListCustomModels(ctx context.Context, userID string) ([]domain.ModelConfig, error) {
	rec := s.lookup(userID)
	if rec == nil {
		return nil, nil
	}

	rec.mu.RLock()
	defer rec.mu.RUnlock()

	models := make([]domain.ModelConfig, len(rec.models))
	for i, m := range rec.models {
		models[i] = m.Clone()
	}
	return models, nil
}

func (s *InMemoryStore) UpsertCustomModel(ctx context.Context, userID string, cfg domain.ModelConfig) error {
	rec := s.record(userID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	cfg = cfg.Clone()
	for i := range rec.models {
		if rec.models[i].ID == cfg.ID {
			rec.models[i] = cfg
			return nil
		}
	}
	rec.models = append(rec.models, cfg)
	return nil
}
