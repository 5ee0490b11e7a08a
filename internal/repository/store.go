// Package repository persists per-user model preferences and custom model
// configurations. Implementations:
//   - InMemoryStore: single process, per-user locking
//   - RedisStore: shared across instances, Lua for ordered upserts
//   - PostgresStore: durable, upserts via ON CONFLICT
package repository

import (
	"context"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

// Store is the storage boundary used by the model registry.
// Writes to the same user are serialized by the backend; last write wins.
type Store interface {
	// GetPreferences returns the stored preferences and whether a record exists.
	GetPreferences(ctx context.Context, userID string) (domain.UserModelPreferences, bool, error)

	// UpdatePreferences merges update into the stored record, or into defaults
	// when the user has none, and returns the persisted result.
	UpdatePreferences(ctx context.Context, userID string, defaults domain.UserModelPreferences, update domain.PreferencesUpdate) (domain.UserModelPreferences, error)

	// ListCustomModels returns the user's configs in insertion order.
	ListCustomModels(ctx context.Context, userID string) ([]domain.ModelConfig, error)

	// UpsertCustomModel replaces the config with the same id or appends it.
	UpsertCustomModel(ctx context.Context, userID string, cfg domain.ModelConfig) error
}

// CredentialSealer protects ModelConfig.APIKey at rest.
type CredentialSealer interface {
	Seal(plaintext string) (string, error)
	Open(value string) (string, error)
}

func sealConfig(s CredentialSealer, cfg domain.ModelConfig) (domain.ModelConfig, error) {
	if s == nil || cfg.APIKey == "" {
		return cfg, nil
	}
	sealed, err := s.Seal(cfg.APIKey)
	if err != nil {
		return cfg, err
	}
	cfg.APIKey = sealed
	return cfg, nil
}

func openConfig(s CredentialSealer, cfg domain.ModelConfig) (domain.ModelConfig, error) {
	if s == nil || cfg.APIKey == "" {
		return cfg, nil
	}
	plain, err := s.Open(cfg.APIKey)
	if err != nil {
		return cfg, err
	}
	cfg.APIKey = plain
	return cfg, nil
}
