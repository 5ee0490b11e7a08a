// Package registry is the source of truth for which models exist, which one
// is the system default and what each user has selected.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/repository"
)

type Registry struct {
	catalog       []domain.ModelConfig
	systemDefault domain.ModelConfig
	store         repository.Store
}

// New validates the catalog. It must contain exactly one system default and
// no duplicate or empty ids.
func New(catalog []domain.ModelConfig, store repository.Store) (*Registry, error) {
	seen := make(map[string]struct{}, len(catalog))
	var defaults []domain.ModelConfig

	for _, m := range catalog {
		if m.ID == "" {
			return nil, fmt.Errorf("%w: catalog entry %q has no id", domain.ErrInvalidModelConfig, m.Name)
		}
		if _, dup := seen[m.ID]; dup {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateModelID, m.ID)
		}
		seen[m.ID] = struct{}{}
		if m.IsSystemDefault {
			defaults = append(defaults, m)
		}
	}

	switch len(defaults) {
	case 0:
		return nil, domain.ErrNoSystemDefault
	case 1:
	default:
		return nil, fmt.Errorf("%w: %s and %s", domain.ErrMultipleSystemDefaults, defaults[0].ID, defaults[1].ID)
	}

	cat := make([]domain.ModelConfig, len(catalog))
	for i, m := range catalog {
		cat[i] = m.Clone()
	}

	return &Registry{
		catalog:       cat,
		systemDefault: defaults[0].Clone(),
		store:         store,
	}, nil
}

func (r *Registry) SystemDefault() domain.ModelConfig {
	return r.systemDefault.Clone()
}

func (r *Registry) Catalog() []domain.ModelConfig {
	out := make([]domain.ModelConfig, len(r.catalog))
	for i, m := range r.catalog {
		out[i] = m.Clone()
	}
	return out
}

// AvailableModels returns the system catalog followed by the user's custom
// configs in insertion order. A store failure is logged and only the catalog
// is returned.
func (r *Registry) AvailableModels(ctx context.Context, userID string) ([]domain.ModelConfig, error) {
	models := r.Catalog()

	custom, err := r.store.ListCustomModels(ctx, userID)
	if err != nil {
		slog.Warn("listing custom models failed, serving catalog only",
			"user_id", userID,
			"error", err,
		)
		return models, nil
	}

	return append(models, custom...), nil
}

// UserPreferences returns stored preferences or, for users with no record,
// the defaults. Defaults are not persisted.
func (r *Registry) UserPreferences(ctx context.Context, userID string) (domain.UserModelPreferences, error) {
	prefs, ok, err := r.store.GetPreferences(ctx, userID)
	if err != nil {
		return domain.UserModelPreferences{}, fmt.Errorf("loading preferences for %s: %w", userID, err)
	}
	if !ok {
		return r.DefaultPreferences(userID), nil
	}
	return prefs, nil
}

func (r *Registry) UpdateUserPreferences(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.UserModelPreferences, error) {
	prefs, err := r.store.UpdatePreferences(ctx, userID, r.DefaultPreferences(userID), update)
	if err != nil {
		return domain.UserModelPreferences{}, fmt.Errorf("updating preferences for %s: %w", userID, err)
	}

	slog.Debug("preferences updated",
		"user_id", userID,
		"selected_model_id", prefs.SelectedModelID,
		"fallback_enabled", prefs.FallbackEnabled,
	)
	return prefs, nil
}

// SaveUserCustomModel upserts cfg by id. Only catalog entries may be the
// system default, so the flag is cleared on custom configs. Catalog ids are
// reserved. An empty APIKey or a redacted header value keeps what is stored.
func (r *Registry) SaveUserCustomModel(ctx context.Context, userID string, cfg domain.ModelConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidModelConfig)
	}
	for _, m := range r.catalog {
		if m.ID == cfg.ID {
			return fmt.Errorf("%w: %s is a catalog model", domain.ErrDuplicateModelID, cfg.ID)
		}
	}
	cfg = cfg.Clone()
	cfg.IsSystemDefault = false

	cfg, err := r.keepStoredCredentials(ctx, userID, cfg)
	if err != nil {
		return err
	}

	if err := r.store.UpsertCustomModel(ctx, userID, cfg); err != nil {
		return fmt.Errorf("saving model %s for %s: %w", cfg.ID, userID, err)
	}
	return nil
}

func (r *Registry) keepStoredCredentials(ctx context.Context, userID string, cfg domain.ModelConfig) (domain.ModelConfig, error) {
	redacted := false
	for _, v := range cfg.Headers {
		if v == domain.RedactedValue {
			redacted = true
			break
		}
	}
	if cfg.APIKey != "" && !redacted {
		return cfg, nil
	}

	custom, err := r.store.ListCustomModels(ctx, userID)
	if err != nil {
		return cfg, fmt.Errorf("loading stored model %s for %s: %w", cfg.ID, userID, err)
	}

	var stored domain.ModelConfig
	for _, m := range custom {
		if m.ID == cfg.ID {
			stored = m
			break
		}
	}

	if cfg.APIKey == "" {
		cfg.APIKey = stored.APIKey
	}
	for k, v := range cfg.Headers {
		if v != domain.RedactedValue {
			continue
		}
		if prev, ok := stored.Headers[k]; ok {
			cfg.Headers[k] = prev
		} else {
			delete(cfg.Headers, k)
		}
	}
	return cfg, nil
}

func (r *Registry) RestoreDefaultModel(ctx context.Context, userID string) (domain.UserModelPreferences, error) {
	id := r.systemDefault.ID
	return r.UpdateUserPreferences(ctx, userID, domain.PreferencesUpdate{SelectedModelID: &id})
}

// DefaultPreferences is what a user without a stored record gets.
func (r *Registry) DefaultPreferences(userID string) domain.UserModelPreferences {
	return domain.UserModelPreferences{
		UserID:          userID,
		SelectedModelID: r.systemDefault.ID,
		FallbackEnabled: true,
		SafetyLevel:     domain.SafetyStandard,
	}
}
