package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/felipepmaragno/insight-router/internal/domain"
	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_model_preferences (
	user_id           TEXT PRIMARY KEY,
	selected_model_id TEXT NOT NULL,
	fallback_enabled  BOOLEAN NOT NULL,
	safety_level      TEXT NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_model_configs (
	user_id    TEXT NOT NULL,
	model_id   TEXT NOT NULL,
	position   BIGSERIAL,
	config     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, model_id)
);
`

type PostgresStore struct {
	db     *sql.DB
	sealer CredentialSealer
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// NewPostgresStore wraps db. sealer may be nil.
func NewPostgresStore(db *sql.DB, sealer CredentialSealer) *PostgresStore {
	return &PostgresStore{db: db, sealer: sealer}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPreferences(ctx context.Context, userID string) (domain.UserModelPreferences, bool, error) {
	query := `
		SELECT user_id, selected_model_id, fallback_enabled, safety_level
		FROM user_model_preferences
		WHERE user_id = $1
	`

	var prefs domain.UserModelPreferences
	var level string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&prefs.UserID,
		&prefs.SelectedModelID,
		&prefs.FallbackEnabled,
		&level,
	)
	if err == sql.ErrNoRows {
		return domain.UserModelPreferences{}, false, nil
	}
	if err != nil {
		return domain.UserModelPreferences{}, false, fmt.Errorf("query preferences: %w", err)
	}

	prefs.SafetyLevel = domain.SafetyLevel(level)
	return prefs, true, nil
}

func (s *PostgresStore) UpdatePreferences(ctx context.Context, userID string, defaults domain.UserModelPreferences, update domain.PreferencesUpdate) (domain.UserModelPreferences, error) {
	query := `
		INSERT INTO user_model_preferences (user_id, selected_model_id, fallback_enabled, safety_level, updated_at)
		VALUES ($1, COALESCE($2::text, $5::text), COALESCE($3::boolean, $6::boolean), COALESCE($4::text, $7::text), now())
		ON CONFLICT (user_id) DO UPDATE SET
			selected_model_id = COALESCE($2::text, user_model_preferences.selected_model_id),
			fallback_enabled  = COALESCE($3::boolean, user_model_preferences.fallback_enabled),
			safety_level      = COALESCE($4::text, user_model_preferences.safety_level),
			updated_at        = now()
		RETURNING user_id, selected_model_id, fallback_enabled, safety_level
	`

	var selected, level sql.NullString
	var fallback sql.NullBool
	if update.SelectedModelID != nil {
		selected = sql.NullString{String: *update.SelectedModelID, Valid: true}
	}
	if update.FallbackEnabled != nil {
		fallback = sql.NullBool{Bool: *update.FallbackEnabled, Valid: true}
	}
	if update.SafetyLevel != nil {
		level = sql.NullString{String: string(*update.SafetyLevel), Valid: true}
	}

	var prefs domain.UserModelPreferences
	var storedLevel string
	err := s.db.QueryRowContext(ctx, query,
		userID,
		selected,
		fallback,
		level,
		defaults.SelectedModelID,
		defaults.FallbackEnabled,
		string(defaults.SafetyLevel),
	).Scan(
		&prefs.UserID,
		&prefs.SelectedModelID,
		&prefs.FallbackEnabled,
		&storedLevel,
	)
	if err != nil {
		return domain.UserModelPreferences{}, fmt.Errorf("upsert preferences: %w", err)
	}

	prefs.SafetyLevel = domain.SafetyLevel(storedLevel)
	return prefs, nil
}

func (s *PostgresStore) ListCustomModels(ctx context.Context, userID string) ([]domain.ModelConfig, error) {
	query := `
		SELECT model_id, config
		FROM user_model_configs
		WHERE user_id = $1
		ORDER BY position ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()

	var models []domain.ModelConfig
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}

		var cfg domain.ModelConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("decode model %s: %w", id, err)
		}

		cfg, err = openConfig(s.sealer, cfg)
		if err != nil {
			return nil, fmt.Errorf("open credential for %s: %w", id, err)
		}
		models = append(models, cfg)
	}

	return models, rows.Err()
}

func (s *PostgresStore) UpsertCustomModel(ctx context.Context, userID string, cfg domain.ModelConfig) error {
	sealed, err := sealConfig(s.sealer, cfg)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	query := `
		INSERT INTO user_model_configs (user_id, model_id, config, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id, model_id) DO UPDATE SET
			config     = EXCLUDED.config,
			updated_at = now()
	`

	if _, err := s.db.ExecContext(ctx, query, userID, cfg.ID, data); err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}

	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
