package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/redis/go-redis/v9"
)

// upsertModelScript stores a config under its id and appends the id to the
// order list only when the id is new, so replacements keep their position.
// Keys: [configs_hash, order_list]
// Args: [model_id, config_json]
// Returns: 1 if appended, 0 if replaced
var upsertModelScript = redis.NewScript(`
local added = redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
if added == 1 then
    redis.call('RPUSH', KEYS[2], ARGV[1])
end
return added
`)

const (
	fieldUserID          = "user_id"
	fieldSelectedModelID = "selected_model_id"
	fieldFallbackEnabled = "fallback_enabled"
	fieldSafetyLevel     = "safety_level"
)

type RedisStore struct {
	client    *redis.Client
	sealer    CredentialSealer
	keyPrefix string
}

// OpenRedis parses redisURL and verifies the server is reachable.
func OpenRedis(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// NewRedisStore wraps an existing client. sealer may be nil.
func NewRedisStore(client *redis.Client, sealer CredentialSealer) *RedisStore {
	return &RedisStore{
		client:    client,
		sealer:    sealer,
		keyPrefix: "insight:",
	}
}

func (s *RedisStore) prefsKey(userID string) string {
	return s.keyPrefix + "prefs:" + userID
}

func (s *RedisStore) modelsKey(userID string) string {
	return s.keyPrefix + "models:" + userID
}

func (s *RedisStore) orderKey(userID string) string {
	return s.keyPrefix + "models:" + userID + ":order"
}

func (s *RedisStore) GetPreferences(ctx context.Context, userID string) (domain.UserModelPreferences, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.prefsKey(userID)).Result()
	if err != nil {
		return domain.UserModelPreferences{}, false, fmt.Errorf("get preferences: %w", err)
	}
	if len(fields) == 0 {
		return domain.UserModelPreferences{}, false, nil
	}
	return prefsFromHash(userID, fields), true, nil
}

func (s *RedisStore) UpdatePreferences(ctx context.Context, userID string, defaults domain.UserModelPreferences, update domain.PreferencesUpdate) (domain.UserModelPreferences, error) {
	key := s.prefsKey(userID)

	changes := make(map[string]interface{})
	if update.SelectedModelID != nil {
		changes[fieldSelectedModelID] = *update.SelectedModelID
	}
	if update.FallbackEnabled != nil {
		changes[fieldFallbackEnabled] = formatBool(*update.FallbackEnabled)
	}
	if update.SafetyLevel != nil {
		changes[fieldSafetyLevel] = string(*update.SafetyLevel)
	}

	var all *redis.MapStringStringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldUserID, userID)
		pipe.HSetNX(ctx, key, fieldSelectedModelID, defaults.SelectedModelID)
		pipe.HSetNX(ctx, key, fieldFallbackEnabled, formatBool(defaults.FallbackEnabled))
		pipe.HSetNX(ctx, key, fieldSafetyLevel, string(defaults.SafetyLevel))
		if len(changes) > 0 {
			pipe.HSet(ctx, key, changes)
		}
		all = pipe.HGetAll(ctx, key)
		return nil
	})
	if err != nil {
		return domain.UserModelPreferences{}, fmt.Errorf("update preferences: %w", err)
	}

	return prefsFromHash(userID, all.Val()), nil
}

func (s *RedisStore) ListCustomModels(ctx context.Context, userID string) ([]domain.ModelConfig, error) {
	ids, err := s.client.LRange(ctx, s.orderKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list model ids: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := s.client.HMGet(ctx, s.modelsKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("get models: %w", err)
	}

	models := make([]domain.ModelConfig, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// order list and hash drifted; skip the orphaned id
			continue
		}

		var cfg domain.ModelConfig
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return nil, fmt.Errorf("decode model %s: %w", ids[i], err)
		}

		cfg, err = openConfig(s.sealer, cfg)
		if err != nil {
			return nil, fmt.Errorf("open credential for %s: %w", ids[i], err)
		}
		models = append(models, cfg)
	}

	return models, nil
}

func (s *RedisStore) UpsertCustomModel(ctx context.Context, userID string, cfg domain.ModelConfig) error {
	sealed, err := sealConfig(s.sealer, cfg)
	if err != nil {
		return fmt.Errorf("seal credential: %w", err)
	}

	data, err := json.Marshal(sealed)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	keys := []string{s.modelsKey(userID), s.orderKey(userID)}
	if err := upsertModelScript.Run(ctx, s.client, keys, cfg.ID, string(data)).Err(); err != nil {
		return fmt.Errorf("upsert model: %w", err)
	}

	return nil
}

// Ping is used by readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func prefsFromHash(userID string, fields map[string]string) domain.UserModelPreferences {
	return domain.UserModelPreferences{
		UserID:          userID,
		SelectedModelID: fields[fieldSelectedModelID],
		FallbackEnabled: fields[fieldFallbackEnabled] == "1",
		SafetyLevel:     domain.SafetyLevel(fields[fieldSafetyLevel]),
	}
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
