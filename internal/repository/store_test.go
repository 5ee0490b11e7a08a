package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

func defaultPrefs(userID string) domain.UserModelPreferences {
	return domain.UserModelPreferences{
		UserID:          userID,
		SelectedModelID: "sys_default",
		FallbackEnabled: true,
		SafetyLevel:     domain.SafetyStandard,
	}
}

func ptr[T any](v T) *T { return &v }

// runStoreTests exercises behaviour every Store backend must share.
func runStoreTests(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("preferences missing", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.GetPreferences(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok {
			t.Error("expected no stored preferences")
		}
	})

	t.Run("update merges into defaults", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		got, err := s.UpdatePreferences(ctx, "u1", defaultPrefs("u1"), domain.PreferencesUpdate{
			FallbackEnabled: ptr(false),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := domain.UserModelPreferences{
			UserID:          "u1",
			SelectedModelID: "sys_default",
			FallbackEnabled: false,
			SafetyLevel:     domain.SafetyStandard,
		}
		if got != want {
			t.Errorf("UpdatePreferences() = %+v, want %+v", got, want)
		}

		stored, ok, err := s.GetPreferences(ctx, "u1")
		if err != nil || !ok {
			t.Fatalf("GetPreferences() = %v, %v", ok, err)
		}
		if stored != want {
			t.Errorf("GetPreferences() = %+v, want %+v", stored, want)
		}
	})

	t.Run("update keeps earlier fields", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.UpdatePreferences(ctx, "u1", defaultPrefs("u1"), domain.PreferencesUpdate{
			SelectedModelID: ptr("custom-1"),
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := s.UpdatePreferences(ctx, "u1", defaultPrefs("u1"), domain.PreferencesUpdate{
			SafetyLevel: ptr(domain.SafetySensitive),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got.SelectedModelID != "custom-1" {
			t.Errorf("SelectedModelID = %s, want custom-1", got.SelectedModelID)
		}
		if got.SafetyLevel != domain.SafetySensitive {
			t.Errorf("SafetyLevel = %s, want sensitive", got.SafetyLevel)
		}
		if !got.FallbackEnabled {
			t.Error("FallbackEnabled should keep its default")
		}
	})

	t.Run("upsert is idempotent by id and keeps order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		configs := []domain.ModelConfig{
			{ID: "a", Name: "A", Provider: domain.ProviderOpenAICompatible, ModelID: "llama3"},
			{ID: "b", Name: "B", Provider: domain.ProviderOpenAICompatible, ModelID: "mistral"},
		}
		for _, c := range configs {
			if err := s.UpsertCustomModel(ctx, "u1", c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		updated := domain.ModelConfig{ID: "a", Name: "A v2", Provider: domain.ProviderOpenAICompatible, ModelID: "llama3.1", APIKey: "sk-a"}
		if err := s.UpsertCustomModel(ctx, "u1", updated); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := s.ListCustomModels(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len = %d, want 2", len(got))
		}
		if got[0].ID != "a" || got[1].ID != "b" {
			t.Errorf("order = [%s %s], want [a b]", got[0].ID, got[1].ID)
		}
		if got[0].Name != "A v2" || got[0].ModelID != "llama3.1" {
			t.Errorf("first entry not replaced: %+v", got[0])
		}
		if got[0].APIKey != "sk-a" {
			t.Errorf("APIKey = %q, want sk-a", got[0].APIKey)
		}
	})

	t.Run("models are scoped per user", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.UpsertCustomModel(ctx, "u1", domain.ModelConfig{ID: "a"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		got, err := s.ListCustomModels(ctx, "u2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 0 {
			t.Errorf("u2 sees %d models, want 0", len(got))
		}
	})

	t.Run("concurrent upserts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := fmt.Sprintf("m%d", i%5)
				if err := s.UpsertCustomModel(ctx, "u1", domain.ModelConfig{ID: id, Name: fmt.Sprint(i)}); err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()

		got, err := s.ListCustomModels(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 5 {
			t.Errorf("len = %d, want 5", len(got))
		}
	})
}
