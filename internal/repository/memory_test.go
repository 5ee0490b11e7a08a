package repository

import (
	"context"
	"testing"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

func TestInMemoryStore(t *testing.T) {
	runStoreTests(t, func(t *testing.T) Store {
		return NewInMemoryStore()
	})
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	cfg := domain.ModelConfig{ID: "a", Headers: map[string]string{"X-Org": "one"}}
	if err := s.UpsertCustomModel(ctx, "u1", cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.Headers["X-Org"] = "mutated"

	got, _ := s.ListCustomModels(ctx, "u1")
	got[0].Headers["X-Org"] = "mutated again"

	again, _ := s.ListCustomModels(ctx, "u1")
	if again[0].Headers["X-Org"] != "one" {
		t.Errorf("stored header = %q, want one", again[0].Headers["X-Org"])
	}
}
