// Package provider defines the adapter capability every model backend
// implements and the lookup table the router dispatches through.
package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

// Adapter sends a conversation to one provider family and returns plain
// text. Every failure is a *domain.ProviderError.
type Adapter interface {
	Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error)
}

// AdapterFunc adapts an ordinary function to Adapter.
type AdapterFunc func(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error)

func (f AdapterFunc) Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
	return f(ctx, cfg, messages, systemInstruction)
}

// Set maps provider kinds to adapters. Adding a provider is a Register call.
type Set struct {
	mu       sync.RWMutex
	adapters map[domain.ProviderKind]Adapter
}

func NewSet() *Set {
	return &Set{
		adapters: make(map[domain.ProviderKind]Adapter),
	}
}

func (s *Set) Register(kind domain.ProviderKind, a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[kind] = a
}

func (s *Set) Get(kind domain.ProviderKind) (Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[kind]
	return a, ok
}

func (s *Set) Kinds() []domain.ProviderKind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]domain.ProviderKind, 0, len(s.adapters))
	for k := range s.adapters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Execute dispatches to the adapter registered for cfg.Provider.
func (s *Set) Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
	a, ok := s.Get(cfg.Provider)
	if !ok {
		return "", domain.NewProviderError(cfg.Provider, cfg.ModelID, domain.KindConfiguration, domain.ErrProviderNotFound)
	}
	return a.Execute(ctx, cfg, messages, systemInstruction)
}

// LatestUserMessage returns the content of the last user-role message.
func LatestUserMessage(messages []domain.ChatMessage) (string, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == domain.RoleUser {
			return messages[i].Content, true
		}
	}
	return "", false
}
