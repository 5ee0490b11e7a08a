package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

func TestAdapter_Execute(t *testing.T) {
	var got messagesRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %s, want /messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "sk-ant" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"tool_use"},{"type":"text","text":"there"}]}`))
	}))
	defer server.Close()

	cfg := domain.ModelConfig{Provider: domain.ProviderAnthropic, ModelID: "claude-3-5-haiku", Endpoint: server.URL, APIKey: "sk-ant"}
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "extra rule"},
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, Content: "hello"},
		{Role: domain.RoleUser, Content: "again"},
	}

	content, err := New(server.Client()).Execute(context.Background(), cfg, messages, "policy")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if content != "Hello there" {
		t.Errorf("content = %q", content)
	}
	if got.System != "policy\n\nextra rule" {
		t.Errorf("system = %q", got.System)
	}
	if len(got.Messages) != 3 {
		t.Errorf("len(messages) = %d, want 3", len(got.Messages))
	}
	if got.MaxTokens != defaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", got.MaxTokens, defaultMaxTokens)
	}
}

func TestAdapter_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind domain.ProviderErrorKind
	}{
		{"overloaded", 529, `{"type":"error"}`, domain.KindTransport},
		{"bad json", http.StatusOK, `{`, domain.KindResponse},
		{"no text", http.StatusOK, `{"content":[]}`, domain.KindResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			cfg := domain.ModelConfig{ModelID: "m", Endpoint: server.URL, APIKey: "k"}
			_, err := New(server.Client()).Execute(context.Background(), cfg, nil, "")

			var pe *domain.ProviderError
			if !errors.As(err, &pe) || pe.Kind != tt.wantKind {
				t.Errorf("error = %v, want %s ProviderError", err, tt.wantKind)
			}
		})
	}
}

func TestAdapter_MissingCredential(t *testing.T) {
	_, err := New(nil).Execute(context.Background(), domain.ModelConfig{ModelID: "m"}, nil, "")
	if !errors.Is(err, domain.ErrMissingCredential) {
		t.Errorf("error = %v, want ErrMissingCredential", err)
	}
}
