package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/prompt"
	"github.com/felipepmaragno/insight-router/internal/provider"
	"github.com/felipepmaragno/insight-router/internal/provider/openaicompat"
	"github.com/felipepmaragno/insight-router/internal/registry"
	"github.com/felipepmaragno/insight-router/internal/repository"
	"github.com/felipepmaragno/insight-router/internal/retriever"
	"github.com/felipepmaragno/insight-router/internal/router"
)

type mockCaller struct {
	CallModelFunc func(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error)
}

func (m *mockCaller) CallModel(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error) {
	return m.CallModelFunc(ctx, userID, mode, messages, systemInstruction)
}

func TestProcessRequest_Pipeline(t *testing.T) {
	var gotQuery string
	ret := retriever.Func(func(ctx context.Context, query string) string {
		gotQuery = query
		return "[Source: OG Access, Page 4]\nYou must be under 65."
	})

	var gotMessages []domain.ChatMessage
	var gotInstruction string
	want := &domain.ModelResponse{Content: "answer", Metadata: domain.ResponseMetadata{LatencyMs: 12}}
	caller := &mockCaller{
		CallModelFunc: func(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error) {
			if userID != "u1" || mode != domain.ModeExplainer {
				t.Errorf("CallModel(%s, %s)", userID, mode)
			}
			gotMessages = messages
			gotInstruction = systemInstruction
			return want, nil
		},
	}

	history := []domain.ChatMessage{
		{ID: "h1", Role: domain.RoleUser, Content: "hi"},
		{ID: "h2", Role: domain.RoleAssistant, Content: "hello"},
	}

	o := New(ret, prompt.Default(), caller)
	resp, err := o.ProcessRequest(context.Background(), "u1", domain.ModeExplainer, "What is the age requirement?", history)
	if err != nil {
		t.Fatalf("ProcessRequest() error = %v", err)
	}

	if resp != want {
		t.Error("response should be returned unmodified")
	}
	if gotQuery != "What is the age requirement?" {
		t.Errorf("retriever query = %q", gotQuery)
	}
	if !strings.Contains(gotInstruction, "under 65") || !strings.Contains(gotInstruction, "You are NDIS Insight") {
		t.Errorf("instruction missing policy or context:\n%s", gotInstruction)
	}

	if len(gotMessages) != 3 {
		t.Fatalf("len(messages) = %d, want history + 1", len(gotMessages))
	}
	last := gotMessages[2]
	if last.Role != domain.RoleUser || last.Content != "What is the age requirement?" || last.ID == "" {
		t.Errorf("appended message = %+v", last)
	}
	if len(history) != 2 {
		t.Error("caller history should not be modified")
	}
}

func TestProcessRequest_PropagatesErrorsVerbatim(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"provider error", domain.NewProviderError(domain.ProviderGemini, "m", domain.KindTransport, errors.New("503"))},
		{"dual failure", &domain.DualFailureError{PrimaryModelID: "a", FallbackModelID: "b", Primary: errors.New("x"), Fallback: errors.New("y")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := &mockCaller{
				CallModelFunc: func(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error) {
					return nil, tt.err
				},
			}
			o := New(retriever.NewSeeded(), prompt.Default(), caller)

			resp, err := o.ProcessRequest(context.Background(), "u1", domain.ModeLetter, "anything", nil)
			if err != tt.err {
				t.Errorf("error = %v, want identical error", err)
			}
			if resp != nil {
				t.Errorf("resp = %+v, want nil", resp)
			}
		})
	}
}

func TestProcessRequest_NoMatchReachesPrompt(t *testing.T) {
	var gotInstruction string
	caller := &mockCaller{
		CallModelFunc: func(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error) {
			gotInstruction = systemInstruction
			return &domain.ModelResponse{}, nil
		},
	}

	o := New(retriever.NewSeeded(), prompt.Default(), caller)
	if _, err := o.ProcessRequest(context.Background(), "u1", domain.Mode("unknown"), "quantum physics", nil); err != nil {
		t.Fatalf("ProcessRequest() error = %v", err)
	}

	if !strings.Contains(gotInstruction, retriever.NoMatch) {
		t.Errorf("instruction should carry the no-match marker:\n%s", gotInstruction)
	}
}

// End to end with real components: a new user asking an explainer question
// is served by the system default without fallback.
func TestProcessRequest_EndToEnd_DefaultModel(t *testing.T) {
	reg, err := registry.New([]domain.ModelConfig{
		{ID: "sys_default", Provider: domain.ProviderOpenAICompatible, ModelID: "house", Endpoint: "http://unused", IsSystemDefault: true},
	}, repository.NewInMemoryStore())
	if err != nil {
		t.Fatal(err)
	}

	var gotInstruction string
	adapters := provider.NewSet()
	adapters.Register(domain.ProviderOpenAICompatible, provider.AdapterFunc(
		func(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
			gotInstruction = systemInstruction
			return "You need to be under 65 when you apply.", nil
		}))

	ret := retriever.Func(func(ctx context.Context, query string) string {
		return "To access the NDIS, you must be under 65 years of age."
	})

	o := New(ret, prompt.Default(), router.New(reg, adapters))
	resp, err := o.ProcessRequest(context.Background(), "new-user", domain.ModeExplainer, "What is the age requirement?", nil)
	if err != nil {
		t.Fatalf("ProcessRequest() error = %v", err)
	}

	if resp.Metadata.UsedFallback {
		t.Error("UsedFallback should be false")
	}
	if resp.Metadata.ModelConfig.ID != "sys_default" {
		t.Errorf("ModelConfig.ID = %s", resp.Metadata.ModelConfig.ID)
	}
	if !strings.Contains(gotInstruction, "under 65") || !strings.Contains(gotInstruction, "MODEL AGNOSTIC") {
		t.Errorf("instruction missing context or base policy:\n%s", gotInstruction)
	}
}

// End to end: a custom endpoint that always fails falls back to the system
// default over real HTTP adapters.
func TestProcessRequest_EndToEnd_Fallback(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"from the default"}}]}`))
	}))
	defer healthy.Close()

	reg, err := registry.New([]domain.ModelConfig{
		{ID: "sys_default", Provider: domain.ProviderOpenAICompatible, ModelID: "house", Endpoint: healthy.URL, IsSystemDefault: true},
	}, repository.NewInMemoryStore())
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := reg.SaveUserCustomModel(ctx, "u1", domain.ModelConfig{
		ID: "my-local", Provider: domain.ProviderOpenAICompatible, ModelID: "llama3", Endpoint: failing.URL,
	}); err != nil {
		t.Fatal(err)
	}
	selected := "my-local"
	enabled := true
	if _, err := reg.UpdateUserPreferences(ctx, "u1", domain.PreferencesUpdate{SelectedModelID: &selected, FallbackEnabled: &enabled}); err != nil {
		t.Fatal(err)
	}

	adapters := provider.NewSet()
	adapters.Register(domain.ProviderOpenAICompatible, openaicompat.New(http.DefaultClient))

	o := New(retriever.NewSeeded(), prompt.Default(), router.New(reg, adapters))
	resp, err := o.ProcessRequest(ctx, "u1", domain.ModeExplainer, "transport", nil)
	if err != nil {
		t.Fatalf("ProcessRequest() error = %v", err)
	}

	if resp.Metadata.ModelConfig.ID != "sys_default" {
		t.Errorf("ModelConfig.ID = %s, want sys_default", resp.Metadata.ModelConfig.ID)
	}
	if !resp.Metadata.UsedFallback {
		t.Error("UsedFallback should be true")
	}
	if resp.Content != "from the default" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := RequestIDFrom(ctx); got != "req-42" {
		t.Errorf("RequestIDFrom() = %q", got)
	}
	if got := RequestIDFrom(context.Background()); got != "" {
		t.Errorf("RequestIDFrom(empty) = %q", got)
	}
}
