package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

type mockInvoker struct {
	InvokeModelFunc func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error)
}

func (m *mockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	return m.InvokeModelFunc(ctx, params)
}

func TestAdapter_Execute(t *testing.T) {
	var got bedrockRequest
	var modelID string

	client := &mockInvoker{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
			modelID = aws.ToString(params.ModelId)
			if err := json.Unmarshal(params.Body, &got); err != nil {
				t.Fatalf("unmarshal body: %v", err)
			}
			return &bedrockruntime.InvokeModelOutput{
				Body: []byte(`{"content":[{"type":"text","text":"From Bedrock"}]}`),
			}, nil
		},
	}

	maxTokens := 512
	cfg := domain.ModelConfig{
		Provider:        domain.ProviderBedrock,
		ModelID:         "anthropic.claude-3-5-haiku-20241022-v1:0",
		MaxOutputTokens: &maxTokens,
	}
	messages := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "a"},
		{Role: domain.RoleAssistant, Content: "b"},
		{Role: domain.RoleUser, Content: "c"},
	}

	content, err := NewWithClient(client, 0).Execute(context.Background(), cfg, messages, "policy")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if content != "From Bedrock" {
		t.Errorf("content = %q", content)
	}
	if modelID != cfg.ModelID {
		t.Errorf("ModelId = %s", modelID)
	}
	if got.AnthropicVersion != anthropicVersion || got.MaxTokens != 512 || got.System != "policy" {
		t.Errorf("request = %+v", got)
	}
	if len(got.Messages) != 3 {
		t.Errorf("len(messages) = %d, want full history", len(got.Messages))
	}
}

func TestAdapter_Errors(t *testing.T) {
	tests := []struct {
		name     string
		output   *bedrockruntime.InvokeModelOutput
		err      error
		wantKind domain.ProviderErrorKind
	}{
		{"throttled", nil, errors.New("ThrottlingException"), domain.KindTransport},
		{"bad body", &bedrockruntime.InvokeModelOutput{Body: []byte(`nope`)}, nil, domain.KindResponse},
		{"empty", &bedrockruntime.InvokeModelOutput{Body: []byte(`{"content":[]}`)}, nil, domain.KindResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &mockInvoker{
				InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
					return tt.output, tt.err
				},
			}

			_, err := NewWithClient(client, 0).Execute(context.Background(), domain.ModelConfig{ModelID: "m"}, nil, "")

			var pe *domain.ProviderError
			if !errors.As(err, &pe) || pe.Kind != tt.wantKind {
				t.Errorf("error = %v, want %s ProviderError", err, tt.wantKind)
			}
		})
	}
}

func TestAdapter_MissingModelID(t *testing.T) {
	_, err := NewWithClient(&mockInvoker{}, 0).Execute(context.Background(), domain.ModelConfig{}, nil, "")
	if !errors.Is(err, domain.ErrInvalidModelConfig) {
		t.Errorf("error = %v, want ErrInvalidModelConfig", err)
	}
}

func TestAdapter_Timeout(t *testing.T) {
	client := &mockInvoker{
		InvokeModelFunc: func(ctx context.Context, params *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return &bedrockruntime.InvokeModelOutput{Body: []byte(`{"content":[{"type":"text","text":"late"}]}`)}, nil
			}
		},
	}

	start := time.Now()
	_, err := NewWithClient(client, 50*time.Millisecond).Execute(context.Background(), domain.ModelConfig{ModelID: "m"}, nil, "")

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Execute() took %v, want it bounded by the timeout", elapsed)
	}
	var pe *domain.ProviderError
	if !errors.As(err, &pe) || pe.Kind != domain.KindTransport {
		t.Fatalf("error = %v, want transport ProviderError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want it to wrap context.DeadlineExceeded", err)
	}
}
