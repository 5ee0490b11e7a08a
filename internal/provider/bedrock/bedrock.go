// Package bedrock runs Anthropic models hosted on AWS Bedrock through
// InvokeModel, forwarding the full message history.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

const (
	anthropicVersion   = "bedrock-2023-05-31"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
)

// Invoker is the subset of the Bedrock runtime client the adapter uses.
type Invoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Adapter runs Anthropic models hosted on Bedrock. Credentials come from
// the AWS default chain, so ModelConfig.APIKey is ignored.
type Adapter struct {
	client  Invoker
	timeout time.Duration
}

// New sends requests through httpClient, and its Timeout also bounds each
// InvokeModel call including SDK retries.
func New(ctx context.Context, region string, httpClient *http.Client) (*Adapter, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithHTTPClient(httpClient),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewWithConfig(cfg, httpClient.Timeout), nil
}

func NewWithConfig(cfg aws.Config, timeout time.Duration) *Adapter {
	return NewWithClient(bedrockruntime.NewFromConfig(cfg), timeout)
}

// NewWithClient wraps client. A zero timeout leaves calls bounded only by ctx.
func NewWithClient(client Invoker, timeout time.Duration) *Adapter {
	return &Adapter{client: client, timeout: timeout}
}

type bedrockRequest struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	Messages         []bedrockMessage `json:"messages"`
	System           string           `json:"system,omitempty"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (a *Adapter) Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
	if cfg.ModelID == "" {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("%w: model_id is required", domain.ErrInvalidModelConfig))
	}

	body, err := json.Marshal(toBedrockRequest(cfg, messages, systemInstruction))
	if err != nil {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("marshal request: %w", err))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	output, err := a.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(cfg.ModelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", a.fail(cfg, domain.KindTransport, fmt.Errorf("invoke model: %w", err))
	}

	var resp bedrockResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return "", a.fail(cfg, domain.KindResponse, fmt.Errorf("unmarshal response: %w", err))
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return "", a.fail(cfg, domain.KindResponse, domain.ErrEmptyResponse)
	}
	return content.String(), nil
}

func (a *Adapter) fail(cfg domain.ModelConfig, kind domain.ProviderErrorKind, err error) error {
	return domain.NewProviderError(domain.ProviderBedrock, cfg.ModelID, kind, err)
}

func toBedrockRequest(cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) bedrockRequest {
	var out []bedrockMessage
	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		out = append(out, bedrockMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	maxTokens := defaultMaxTokens
	if cfg.MaxOutputTokens != nil {
		maxTokens = *cfg.MaxOutputTokens
	}

	return bedrockRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Temperature:      cfg.Temperature(defaultTemperature),
		Messages:         out,
		System:           systemInstruction,
	}
}
