package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

const (
	defaultBaseURL     = "https://api.anthropic.com/v1"
	anthropicVersion   = "2023-06-01"
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
)

type Adapter struct {
	client *http.Client
}

func New(client *http.Client) *Adapter {
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{client: client}
}

type messagesRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Execute sends the full history to the Messages API. cfg.Endpoint overrides
// the public base URL.
func (a *Adapter) Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
	if cfg.APIKey == "" {
		return "", a.fail(cfg, domain.KindConfiguration, domain.ErrMissingCredential)
	}

	body, err := json.Marshal(toMessagesRequest(cfg, messages, systemInstruction))
	if err != nil {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("marshal request: %w", err))
	}

	baseURL := defaultBaseURL
	if cfg.Endpoint != "" {
		baseURL = strings.TrimRight(cfg.Endpoint, "/")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("x-api-key", cfg.APIKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", a.fail(cfg, domain.KindTransport, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", a.fail(cfg, domain.KindTransport,
			fmt.Errorf("anthropic error: status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}

	var msgResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&msgResp); err != nil {
		return "", a.fail(cfg, domain.KindResponse, fmt.Errorf("decode response: %w", err))
	}

	content := joinText(msgResp.Content)
	if content == "" {
		return "", a.fail(cfg, domain.KindResponse, domain.ErrEmptyResponse)
	}
	return content, nil
}

func (a *Adapter) fail(cfg domain.ModelConfig, kind domain.ProviderErrorKind, err error) error {
	return domain.NewProviderError(domain.ProviderAnthropic, cfg.ModelID, kind, err)
}

// System-role history entries are folded into the system field; the API
// accepts only user and assistant turns.
func toMessagesRequest(cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) messagesRequest {
	system := systemInstruction
	out := make([]anthropicMessage, 0, len(messages))

	for _, m := range messages {
		if m.Role == domain.RoleSystem {
			if system == "" {
				system = m.Content
			} else {
				system += "\n\n" + m.Content
			}
			continue
		}
		out = append(out, anthropicMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	maxTokens := defaultMaxTokens
	if cfg.MaxOutputTokens != nil {
		maxTokens = *cfg.MaxOutputTokens
	}

	return messagesRequest{
		Model:       cfg.ModelID,
		Messages:    out,
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature(defaultTemperature),
		System:      system,
	}
}

func joinText(blocks []contentBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}
