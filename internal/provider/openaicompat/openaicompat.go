// Package openaicompat calls any server that speaks the chat-completions
// wire format: vLLM, Ollama, LM Studio, hosted OpenAI and the like.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/felipepmaragno/insight-router/internal/domain"
)

const (
	defaultSystemPrompt = "You are a helpful assistant."
	defaultTemperature  = 0.2
	maxErrorBody        = 4096
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

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Execute forwards the full history after a leading system entry.
func (a *Adapter) Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
	if cfg.Endpoint == "" {
		return "", a.fail(cfg, domain.KindConfiguration, domain.ErrMissingEndpoint)
	}

	body, err := json.Marshal(toChatRequest(cfg, messages, systemInstruction))
	if err != nil {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("marshal request: %w", err))
	}

	url := strings.TrimRight(cfg.Endpoint, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("create request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", a.fail(cfg, domain.KindTransport, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", a.fail(cfg, domain.KindTransport,
			fmt.Errorf("openai_compatible error: status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", a.fail(cfg, domain.KindResponse, fmt.Errorf("decode response: %w", err))
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message == nil || chatResp.Choices[0].Message.Content == "" {
		return "", a.fail(cfg, domain.KindResponse, fmt.Errorf("%w: choices[0].message.content missing", domain.ErrEmptyResponse))
	}

	return chatResp.Choices[0].Message.Content, nil
}

func (a *Adapter) fail(cfg domain.ModelConfig, kind domain.ProviderErrorKind, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = domain.KindTransport
	}
	return domain.NewProviderError(domain.ProviderOpenAICompatible, cfg.ModelID, kind, err)
}

func toChatRequest(cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) chatRequest {
	if systemInstruction == "" {
		systemInstruction = defaultSystemPrompt
	}

	out := make([]chatMessage, 0, len(messages)+1)
	out = append(out, chatMessage{Role: string(domain.RoleSystem), Content: systemInstruction})
	for _, m := range messages {
		out = append(out, chatMessage{Role: string(m.Role), Content: m.Content})
	}

	return chatRequest{
		Model:       cfg.ModelID,
		Messages:    out,
		Temperature: cfg.Temperature(defaultTemperature),
		MaxTokens:   cfg.MaxOutputTokens,
	}
}
