// Package gemini is the hosted-provider adapter built on the Google GenAI SDK.
//
// Only the latest user turn is sent as the prompt; earlier history is not
// forwarded. The generic chat-completions adapter sends full history.
package gemini

import (
	"context"
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru/v2"
	"google.golang.org/genai"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/provider"
)

const (
	defaultTemperature = 0.2

	// maxCachedClients bounds the clients kept for user-supplied credentials.
	maxCachedClients = 32
)

type clientKey struct {
	apiKey   string
	endpoint string
}

// Adapter caches SDK clients per credential and endpoint pair, evicting the
// least recently used beyond maxCachedClients.
type Adapter struct {
	defaultKey string
	httpClient *http.Client
	clients    *lru.Cache[clientKey, *genai.Client]
}

// New takes the deployment-wide key used when a config carries none.
func New(defaultKey string, httpClient *http.Client) *Adapter {
	clients, err := lru.New[clientKey, *genai.Client](maxCachedClients)
	if err != nil {
		panic(err)
	}
	return &Adapter{
		defaultKey: defaultKey,
		httpClient: httpClient,
		clients:    clients,
	}
}

func (a *Adapter) Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = a.defaultKey
	}
	if apiKey == "" {
		return "", a.fail(cfg, domain.KindConfiguration, domain.ErrMissingCredential)
	}

	prompt, ok := provider.LatestUserMessage(messages)
	if !ok {
		return "", a.fail(cfg, domain.KindConfiguration, domain.ErrNoUserMessage)
	}

	client, err := a.client(ctx, clientKey{apiKey: apiKey, endpoint: cfg.Endpoint})
	if err != nil {
		return "", a.fail(cfg, domain.KindConfiguration, fmt.Errorf("create client: %w", err))
	}

	resp, err := client.Models.GenerateContent(ctx, cfg.ModelID, genai.Text(prompt), generateConfig(cfg, systemInstruction))
	if err != nil {
		return "", a.fail(cfg, domain.KindTransport, fmt.Errorf("gemini api error: %w", err))
	}

	text := resp.Text()
	if text == "" {
		return "", a.fail(cfg, domain.KindResponse, domain.ErrEmptyResponse)
	}
	return text, nil
}

func (a *Adapter) client(ctx context.Context, key clientKey) (*genai.Client, error) {
	if c, ok := a.clients.Get(key); ok {
		return c, nil
	}

	cc := &genai.ClientConfig{
		APIKey:     key.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
	}
	if key.endpoint != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: key.endpoint}
	}

	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	a.clients.Add(key, c)
	return c, nil
}

func (a *Adapter) fail(cfg domain.ModelConfig, kind domain.ProviderErrorKind, err error) error {
	return domain.NewProviderError(domain.ProviderGemini, cfg.ModelID, kind, err)
}

func generateConfig(cfg domain.ModelConfig, systemInstruction string) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(cfg.Temperature(defaultTemperature))),
	}
	if systemInstruction != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if cfg.MaxOutputTokens != nil {
		gc.MaxOutputTokens = int32(*cfg.MaxOutputTokens)
	}
	return gc
}
