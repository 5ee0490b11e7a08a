package domain

import (
	"time"

	"github.com/google/uuid"
)

type ProviderKind string

const (
	ProviderGemini           ProviderKind = "gemini"
	ProviderOpenAICompatible ProviderKind = "openai_compatible"
	ProviderAnthropic        ProviderKind = "anthropic"
	ProviderBedrock          ProviderKind = "bedrock"
)

type ModelConfig struct {
	ID                 string            `json:"id" yaml:"id"`
	Name               string            `json:"name" yaml:"name"`
	Provider           ProviderKind      `json:"provider" yaml:"provider"`
	ModelID            string            `json:"model_id" yaml:"model_id"`
	Endpoint           string            `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	APIKey             string            `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Headers            map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	ContextWindow      int               `json:"context_window" yaml:"context_window"`
	MaxOutputTokens    *int              `json:"max_output_tokens,omitempty" yaml:"max_output_tokens,omitempty"`
	DefaultTemperature *float64          `json:"default_temperature,omitempty" yaml:"default_temperature,omitempty"`
	IsSystemDefault    bool              `json:"is_system_default,omitempty" yaml:"is_system_default,omitempty"`
	IsOfficial         bool              `json:"is_official,omitempty" yaml:"is_official,omitempty"`
}

// RedactedValue replaces credential header values in API output. A config
// written back with it keeps the stored value.
const RedactedValue = "[redacted]"

// Temperature returns the configured sampling temperature or fallback.
func (c ModelConfig) Temperature(fallback float64) float64 {
	if c.DefaultTemperature != nil {
		return *c.DefaultTemperature
	}
	return fallback
}

type SafetyLevel string

const (
	SafetyStandard    SafetyLevel = "standard"
	SafetySensitive   SafetyLevel = "sensitive"
	SafetyHighSupport SafetyLevel = "high-support"
)

type UserModelPreferences struct {
	UserID          string      `json:"user_id"`
	SelectedModelID string      `json:"selected_model_id"`
	FallbackEnabled bool        `json:"fallback_enabled"`
	SafetyLevel     SafetyLevel `json:"safety_level"`
}

// PreferencesUpdate is a partial preferences write. Nil fields are left unchanged.
type PreferencesUpdate struct {
	SelectedModelID *string      `json:"selected_model_id,omitempty"`
	FallbackEnabled *bool        `json:"fallback_enabled,omitempty"`
	SafetyLevel     *SafetyLevel `json:"safety_level,omitempty"`
}

func (u PreferencesUpdate) Apply(prefs UserModelPreferences) UserModelPreferences {
	if u.SelectedModelID != nil {
		prefs.SelectedModelID = *u.SelectedModelID
	}
	if u.FallbackEnabled != nil {
		prefs.FallbackEnabled = *u.FallbackEnabled
	}
	if u.SafetyLevel != nil {
		prefs.SafetyLevel = *u.SafetyLevel
	}
	return prefs
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Mode string

const (
	ModeExplainer  Mode = "explainer"
	ModeCompliance Mode = "compliance"
	ModeLetter     Mode = "letter"
	ModeLog        Mode = "log"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeExplainer, ModeCompliance, ModeLetter, ModeLog:
		return true
	}
	return false
}

type ChatMessage struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

type MessageMetadata struct {
	UsedModelID       string       `json:"used_model_id,omitempty"`
	Provider          ProviderKind `json:"provider,omitempty"`
	ProcessingTimeMs  int64        `json:"processing_time_ms,omitempty"`
	FallbackTriggered bool         `json:"fallback_triggered,omitempty"`
	Mode              Mode         `json:"mode,omitempty"`
}

func NewUserMessage(content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

type ModelResponse struct {
	Content  string           `json:"content"`
	Metadata ResponseMetadata `json:"metadata"`
}

type ResponseMetadata struct {
	ModelConfig  ModelConfig `json:"model_config"`
	LatencyMs    int64       `json:"latency_ms"`
	UsedFallback bool        `json:"used_fallback"`
}

type ConnectionResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Clone returns a deep copy so stored configs cannot be mutated through a
// returned value.
func (c ModelConfig) Clone() ModelConfig {
	if c.Headers != nil {
		headers := make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			headers[k] = v
		}
		c.Headers = headers
	}
	if c.MaxOutputTokens != nil {
		v := *c.MaxOutputTokens
		c.MaxOutputTokens = &v
	}
	if c.DefaultTemperature != nil {
		v := *c.DefaultTemperature
		c.DefaultTemperature = &v
	}
	return c
}
