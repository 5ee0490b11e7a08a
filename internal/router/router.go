// Package router resolves the model configuration for a request, invokes its
// adapter and applies the single-retry fallback policy.
//
// Per call:
//   - resolve the user's selection, or the system default when the id dangles
//   - primary attempt
//   - on failure, one retry against the system default when fallback is
//     enabled and the primary was not already the default
//   - if the retry also fails, a DualFailureError
package router

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/metrics"
	"github.com/felipepmaragno/insight-router/internal/notifications"
	"github.com/felipepmaragno/insight-router/internal/registry"
	"github.com/felipepmaragno/insight-router/internal/telemetry"
)

const (
	HandshakePrompt      = "Reply with exactly: NDIS Insight test OK"
	HandshakeInstruction = "You are a test bot."
	handshakeExpected    = "NDIS Insight test OK"

	notifyTimeout = 5 * time.Second
)

// Executor runs one attempt against the adapter for cfg.Provider.
// *provider.Set satisfies it.
type Executor interface {
	Execute(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction string) (string, error)
}

type Router struct {
	registry *registry.Registry
	adapters Executor
	notifier notifications.Notifier
	now      func() time.Time
}

type Option func(*Router)

func WithNotifier(n notifications.Notifier) Option {
	return func(r *Router) {
		r.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		r.now = now
	}
}

func New(reg *registry.Registry, adapters Executor, opts ...Option) *Router {
	r := &Router{
		registry: reg,
		adapters: adapters,
		notifier: notifications.LogNotifier{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RouteModel never fails. An unknown selected id resolves to the system
// default and is counted.
func (r *Router) RouteModel(ctx context.Context, userID string) domain.ModelConfig {
	cfg, _ := r.route(ctx, userID)
	return cfg
}

func (r *Router) route(ctx context.Context, userID string) (domain.ModelConfig, domain.UserModelPreferences) {
	prefs, err := r.registry.UserPreferences(ctx, userID)
	if err != nil {
		slog.Warn("preferences unavailable, using defaults",
			"user_id", userID,
			"error", err,
		)
		prefs = r.registry.DefaultPreferences(userID)
	}

	available, _ := r.registry.AvailableModels(ctx, userID)
	for _, m := range available {
		if m.ID == prefs.SelectedModelID {
			return m, prefs
		}
	}

	metrics.RecordDanglingPreference()
	slog.Warn("selected model not found, reverting to system default",
		"user_id", userID,
		"selected_model_id", prefs.SelectedModelID,
	)
	return r.registry.SystemDefault(), prefs
}

// CallModel returns the first successful attempt. Latency runs from entry to
// the end of the attempt that produced the result.
func (r *Router) CallModel(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error) {
	start := r.now()

	ctx, span := telemetry.StartSpan(ctx, "router.call_model")
	defer span.End()

	cfg, prefs := r.route(ctx, userID)

	slog.Debug("routing request",
		"user_id", userID,
		"mode", mode,
		"model_id", cfg.ID,
		"provider", cfg.Provider,
	)

	content, err := r.attempt(ctx, cfg, messages, systemInstruction, "primary")
	if err == nil {
		return r.respond(span, content, cfg, start, false), nil
	}

	slog.Error("model call failed",
		"user_id", userID,
		"model_id", cfg.ID,
		"provider", cfg.Provider,
		"error", err,
	)

	systemDefault := r.registry.SystemDefault()
	if !prefs.FallbackEnabled || cfg.IsSystemDefault || cfg.ID == systemDefault.ID {
		telemetry.AddErrorAttribute(span, err)
		return nil, err
	}

	slog.Warn("fallback triggered, switching to system default",
		"user_id", userID,
		"from_model_id", cfg.ID,
		"to_model_id", systemDefault.ID,
	)

	content, fallbackErr := r.attempt(ctx, systemDefault, messages, systemInstruction, "fallback")
	if fallbackErr == nil {
		metrics.RecordFallback("success")
		return r.respond(span, content, systemDefault, start, true), nil
	}

	metrics.RecordFallback("failure")
	metrics.RecordDualFailure()

	dual := &domain.DualFailureError{
		PrimaryModelID:  cfg.ID,
		FallbackModelID: systemDefault.ID,
		Primary:         err,
		Fallback:        fallbackErr,
	}
	telemetry.AddErrorAttribute(span, dual)
	r.alert(ctx, userID, dual)

	return nil, dual
}

func (r *Router) attempt(ctx context.Context, cfg domain.ModelConfig, messages []domain.ChatMessage, systemInstruction, attempt string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "router.attempt."+attempt)
	defer span.End()

	telemetry.AddModelAttributes(span, cfg.ID, string(cfg.Provider), cfg.ModelID)

	content, err := r.adapters.Execute(ctx, cfg, messages, systemInstruction)
	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		metrics.RecordModelCall(string(cfg.Provider), cfg.ID, attempt, "error")
		metrics.RecordProviderError(string(cfg.Provider), errorKind(err))
		return "", err
	}

	metrics.RecordModelCall(string(cfg.Provider), cfg.ID, attempt, "success")
	return content, nil
}

func (r *Router) respond(span trace.Span, content string, cfg domain.ModelConfig, start time.Time, usedFallback bool) *domain.ModelResponse {
	latency := r.now().Sub(start).Milliseconds()

	telemetry.AddModelAttributes(span, cfg.ID, string(cfg.Provider), cfg.ModelID)
	telemetry.AddFallbackAttribute(span, usedFallback)
	telemetry.AddLatencyAttribute(span, latency)

	return &domain.ModelResponse{
		Content: content,
		Metadata: domain.ResponseMetadata{
			ModelConfig:  cfg,
			LatencyMs:    latency,
			UsedFallback: usedFallback,
		},
	}
}

func (r *Router) alert(ctx context.Context, userID string, dual *domain.DualFailureError) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	err := r.notifier.Send(ctx, notifications.Notification{
		Type:    notifications.NotificationDualFailure,
		UserID:  userID,
		Message: dual.Error(),
		Data: map[string]string{
			"primary_model_id":  dual.PrimaryModelID,
			"fallback_model_id": dual.FallbackModelID,
		},
	})
	if err != nil {
		slog.Error("failed to send dual failure alert",
			"user_id", userID,
			"error", err,
		)
	}
}

// TestConnection sends the handshake prompt once. Any response counts as
// success; a reply that differs from the expected text is only logged.
func (r *Router) TestConnection(ctx context.Context, cfg domain.ModelConfig) domain.ConnectionResult {
	messages := []domain.ChatMessage{domain.NewUserMessage(HandshakePrompt)}

	content, err := r.adapters.Execute(ctx, cfg, messages, HandshakeInstruction)
	if err != nil {
		metrics.RecordConnectionTest(string(cfg.Provider), false)
		return domain.ConnectionResult{Success: false, Message: err.Error()}
	}

	if !strings.Contains(content, handshakeExpected) {
		slog.Warn("handshake reply did not match",
			"model_id", cfg.ID,
			"provider", cfg.Provider,
			"reply", content,
		)
	}

	metrics.RecordConnectionTest(string(cfg.Provider), true)
	return domain.ConnectionResult{Success: true, Message: content}
}

func errorKind(err error) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "unknown"
}
