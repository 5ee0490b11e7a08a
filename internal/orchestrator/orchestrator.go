// Package orchestrator is the single entry point for a user request:
// retrieve grounding, assemble the system prompt, route and call the model.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/metrics"
	"github.com/felipepmaragno/insight-router/internal/retriever"
	"github.com/felipepmaragno/insight-router/internal/telemetry"
)

type PromptBuilder interface {
	BuildSystemPrompt(mode domain.Mode, context string) string
}

type ModelCaller interface {
	CallModel(ctx context.Context, userID string, mode domain.Mode, messages []domain.ChatMessage, systemInstruction string) (*domain.ModelResponse, error)
}

// Orchestrator holds no per-request state; the caller owns the history.
type Orchestrator struct {
	retriever retriever.Retriever
	prompts   PromptBuilder
	router    ModelCaller
}

func New(r retriever.Retriever, prompts PromptBuilder, router ModelCaller) *Orchestrator {
	return &Orchestrator{
		retriever: r,
		prompts:   prompts,
		router:    router,
	}
}

// ProcessRequest returns the router's result and error unmodified.
func (o *Orchestrator) ProcessRequest(ctx context.Context, userID string, mode domain.Mode, input string, history []domain.ChatMessage) (*domain.ModelResponse, error) {
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "orchestrator.process_request")
	defer span.End()
	telemetry.AddRequestAttributes(span, userID, string(mode), RequestIDFrom(ctx))

	grounding := o.retriever.RetrieveContext(ctx, input)
	systemPrompt := o.prompts.BuildSystemPrompt(mode, grounding)

	messages := make([]domain.ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, domain.NewUserMessage(input))

	resp, err := o.router.CallModel(ctx, userID, mode, messages, systemPrompt)

	status := "success"
	switch {
	case errors.Is(err, domain.ErrDualFailure):
		status = "dual_failure"
	case err != nil:
		status = "error"
	}
	metrics.RecordRequest(modeLabel(mode), status, time.Since(start).Seconds())

	if err != nil {
		telemetry.AddErrorAttribute(span, err)
		return resp, err
	}

	telemetry.AddFallbackAttribute(span, resp.Metadata.UsedFallback)
	slog.Info("request processed",
		"user_id", userID,
		"mode", mode,
		"model_id", resp.Metadata.ModelConfig.ID,
		"provider", resp.Metadata.ModelConfig.Provider,
		"latency_ms", resp.Metadata.LatencyMs,
		"used_fallback", resp.Metadata.UsedFallback,
	)

	return resp, nil
}

// modeLabel bounds metric cardinality for modes outside the known set.
func modeLabel(mode domain.Mode) string {
	if !mode.Valid() {
		return "unknown"
	}
	return string(mode)
}
