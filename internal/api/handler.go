// Package api exposes the orchestration core over HTTP JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/metrics"
	"github.com/felipepmaragno/insight-router/internal/orchestrator"
	"github.com/felipepmaragno/insight-router/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

type RequestProcessor interface {
	ProcessRequest(ctx context.Context, userID string, mode domain.Mode, input string, history []domain.ChatMessage) (*domain.ModelResponse, error)
}

type ModelRegistry interface {
	AvailableModels(ctx context.Context, userID string) ([]domain.ModelConfig, error)
	UserPreferences(ctx context.Context, userID string) (domain.UserModelPreferences, error)
	UpdateUserPreferences(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.UserModelPreferences, error)
	SaveUserCustomModel(ctx context.Context, userID string, cfg domain.ModelConfig) error
	RestoreDefaultModel(ctx context.Context, userID string) (domain.UserModelPreferences, error)
}

type ConnectionTester interface {
	TestConnection(ctx context.Context, cfg domain.ModelConfig) domain.ConnectionResult
}

type HandlerConfig struct {
	Orchestrator   RequestProcessor
	Registry       ModelRegistry
	Tester         ConnectionTester
	// RateLimiter throttles model requests per user. Nil disables throttling.
	RateLimiter    ratelimit.Limiter
	HealthCheckers []HealthChecker
	ReadyTimeout   time.Duration
	Version        string
}

type Handler struct {
	orchestrator RequestProcessor
	registry     ModelRegistry
	tester       ConnectionTester
	rateLimiter  ratelimit.Limiter
	mux          *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	readyTimeout := cfg.ReadyTimeout
	if readyTimeout == 0 {
		readyTimeout = 2 * time.Second
	}

	h := &Handler{
		orchestrator: cfg.Orchestrator,
		registry:     cfg.Registry,
		tester:       cfg.Tester,
		rateLimiter:  cfg.RateLimiter,
		mux:          http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /v1/users/{userID}/requests", h.handleProcessRequest)
	h.mux.HandleFunc("GET /v1/users/{userID}/models", h.handleListModels)
	h.mux.HandleFunc("PUT /v1/users/{userID}/models/{modelID}", h.handleSaveModel)
	h.mux.HandleFunc("GET /v1/users/{userID}/preferences", h.handleGetPreferences)
	h.mux.HandleFunc("PATCH /v1/users/{userID}/preferences", h.handleUpdatePreferences)
	h.mux.HandleFunc("POST /v1/users/{userID}/preferences/restore-default", h.handleRestoreDefault)
	h.mux.HandleFunc("POST /v1/models/test", h.handleTestModel)
	h.mux.HandleFunc("GET /health/live", handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", handleHealthReady(cfg.HealthCheckers, readyTimeout, cfg.Version))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	ctx := orchestrator.WithRequestID(r.Context(), requestID)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

type processRequest struct {
	Mode    domain.Mode          `json:"mode"`
	Input   string               `json:"input"`
	History []domain.ChatMessage `json:"history"`
}

func (h *Handler) handleProcessRequest(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	requestID := w.Header().Get("X-Request-ID")

	if !h.allow(w, r, userID) {
		return
	}

	var req processRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Input) == "" {
		writeError(w, http.StatusBadRequest, "input is required")
		return
	}
	if req.Mode == "" {
		req.Mode = domain.ModeExplainer
	}
	if !req.Mode.Valid() {
		slog.Warn("unknown mode, serving base policy only",
			"mode", req.Mode,
			"request_id", requestID,
		)
	}

	resp, err := h.orchestrator.ProcessRequest(r.Context(), userID, req.Mode, req.Input, req.History)
	if err != nil {
		slog.Error("request failed",
			"user_id", userID,
			"error", err,
			"request_id", requestID,
		)
		writeModelError(w, err)
		return
	}

	resp.Metadata.ModelConfig = redact(resp.Metadata.ModelConfig)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.registry.AvailableModels(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list models")
		return
	}

	out := make([]domain.ModelConfig, len(models))
	for i, m := range models {
		out[i] = redact(m)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": out})
}

func (h *Handler) handleSaveModel(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var cfg domain.ModelConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	cfg.ID = r.PathValue("modelID")

	if err := h.registry.SaveUserCustomModel(r.Context(), userID, cfg); err != nil {
		if errors.Is(err, domain.ErrInvalidModelConfig) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if errors.Is(err, domain.ErrDuplicateModelID) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		slog.Error("failed to save model", "user_id", userID, "model_id", cfg.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save model")
		return
	}

	cfg.IsSystemDefault = false
	writeJSON(w, http.StatusOK, redact(cfg))
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.registry.UserPreferences(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var update domain.PreferencesUpdate
	if !decodeBody(w, r, &update) {
		return
	}

	prefs, err := h.registry.UpdateUserPreferences(r.Context(), userID, update)
	if err != nil {
		slog.Error("failed to update preferences", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update preferences")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) handleRestoreDefault(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	prefs, err := h.registry.RestoreDefaultModel(r.Context(), userID)
	if err != nil {
		slog.Error("failed to restore default model", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to restore default model")
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *Handler) handleTestModel(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ModelConfig
	if !decodeBody(w, r, &cfg) {
		return
	}
	writeJSON(w, http.StatusOK, h.tester.TestConnection(r.Context(), cfg))
}

// allow fails open when the limiter backend is unavailable.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, userID string) bool {
	if h.rateLimiter == nil {
		return true
	}

	d, err := h.rateLimiter.Allow(r.Context(), userID)
	if err != nil {
		slog.Warn("rate limiter unavailable", "user_id", userID, "error", err)
		return true
	}

	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

	if !d.Allowed {
		metrics.RecordRateLimitHit()
		retryAfter := int(time.Until(d.ResetAt).Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return false
	}
	return true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// redact keeps credentials out of responses.
func redact(cfg domain.ModelConfig) domain.ModelConfig {
	cfg.APIKey = ""
	if len(cfg.Headers) > 0 {
		headers := make(map[string]string, len(cfg.Headers))
		for k := range cfg.Headers {
			headers[k] = domain.RedactedValue
		}
		cfg.Headers = headers
	}
	return cfg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "error",
			"code":    status,
		},
	})
}

func writeModelError(w http.ResponseWriter, err error) {
	body := map[string]any{
		"message": err.Error(),
		"type":    "provider_error",
		"code":    http.StatusBadGateway,
	}
	if errors.Is(err, domain.ErrDualFailure) {
		body["type"] = "dual_failure"
		body["critical"] = true
	}
	writeJSON(w, http.StatusBadGateway, map[string]any{"error": body})
}
