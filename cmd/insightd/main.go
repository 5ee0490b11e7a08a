package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felipepmaragno/insight-router/internal/api"
	"github.com/felipepmaragno/insight-router/internal/config"
	"github.com/felipepmaragno/insight-router/internal/crypto"
	"github.com/felipepmaragno/insight-router/internal/domain"
	"github.com/felipepmaragno/insight-router/internal/httputil"
	"github.com/felipepmaragno/insight-router/internal/notifications"
	"github.com/felipepmaragno/insight-router/internal/orchestrator"
	"github.com/felipepmaragno/insight-router/internal/prompt"
	"github.com/felipepmaragno/insight-router/internal/provider"
	"github.com/felipepmaragno/insight-router/internal/provider/anthropic"
	"github.com/felipepmaragno/insight-router/internal/provider/bedrock"
	"github.com/felipepmaragno/insight-router/internal/provider/gemini"
	"github.com/felipepmaragno/insight-router/internal/provider/openaicompat"
	"github.com/felipepmaragno/insight-router/internal/ratelimit"
	"github.com/felipepmaragno/insight-router/internal/registry"
	"github.com/felipepmaragno/insight-router/internal/repository"
	"github.com/felipepmaragno/insight-router/internal/retriever"
	"github.com/felipepmaragno/insight-router/internal/router"
	"github.com/felipepmaragno/insight-router/internal/secrets"
	"github.com/felipepmaragno/insight-router/internal/telemetry"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting insight router", "addr", cfg.Addr, "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.ServiceName, version, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to initialize telemetry", "error", err)
		os.Exit(1)
	}

	storage, err := setupStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer storage.close()

	catalog, err := loadCatalog(cfg.ModelCatalogPath)
	if err != nil {
		slog.Error("failed to load model catalog", "error", err)
		os.Exit(1)
	}

	reg, err := registry.New(catalog, storage.store)
	if err != nil {
		slog.Error("invalid model catalog", "error", err)
		os.Exit(1)
	}
	slog.Info("model catalog loaded", "models", len(catalog), "system_default", reg.SystemDefault().ID)

	geminiKey, err := resolveGeminiKey(ctx, cfg)
	if err != nil {
		slog.Error("failed to resolve gemini api key", "error", err)
		os.Exit(1)
	}
	if geminiKey == "" {
		slog.Warn("no gemini api key configured, system default model calls will fail")
	}

	adapters, err := setupAdapters(ctx, cfg, geminiKey)
	if err != nil {
		slog.Error("failed to set up provider adapters", "error", err)
		os.Exit(1)
	}

	notifier, err := setupNotifier(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up alert notifier", "error", err)
		os.Exit(1)
	}

	modelRouter := router.New(reg, adapters, router.WithNotifier(notifier))
	knowledge := retriever.NewSeeded()
	prompts := prompt.Default()
	slog.Info("knowledge base loaded", "documents", len(knowledge.Documents()))
	slog.Info("prompt modes loaded", "modes", prompts.Modes())

	orch := orchestrator.New(knowledge, prompts, modelRouter)

	handler := api.NewHandler(api.HandlerConfig{
		Orchestrator:   orch,
		Registry:       reg,
		Tester:         modelRouter,
		RateLimiter:    setupRateLimiter(cfg, storage),
		HealthCheckers: storage.checkers,
		Version:        version,
	})

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*cfg.ProviderTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}

	slog.Info("server stopped")
}

// backend is the storage selected by STORE_BACKEND plus what else is built on it.
type backend struct {
	store    repository.Store
	checkers []api.HealthChecker
	redis    *redis.Client
	close    func()
}

func setupStore(ctx context.Context, cfg *config.Config) (*backend, error) {
	var sealer repository.CredentialSealer
	if cfg.EncryptionKey != "" {
		s, err := crypto.NewSealer(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		sealer = s
	} else if cfg.StoreBackend != config.StoreMemory {
		slog.Warn("ENCRYPTION_KEY not set, custom model credentials are stored in plaintext")
	}

	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := repository.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		store := repository.NewRedisStore(client, sealer)
		slog.Info("using redis store")
		return &backend{
			store:    store,
			checkers: []api.HealthChecker{api.NewPingChecker("redis", store.Ping)},
			redis:    client,
			close:    func() { store.Close() },
		}, nil

	case config.StorePostgres:
		db, err := repository.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := repository.NewPostgresStore(db, sealer)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		slog.Info("using postgres store")
		return &backend{
			store:    store,
			checkers: []api.HealthChecker{api.NewPingChecker("postgres", store.Ping)},
			close:    func() { db.Close() },
		}, nil

	default:
		slog.Info("using in-memory store")
		return &backend{store: repository.NewInMemoryStore(), close: func() {}}, nil
	}
}

func setupRateLimiter(cfg *config.Config, b *backend) ratelimit.Limiter {
	if cfg.RequestsPerMinute == 0 {
		return nil
	}
	if b.redis != nil {
		slog.Info("using redis rate limiter", "rpm", cfg.RequestsPerMinute)
		return ratelimit.NewRedisLimiter(b.redis, cfg.RequestsPerMinute)
	}
	slog.Info("using in-memory rate limiter", "rpm", cfg.RequestsPerMinute)
	return ratelimit.NewInMemoryLimiter(cfg.RequestsPerMinute)
}

func loadCatalog(path string) ([]domain.ModelConfig, error) {
	if path != "" {
		slog.Info("loading model catalog from file", "path", path)
		return registry.LoadCatalogFile(path)
	}
	return registry.LoadCatalog()
}

func resolveGeminiKey(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.GeminiAPIKeySecret == "" {
		return cfg.GeminiAPIKey, nil
	}

	sm, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
	if err != nil {
		return "", err
	}
	slog.Info("resolving gemini api key from secrets manager", "secret", cfg.GeminiAPIKeySecret)
	return secrets.ResolveAPIKey(ctx, sm, cfg.GeminiAPIKeySecret)
}

func setupAdapters(ctx context.Context, cfg *config.Config, geminiKey string) (*provider.Set, error) {
	client := httputil.NewClient(httputil.ProviderConfig(cfg.ProviderTimeout))

	adapters := provider.NewSet()
	adapters.Register(domain.ProviderGemini, gemini.New(geminiKey, client))
	adapters.Register(domain.ProviderOpenAICompatible, openaicompat.New(client))
	adapters.Register(domain.ProviderAnthropic, anthropic.New(client))

	if cfg.AWSRegion != "" {
		b, err := bedrock.New(ctx, cfg.AWSRegion, client)
		if err != nil {
			return nil, err
		}
		adapters.Register(domain.ProviderBedrock, b)
	}

	slog.Info("registered providers", "providers", adapters.Kinds())
	return adapters, nil
}

func setupNotifier(ctx context.Context, cfg *config.Config) (notifications.Notifier, error) {
	if cfg.AlertTopicARN == "" {
		return notifications.LogNotifier{}, nil
	}
	n, err := notifications.NewSNSNotifier(ctx, cfg.AWSRegion, cfg.AlertTopicARN)
	if err != nil {
		return nil, err
	}
	slog.Info("dual failure alerts routed to sns", "topic", cfg.AlertTopicARN)
	return n, nil
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
