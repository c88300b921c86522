package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/terra-clan/codecrafters/internal/api"
	"github.com/terra-clan/codecrafters/internal/assistant"
	"github.com/terra-clan/codecrafters/internal/auth"
	"github.com/terra-clan/codecrafters/internal/catalog"
	"github.com/terra-clan/codecrafters/internal/cleanup"
	"github.com/terra-clan/codecrafters/internal/config"
	"github.com/terra-clan/codecrafters/internal/editor"
	"github.com/terra-clan/codecrafters/internal/events"
	"github.com/terra-clan/codecrafters/internal/grader"
	"github.com/terra-clan/codecrafters/internal/stats"
	"github.com/terra-clan/codecrafters/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	slog.Info("starting codecrafters",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"database", cfg.Database.Driver,
		"grader", cfg.Grader.Mode,
		"assistant", cfg.Assistant.Provider,
	)

	ctx := cmd.Context()

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(ctx, 30*time.Second)
	defer initCancel()

	if cfg.Database.Driver == config.DriverPostgres {
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.MigrateFromDSN(initCtx, cfg.Database.DSN, cfg.Database.MigrationsDir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	seedCatalog(initCtx, cfg.Catalog.Dir, repo)

	cleaner := cleanup.NewCleaner(cfg.Cleanup.Interval)

	sessions, closeSessions, err := openSessionStore(initCtx, cfg.Redis, cleaner)
	if err != nil {
		return err
	}
	defer closeSessions()

	publisher, err := events.NewRabbitPublisher(cfg.Events.RabbitURI)
	if err != nil {
		return err
	}
	defer publisher.Close()

	gr, closeGrader, err := newGrader(initCtx, cfg.Grader)
	if err != nil {
		return err
	}
	defer closeGrader()

	helper, transcriber, err := newAssistant(cfg.Assistant)
	if err != nil {
		return err
	}

	authService := auth.NewService(auth.Config{
		Secret:     cfg.Auth.JWTSecret,
		Issuer:     cfg.Auth.Issuer,
		SessionTTL: cfg.Auth.SessionTTL,
	}, repo, sessions, publisher)

	editors := editor.NewRegistry(editor.Deps{
		Store:       repo,
		Grader:      gr,
		Assistant:   helper,
		Transcriber: transcriber,
		Events:      publisher,
	}, cfg.Cleanup.EditorIdleTTL)
	cleaner.Register("editor_sessions", editors)

	limiter := api.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	cleaner.Register("rate_limit_visitors", limiter)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server := api.NewServer(cfg.Server, api.Services{
		Repo:    repo,
		Auth:    authService,
		Stats:   stats.NewService(repo),
		Editors: editors,
		Metrics: api.NewMetrics(registry),
		Limiter: limiter,
	})

	// Start cleanup worker
	cleaner.Start(ctx)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("HTTP server error: %w", err)
	}

	slog.Info("shutting down gracefully...")

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("codecrafters stopped")
	return nil
}

// openRepository connects the configured storage backend
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	if cfg.Database.Driver == config.DriverMemory {
		slog.Warn("using in-memory storage, data is lost on restart")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxOpenConns),
		MaxIdleConns: int32(cfg.Database.MaxIdleConns),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create database repository: %w", err)
	}
	slog.Info("database connected successfully")
	return repo, nil
}

// seedCatalog upserts the catalog on start. A missing catalog is not fatal.
func seedCatalog(ctx context.Context, dir string, repo storage.Repository) {
	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(dir); err != nil {
		slog.Warn("failed to load catalog from dir", "dir", dir, "error", err)
		return
	}

	challenges, achievements, err := loader.Seed(ctx, repo)
	if err != nil {
		slog.Error("failed to seed catalog", "error", err)
		return
	}
	slog.Info("catalog seeded", "challenges", challenges, "achievements", achievements)
}

// openSessionStore returns Redis when configured, else a swept in-memory store,
// together with a func releasing the store's connections
func openSessionStore(ctx context.Context, cfg config.RedisConfig, cleaner *cleanup.Cleaner) (auth.SessionStore, func(), error) {
	if cfg.Address == "" {
		slog.Warn("redis address is empty, sessions are kept in memory")
		store := auth.NewMemorySessionStore()
		cleaner.Register("auth_sessions", store)
		return store, closerFor(store), nil
	}

	store, err := auth.NewRedisSessionStore(ctx, cfg.Address, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("redis connected successfully", "address", cfg.Address)
	return store, closerFor(store), nil
}

// closerFor returns a func closing store if it holds connections, else a no-op
func closerFor(store auth.SessionStore) func() {
	c, ok := store.(io.Closer)
	if !ok {
		return func() {}
	}
	return func() {
		if err := c.Close(); err != nil {
			slog.Error("session store close error", "error", err)
		}
	}
}

// newGrader builds the configured grader and a func releasing its resources
func newGrader(ctx context.Context, cfg config.GraderConfig) (grader.Grader, func(), error) {
	if cfg.Mode != config.GraderDocker {
		return grader.NewPlaceholderGrader(nil), func() {}, nil
	}

	runner, err := grader.NewDockerRunner(grader.DockerConfig{
		Host:        cfg.DockerHost,
		Network:     cfg.Network,
		MemoryLimit: cfg.MemoryLimit,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := runner.Ping(ctx); err != nil {
		runner.Close()
		return nil, nil, err
	}

	closeRunner := func() {
		if err := runner.Close(); err != nil {
			slog.Error("docker client close error", "error", err)
		}
	}
	return grader.NewRunnerGrader(runner, grader.DefaultRuntimes, cfg.CaseTimeout), closeRunner, nil
}

// newAssistant builds the configured assistant, falling back to canned hints on failure
func newAssistant(cfg config.AssistantConfig) (assistant.Assistant, assistant.Transcriber, error) {
	canned := assistant.NewCanned(nil)

	var (
		primary assistant.Assistant
		err     error
	)
	switch cfg.Provider {
	case config.ProviderAnthropic:
		primary, err = assistant.NewAnthropic(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	case config.ProviderOpenAI:
		primary, err = assistant.NewOpenAI(openAIConfig(cfg))
	}
	if err != nil {
		return nil, nil, err
	}

	var helper assistant.Assistant = canned
	if primary != nil {
		helper = &assistant.Fallback{Primary: primary, Secondary: canned}
	}

	if !cfg.VoiceEnabled {
		return helper, nil, nil
	}
	whisper, err := assistant.NewWhisper(openAIConfig(cfg))
	if err != nil {
		return nil, nil, err
	}
	return helper, whisper, nil
}

func openAIConfig(cfg config.AssistantConfig) assistant.OpenAIConfig {
	return assistant.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}
}
