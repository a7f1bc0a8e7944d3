package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"faultline/internal/artifact"
	"faultline/internal/budget"
	"faultline/internal/cache"
	"faultline/internal/config"
	"faultline/internal/llm"
	"faultline/internal/observability"
	"faultline/internal/pipeline"
	"faultline/internal/prompt"
	"faultline/internal/server"
	"faultline/internal/store"
	"faultline/internal/util/jsonutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	deps := []string{"parser"}

	client, err := buildClient(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init llm client", zap.Error(err))
	}
	defer client.Close()

	turnStore, storeName, err := buildStore(cfg)
	if err != nil {
		logger.Fatal("init store", zap.Error(err))
	}
	deps = append(deps, storeName)

	archive, err := buildArchive(cfg)
	if err != nil {
		logger.Fatal("init artifact archive", zap.Error(err))
	}

	prompts := prompt.NewRegistry()
	if cfg.PromptDir != "" {
		if err := prompts.LoadDir(cfg.PromptDir); err != nil {
			logger.Fatal("load prompt overrides", zap.Error(err))
		}
	}

	orch := pipeline.New(pipeline.Config{
		Client:  client,
		Prompts: prompts,
		Store:   turnStore,
		Archive: archive,
		Logger:  logger,
		Metrics: observability.LogSink{Logger: logger},
		Recover: jsonutil.RecoverOptions{MaxCommaInserts: cfg.Recovery.MaxCommaInserts},
	})

	respCache, err := cache.New(cfg.Cache.Size)
	if err != nil {
		logger.Fatal("init response cache", zap.Error(err))
	}
	enforcer := budget.NewEnforcer(cfg.Budget.TokenLimit, cfg.Budget.Window)

	handlers := server.NewHandlers(orch, respCache, enforcer, server.NewHub(), logger, deps)
	srv := server.New(cfg.Port, server.NewMux(handlers), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	}
}

func buildClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (llm.Client, error) {
	var base llm.Client
	switch cfg.LLM.Provider {
	case "gemini":
		gemini, err := llm.NewGeminiClient(ctx, cfg.LLM.Model)
		if err != nil {
			return nil, err
		}
		base = gemini
	default:
		logger.Warn("no model credentials configured, using the fake client")
		base = llm.NewFakeClient()
	}
	return llm.Wrap(base,
		llm.Logging(logger),
		llm.Retry(cfg.LLM.MaxAttempts, cfg.LLM.RetryDelay),
		llm.RateLimit(cfg.LLM.RPS, cfg.LLM.Burst),
	), nil
}

func buildStore(cfg *config.Config) (store.Store, string, error) {
	if cfg.Store.PostgresDSN == "" {
		return store.NewMemory(), "storage:memory", nil
	}
	pg, err := store.NewPostgres(cfg.Store.PostgresDSN)
	if err != nil {
		return nil, "", err
	}
	return pg, "storage:postgres", nil
}

func buildArchive(cfg *config.Config) (artifact.Archive, error) {
	if !cfg.Artifact.Enabled {
		return artifact.NewMemoryArchive(), nil
	}
	return artifact.NewS3Archive(artifact.S3Config{
		Endpoint:  cfg.Artifact.Endpoint,
		Region:    cfg.Artifact.Region,
		AccessKey: cfg.Artifact.AccessKey,
		SecretKey: cfg.Artifact.SecretKey,
		Bucket:    cfg.Artifact.Bucket,
		UseSSL:    cfg.Artifact.UseSSL,
	})
}
