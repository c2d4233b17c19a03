package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	h "github.com/tunefetch/tunefetch/internal/api/http"
	cfgpkg "github.com/tunefetch/tunefetch/internal/config"
	"github.com/tunefetch/tunefetch/internal/events"
	"github.com/tunefetch/tunefetch/internal/orchestrator"
	"github.com/tunefetch/tunefetch/internal/provider"
	repo "github.com/tunefetch/tunefetch/internal/repository"
	"github.com/tunefetch/tunefetch/internal/storage"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	cfgpkg.SetupLogger(cfg)
	logger := slog.Default()
	logger.Info("configuration loaded", "environment", cfg.Environment)

	taskRepo, err := repo.NewSQLiteRepo(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to initialize task repository", "error", err)
		os.Exit(1)
	}
	defer taskRepo.Close()

	publisher := events.NewPublisher(logger)
	defer publisher.Close()

	orch := orchestrator.New(cfg, orchestrator.Deps{
		Repo:     taskRepo,
		Files:    storage.NewFileStorage(cfg.DownloadDir),
		Search:   provider.NewHTTPSearch(cfg.SearchBaseURL, logger),
		Ranker:   provider.FirstAvailableRanker{},
		Transfer: provider.NewHTTPTransfer(cfg.DownloadTimeout, cfg.MaxFileSize, logger),
		Tagger:   provider.NewID3Tagger(logger),
		Events:   publisher,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Recover(ctx); err != nil {
		logger.Error("failed to recover queue state", "error", err)
		os.Exit(1)
	}

	go orch.Run(ctx)

	router := h.NewRouter(orch, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	go func() {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown failed", "error", err)
	} else {
		logger.Info("stopped gracefully")
	}
}
