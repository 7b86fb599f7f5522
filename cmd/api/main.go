/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/HamedShams/portfolio-pulse/internal/adapters/jira"
	"github.com/HamedShams/portfolio-pulse/internal/adapters/openai"
	"github.com/HamedShams/portfolio-pulse/internal/adapters/telegram"
	"github.com/HamedShams/portfolio-pulse/internal/analytics"
	"github.com/HamedShams/portfolio-pulse/internal/config"
	apihttp "github.com/HamedShams/portfolio-pulse/internal/http"
	"github.com/HamedShams/portfolio-pulse/internal/jobs"
	"github.com/HamedShams/portfolio-pulse/internal/logger"
	"github.com/HamedShams/portfolio-pulse/internal/repo"
	"github.com/HamedShams/portfolio-pulse/internal/services"
	zlog "github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("config")
	}
	log := logger.New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db := repo.MustOpen(ctx, cfg, log)
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("db migrate failed")
	}
	repository := repo.NewRepository(db, log)

	// Adapters; each stays nil when unconfigured so the service disables it
	var (
		jc  services.JiraClient
		llm services.LLM
		tg  services.Notifier
	)
	if cfg.JiraBaseURL != "" {
		jc = jira.NewClient(cfg, log)
	} else {
		log.Warn().Msg("JIRA_BASE_URL not set; refresh disabled, snapshots must be pushed")
	}
	if cfg.OpenAIKey != "" {
		llm = openai.NewClient(cfg, log)
	}
	if cfg.TelegramToken != "" {
		tg = telegram.NewClient(cfg, log)
	}

	engine := analytics.NewEngine(log, analytics.WithForecaster(analytics.NewForecaster(analytics.WithWorkers(cfg.ForecastWorkers))))
	svc := services.New(cfg, log, repository, jc, llm, tg, engine)

	cron, err := jobs.NewCron(cfg, log, svc, repository)
	if err != nil {
		log.Fatal().Err(err).Msg("cron setup failed")
	}
	cron.Start()
	defer cron.Stop()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apihttp.NewRouter(cfg, log, svc),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down...")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server error")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
}
