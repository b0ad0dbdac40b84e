package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/vilaca/agent-dashboard/internal/activity"
	"github.com/vilaca/agent-dashboard/internal/cache"
	"github.com/vilaca/agent-dashboard/internal/config"
	"github.com/vilaca/agent-dashboard/internal/dashboard"
	"github.com/vilaca/agent-dashboard/internal/metrics"
	"github.com/vilaca/agent-dashboard/internal/normalize"
	"github.com/vilaca/agent-dashboard/internal/refresh"
	"github.com/vilaca/agent-dashboard/internal/source"
	"github.com/vilaca/agent-dashboard/internal/source/github"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if os.Getenv("LOG_PRETTY") != "" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration failed")
	}

	handler, refresher := buildServer(cfg, logger)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	refresher.Start()
	defer refresher.Stop()

	logger.Info().
		Str("addr", addr).
		Strs("repos", cfg.Repos).
		Bool("authenticated", cfg.GitHubToken != "").
		Msg("starting agent dashboard")
	if cfg.GitHubToken == "" {
		logger.Warn().Msg("no GITHUB_TOKEN set, running with unauthenticated rate limits")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("shutdown incomplete")
		}
	}
}

// buildServer is the composition root: every dependency is created here and
// injected downward.
func buildServer(cfg *config.Config, logger zerolog.Logger) (http.Handler, *refresh.Refresher) {
	httpClient := &http.Client{Timeout: 30 * time.Second}

	client := github.NewClient(source.ClientConfig{
		BaseURL: cfg.GitHubURL,
		Token:   cfg.GitHubToken,
	}, httpClient, logger)

	normalizer := normalize.New(normalize.Config{
		ActorRoles:           cfg.ActorRoles,
		OperatorLogin:        cfg.OperatorLogin,
		OperatorInteractive:  cfg.OperatorInteractive,
		OperatorAdmin:        cfg.OperatorAdmin,
		AllowedLabels:        cfg.AllowedLabels,
		AllowedLabelPrefixes: cfg.AllowedLabelPrefixes,
	})

	backfiller := activity.NewBackfiller(client, cfg.PrimaryRepo(), logger)
	activityService := activity.NewService(
		client, client, client, normalizer, backfiller,
		cache.New("activity", cfg.ActivityTTL, cfg.CacheMaxEntries),
		cfg.Repos, logger,
	)
	metricsService := metrics.NewService(
		client, client, normalizer,
		cache.New("metrics", cfg.MetricsTTL, cfg.CacheMaxEntries),
		cfg.Repos, cfg.Actors, logger,
	)

	refresher := refresh.New(activityService, metricsService, cfg.RefreshInterval, logger)
	handler := dashboard.NewHandler(activityService, metricsService, logger)
	return handler.Routes(), refresher
}
