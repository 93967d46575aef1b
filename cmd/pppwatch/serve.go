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

	"github.com/spf13/cobra"

	"github.com/rewired-gh/pppwatch/internal/config"
	"github.com/rewired-gh/pppwatch/internal/dashboard"
	"github.com/rewired-gh/pppwatch/internal/httpapi"
	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/metrics"
	"github.com/rewired-gh/pppwatch/internal/report"
	"github.com/rewired-gh/pppwatch/internal/storage"
	"github.com/rewired-gh/pppwatch/internal/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the refresh loop, HTTP API and Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	store, err := storage.New(cfg.Storage.MaxFrames, cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	cache := storage.NewFrameCache(store, cfg.Pair.Key())
	svc := newService(cfg, cache)
	reg := metrics.New(cfg.Pair.Label)

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Pair.Label,
			cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, cleaning up...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, svc.Latest)
	}

	var srv *http.Server
	if cfg.HTTP.Enabled {
		srv = &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpapi.New(svc, cfg.Pair.Label, reg.Handler()).WithHistory(cache).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP API listening on %s", cfg.HTTP.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed: %v", err)
				cancel()
			}
		}()
	}

	logger.Info("Starting refresh service for %s (interval: %v, staleness lag: %d)",
		cfg.Pair.Label, cfg.Refresh.Interval, cfg.Refresh.StalenessLag)

	ticker := time.NewTicker(cfg.Refresh.Interval)
	defer ticker.Stop()

	consecutiveFailures := 0

	handleCycleResult := func(err error) {
		if err != nil {
			consecutiveFailures++
			logger.Error("Refresh cycle failed: %v", err)
			if svc.Latest() != nil {
				logger.Warn("Serving last good frame computed at %s", svc.LastComputed().Format(time.RFC3339))
			}
			if consecutiveFailures == 1 && telegramClient != nil {
				if sendErr := telegramClient.SendError(err); sendErr != nil {
					logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
				}
			}
		} else {
			if consecutiveFailures > 0 && telegramClient != nil {
				if sendErr := telegramClient.SendRecovery(consecutiveFailures); sendErr != nil {
					logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
				}
			}
			consecutiveFailures = 0
		}
	}

	logger.Debug("Running initial refresh cycle")
	handleCycleResult(runRefreshCycle(ctx, svc, reg, telegramClient))

	for {
		select {
		case <-ctx.Done():
			if srv != nil {
				shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Warn("HTTP shutdown: %v", err)
				}
				done()
			}
			logger.Info("Service stopped")
			return nil

		case <-ticker.C:
			logger.Debug("Starting scheduled refresh cycle")
			handleCycleResult(runRefreshCycle(ctx, svc, reg, telegramClient))
		}
	}
}

func runRefreshCycle(
	ctx context.Context,
	svc *dashboard.Service,
	reg *metrics.Registry,
	telegramClient *telegram.Client,
) error {
	startTime := time.Now()

	frame, computed, err := svc.Refresh(ctx)
	if err != nil {
		reg.RecordRefresh(metrics.ResultFailed, time.Now())
		return err
	}

	reg.ObserveFrame(frame)
	if !computed {
		reg.RecordRefresh(metrics.ResultCached, time.Now())
		logger.Debug("Frame is current, nothing to do")
		return nil
	}
	reg.ObserveDuration(time.Since(startTime))
	reg.RecordRefresh(metrics.ResultComputed, time.Now())

	summary, err := report.Summarize(frame)
	if err != nil {
		return err
	}
	logger.Info("Latest %d: rate %.4f, estimate %.4f, band position %s",
		summary.Index, float64(summary.Rate), float64(summary.Estimate), summary.Direction())

	if telegramClient != nil {
		if err := telegramClient.SendSummary(summary); err != nil {
			logger.Error("Failed to send Telegram summary: %v", err)
		} else {
			logger.Info("Sent Telegram summary for %d", summary.Index)
		}
	}

	logger.Info("Refresh cycle completed in %v", time.Since(startTime))
	return nil
}
