package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewired-gh/pppwatch/internal/config"
	"github.com/rewired-gh/pppwatch/internal/dashboard"
	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/worldbank"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "pppwatch",
		Short:         "Purchasing Power Parity estimation for one currency pair",
		Long:          "pppwatch fetches price levels and exchange rates from the World Bank and tracks how far the observed rate deviates from its PPP estimate.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file (empty for defaults and environment only)")

	rootCmd.AddCommand(newServeCmd(), newEstimateCmd(), newHistoryCmd(), newClearCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads and validates configuration, then initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	}
	return cfg, nil
}

func newProvider(cfg *config.Config) *worldbank.Client {
	wb := cfg.WorldBank
	return worldbank.NewClient(wb.BaseURL, worldbank.ClientConfig{
		Timeout:           wb.Timeout,
		PerPage:           wb.PerPage,
		MaxRetries:        wb.MaxRetries,
		RetryDelayBase:    wb.RetryDelayBase,
		RequestsPerSecond: wb.RequestsPerSecond,
		Burst:             wb.Burst,
		BreakerFailures:   wb.BreakerFailures,
		BreakerTimeout:    wb.BreakerTimeout,
	})
}

func newService(cfg *config.Config, cache dashboard.FrameCache) *dashboard.Service {
	p := cfg.Pair
	return dashboard.New(newProvider(cfg), cache, dashboard.Config{
		Pair: dashboard.Pair{
			Label:          p.Label,
			CountryA:       p.CountryA,
			CountryB:       p.CountryB,
			PriceIndicator: p.PriceIndicator,
			RateIndicator:  p.RateIndicator,
			StartYear:      p.StartYear,
		},
		StalenessLag: cfg.Refresh.StalenessLag,
	})
}
