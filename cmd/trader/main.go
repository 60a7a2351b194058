package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/davidrv/cryptoguard/internal/advisor"
	"github.com/davidrv/cryptoguard/internal/alerts"
	"github.com/davidrv/cryptoguard/internal/config"
	"github.com/davidrv/cryptoguard/internal/market"
	"github.com/davidrv/cryptoguard/internal/metrics"
	"github.com/davidrv/cryptoguard/internal/portfolio"
	"github.com/davidrv/cryptoguard/internal/rebalance"
	"github.com/davidrv/cryptoguard/internal/risk"
	"github.com/davidrv/cryptoguard/internal/trader"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: ./configs/config.yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	logger := config.NewLogger("trader")

	logger.Info().
		Str("app", cfg.App.Name).
		Str("environment", cfg.App.Environment).
		Str("mode", cfg.Trading.Mode).
		Msg("Starting CryptoGuard")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Per-source circuit breakers sit between the resolver and the
	// upstream exchanges.
	breakers := risk.NewSourceBreakerManager()

	timeout := cfg.Sources.Timeout()
	rpm := cfg.Sources.RequestsPerMinute
	sources := []market.Source{
		market.NewCoinbaseSource(cfg.Sources.CoinbaseURL, timeout, rpm,
			breakers.Breaker(market.SourceCoinbase), config.NewSourceLogger(market.SourceCoinbase)),
		market.NewKrakenSource(cfg.Sources.KrakenURL, timeout, rpm,
			breakers.Breaker(market.SourceKraken), config.NewSourceLogger(market.SourceKraken)),
		market.NewCoinGeckoSource(cfg.Sources.CoinGeckoURL, timeout, rpm,
			breakers.Breaker(market.SourceCoinGecko), config.NewSourceLogger(market.SourceCoinGecko)),
	}

	var quotes market.QuoteProvider = market.NewResolver(sources, cfg.Sources.FetchBudget(), config.NewLogger("resolver"))

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.GetRedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cache := market.NewCachedResolver(quotes, client, cfg.Redis.CacheTTL())
		if err := cache.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, quote cache disabled")
		} else {
			logger.Info().Str("addr", cfg.Redis.GetRedisAddr()).Msg("Quote cache enabled")
			quotes = cache
		}
	}

	alerters := []alerts.Alerter{alerts.NewLogAlerter()}
	if cfg.Alerts.TelegramToken != "" {
		tg, err := alerts.NewTelegramAlerter(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatIDs)
		if err != nil {
			logger.Warn().Err(err).Msg("Telegram alerter unavailable")
		} else {
			alerters = append(alerters, tg)
		}
	}
	alertManager := alerts.NewManager(alerters...)

	var metricsServer *metrics.Server
	if cfg.Monitoring.EnableMetrics {
		metricsServer = metrics.NewServer(cfg.Monitoring.PrometheusPort, config.NewLogger("metrics"))
		if err := metricsServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start metrics server")
		}
	}

	deps := trader.Deps{
		Quotes:    quotes,
		History:   market.NewHistory(market.MaxCloses),
		Risk:      risk.NewController(cfg.Risk, config.NewLogger("risk")),
		Engine:    portfolio.NewEngine(cfg.Trading, config.NewLogger("portfolio")),
		Alerts:    alertManager,
		Snapshots: trader.NewSnapshotWriter(cfg.Trading.SnapshotDir, time.Now(), config.NewLogger("snapshot")),
	}
	if cfg.Rebalance.Enabled {
		deps.Rebalancer = rebalance.NewManager(cfg.Rebalance, cfg.Trading.InitialCapital, quotes, config.NewLogger("rebalance"))
	}
	if cfg.Advisor.Enabled {
		deps.Advisor = advisor.NewNoop()
	}

	t := trader.New(cfg, deps, logger)
	runErr := t.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if runErr != nil && runErr != context.Canceled {
		log.Fatal().Err(runErr).Msg("Trader exited with error")
	}

	if halted, reason := t.Halted(); halted {
		logger.Error().Str("reason", reason).Msg("Session ended by risk controls")
		os.Exit(1)
	}
	logger.Info().Msg("Session ended")
}
