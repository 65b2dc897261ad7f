// Command scalpbot wires and runs the crypto scalping control plane:
// StrategyScheduler, PositionManager, RiskMonitor, StateReconciler,
// MetricsService and the admin HTTP API, generalized from the control
// plane's original cmd/polybot entrypoint (flag parsing, component
// construction, signal-driven graceful shutdown).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/api"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/config"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/configstore"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/metricsvc"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/notify"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/obsmetrics"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/position"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/reconcile"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/risk"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/scheduler"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/strategy"
)

// ShutdownDeadline bounds how long the admin HTTP server is given to finish
// in-flight requests on shutdown. The background loops (scheduler, risk
// monitor, reconciler, market data) stop on context cancellation and are not
// waited for, so a close they have in flight is not given this time.
const ShutdownDeadline = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("scalpbot: failed to load configuration")
	}
	configureLogging(cfg.LogLevel)

	repo, err := storage.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("scalpbot: failed to open storage")
	}

	gateway := buildGateway(cfg)
	market := marketdata.NewService(gateway, 2*time.Second, 200)

	var sink notify.Sink
	if cfg.PaperMode || cfg.TelegramToken == "" {
		sink = notify.NoOp{}
	} else {
		tg, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			log.Error().Err(err).Msg("scalpbot: telegram sink unavailable, falling back to no-op")
			sink = notify.NoOp{}
		} else {
			sink = tg
		}
	}

	cache, err := storage.OpenConfigCache(cfg.ConfigCachePath)
	if err != nil {
		log.Fatal().Err(err).Msg("scalpbot: failed to open config cache")
	}
	defer cache.Close()

	obs := obsmetrics.New()
	store := configstore.New(cfg, repo, cache)
	breaker := risk.NewCircuitBreaker(cfg.MaxDailyLossPct, cfg.EmergencyStopPct, cfg.InitialCapital).WithMetrics(obs)
	manager := position.NewManager(repo, gateway, store, breaker).WithMetrics(obs)
	registry := strategy.NewDefaultRegistry()
	locks := manager.Locks()
	monitor := risk.NewMonitor(locks, manager, market, breaker, sink).WithMetrics(obs)
	sched := scheduler.New(cfg.DecisionInterval, registry, manager, store, market, sink).WithMetrics(obs)
	reconciler := reconcile.New(repo, gateway, cfg, sink).WithMetrics(obs)
	metrics := metricsvc.New(repo, cfg.InitialCapital)

	if err := seedTradingPairs(repo, cfg); err != nil {
		log.Fatal().Err(err).Msg("scalpbot: failed to seed trading pairs")
	}
	if err := reconciler.SeedDefaultStrategies(); err != nil {
		log.Fatal().Err(err).Msg("scalpbot: failed to seed default strategy configs")
	}
	if err := cache.Warm(repo); err != nil {
		log.Fatal().Err(err).Msg("scalpbot: failed to warm config cache")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := reconciler.Run(ctx); err != nil {
		log.Error().Err(err).Msg("scalpbot: startup reconciliation failed")
	}

	if paper, ok := gateway.(*exchange.PaperGateway); ok {
		go feedPaperPrices(ctx, paper, cfg)
	}

	ticks := market.Subscribe()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ticks:
				monitor.OnTick(ctx, ev)
			}
		}
	}()
	go market.Run(ctx, cfg.TradingPairs)
	go sched.Run(ctx)
	go monitor.RunPeriodic(ctx, cfg.RiskInterval)
	go reconciler.RunPeriodic(ctx, cfg.ReconcileInterval)
	go publishGauges(ctx, repo, metrics, obs)

	adminServer := api.NewServer(repo, cache, manager, market, registry, metrics)
	httpServer := &http.Server{Addr: cfg.AdminListenAddr, Handler: adminServer}
	go func() {
		log.Info().Str("addr", cfg.AdminListenAddr).Msg("scalpbot: admin API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("scalpbot: admin API server failed")
		}
	}()

	sink.Notify(ctx, "scalpbot started", modeLabel(cfg), false)

	<-ctx.Done()
	log.Info().Msg("scalpbot: shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownDeadline)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("scalpbot: admin API did not shut down cleanly within deadline")
	}
	log.Info().Msg("scalpbot: shutdown complete")
}

func configureLogging(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
}

func buildGateway(cfg *config.Config) exchange.Gateway {
	if cfg.PaperMode {
		return exchange.NewPaperGateway(5, cfg.InitialCapital, cfg.QuoteAsset)
	}
	return exchange.NewRESTGateway(cfg.ExchangeBaseURL, cfg.ExchangeAPIKey, cfg.ExchangeSecret, cfg.RecvWindowMs)
}

func modeLabel(cfg *config.Config) string {
	if cfg.PaperMode {
		return "paper mode, exchange=" + cfg.ExchangeName
	}
	return "live mode, exchange=" + cfg.ExchangeName
}

// seedTradingPairs ensures every symbol named in cfg.TradingPairs has a
// TradingPair row, inferring precision/min-order-size defaults a real
// deployment would instead source from the exchange's instrument metadata.
func seedTradingPairs(repo *storage.Repository, cfg *config.Config) error {
	for _, symbol := range cfg.TradingPairs {
		if existing, err := repo.TradingPair(symbol); err == nil && existing != nil {
			continue
		}
		pair := &domain.TradingPair{
			Symbol:            symbol,
			QuoteAsset:        cfg.QuoteAsset,
			PricePrecision:    2,
			QuantityPrecision: 6,
			MinOrderSize:      decimal.NewFromFloat(0.0001),
			Active:            true,
			Kind:              domain.Spot,
		}
		pair.BaseAsset = inferBaseAsset(symbol, cfg.QuoteAsset)
		if err := repo.UpsertTradingPair(pair); err != nil {
			return err
		}
	}
	return nil
}

// publishGauges keeps the /metrics activePositions and realizedPnlTotal
// gauges current, since neither PositionManager nor MetricsService pushes to
// Prometheus on their own.
func publishGauges(ctx context.Context, repo *storage.Repository, metrics *metricsvc.Service, obs *obsmetrics.Metrics) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if active, err := repo.ListActivePositions(); err == nil {
				obs.ActivePositions.Set(float64(len(active)))
			}
			if snap, err := metrics.Compute(); err == nil {
				f, _ := snap.TotalPnl.Float64()
				obs.RealizedPnlTotal.Set(f)
			}
		}
	}
}

// feedPaperPrices keeps PaperGateway's reference prices current by polling
// the exchange's public (unauthenticated) ticker endpoint, so paper-mode
// fills track real market prices instead of sitting on a never-seeded zero.
func feedPaperPrices(ctx context.Context, paper *exchange.PaperGateway, cfg *config.Config) {
	feed := exchange.NewRESTGateway(cfg.ExchangeBaseURL, "", "", cfg.RecvWindowMs)
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range cfg.TradingPairs {
				snap, err := feed.GetTicker(ctx, symbol)
				if err != nil {
					log.Warn().Err(err).Str("symbol", symbol).Msg("scalpbot: paper price feed fetch failed")
					continue
				}
				paper.SeedPrice(symbol, snap.LastPrice)
			}
		}
	}
}

func inferBaseAsset(symbol, quote string) string {
	if len(symbol) > len(quote) && symbol[len(symbol)-len(quote):] == quote {
		return symbol[:len(symbol)-len(quote)]
	}
	return symbol
}
