// Package scheduler implements StrategyScheduler: the fixed-delay decision
// loop that asks each configured symbol's strategy for a signal and
// instructs PositionManager, generalized from the control plane's original
// core.Engine tick loop (ticker-based, per-symbol fan-out, errors isolated
// per symbol so the sweep never aborts).
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/obsmetrics"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/strategy"
)

// PositionGateway is the narrow PositionManager slice the scheduler needs.
type PositionGateway interface {
	GetActive(symbol string) (*domain.Position, error)
	Open(ctx context.Context, pair domain.TradingPair, side domain.Side, entryPrice decimal.Decimal) (*domain.Position, error)
	Close(ctx context.Context, symbol string, exitPrice decimal.Decimal, reason domain.CloseReason) (*domain.Position, error)
}

// ConfigSource is the narrow ConfigStore slice the scheduler needs.
type ConfigSource interface {
	ActiveConfigs() ([]domain.StrategyConfig, error)
	TradingPair(symbol string) (*domain.TradingPair, error)
}

// Notifier is the best-effort alert sink for per-symbol faults.
type Notifier interface {
	Notify(ctx context.Context, subject, message string, critical bool)
}

// Scheduler drives trading decisions at a fixed delay: the next cycle starts
// only after the previous one fully completes, preventing overlap.
type Scheduler struct {
	interval  time.Duration
	registry  *strategy.Registry
	positions PositionGateway
	configs   ConfigSource
	market    *marketdata.Service
	notifier  Notifier
	obs       *obsmetrics.Metrics
}

func New(interval time.Duration, registry *strategy.Registry, positions PositionGateway, configs ConfigSource, market *marketdata.Service, notifier Notifier) *Scheduler {
	return &Scheduler{
		interval:  interval,
		registry:  registry,
		positions: positions,
		configs:   configs,
		market:    market,
		notifier:  notifier,
	}
}

// WithMetrics attaches a Metrics sink to observe cycle duration; optional,
// nil-safe if never called.
func (s *Scheduler) WithMetrics(obs *obsmetrics.Metrics) *Scheduler {
	s.obs = obs
	return s
}

// Run loops until ctx is canceled. Each cycle runs to completion (including
// any in-flight exchange calls for signal-driven closes/opens) before the next
// timer fires, per the fixed-delay scheduling model.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.runCycle(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.interval):
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()
	if s.obs != nil {
		defer s.obs.ObserveSchedulerCycle(start)
	}

	configs, err := s.configs.ActiveConfigs()
	if err != nil {
		log.Error().Err(err).Msg("scheduler: failed to load active strategy configs")
		return
	}
	for _, cfg := range configs {
		s.runSymbol(ctx, cfg)
	}
}

// runSymbol evaluates and acts on one symbol. Runtime faults and recovered
// panics are logged and notified; a config gap (unknown strategy or missing
// trading pair) is logged and skipped. Nothing is propagated — the sweep of
// other symbols must continue.
func (s *Scheduler) runSymbol(ctx context.Context, cfg domain.StrategyConfig) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("symbol", cfg.Symbol).Msg("scheduler: recovered from panic in symbol cycle")
			s.notifier.Notify(ctx, "scheduler fault", cfg.Symbol+": recovered from panic in symbol cycle", false)
		}
	}()

	strat, err := s.registry.Resolve(cfg.StrategyName)
	if err != nil {
		log.Warn().Str("symbol", cfg.Symbol).Str("strategy", cfg.StrategyName).Msg("scheduler: unknown strategy, skipping")
		return
	}

	pair, err := s.configs.TradingPair(cfg.Symbol)
	if err != nil || pair == nil {
		log.Warn().Str("symbol", cfg.Symbol).Msg("scheduler: no trading pair configured, skipping")
		return
	}

	history := s.market.History(cfg.Symbol)
	signal := strat.Evaluate(strategy.MarketContext{Symbol: cfg.Symbol, Params: cfg.Params, History: history})

	active, err := s.positions.GetActive(cfg.Symbol)
	if err != nil {
		s.fault(ctx, cfg.Symbol, "failed to read active position", err)
		return
	}

	switch {
	case active != nil && isOpposite(active.Side, signal.Direction):
		snap, err := s.market.FreshTicker(ctx, cfg.Symbol)
		if err != nil {
			s.fault(ctx, cfg.Symbol, "fetching ticker for signal-close failed", err)
			return
		}
		if _, err := s.positions.Close(ctx, cfg.Symbol, snap.LastPrice, domain.ReasonStrategySignal); err != nil {
			s.fault(ctx, cfg.Symbol, "closing on opposite signal failed", err)
		}
	case active == nil && signal.Direction == strategy.DirectionBuy:
		snap, err := s.market.FreshTicker(ctx, cfg.Symbol)
		if err != nil {
			s.fault(ctx, cfg.Symbol, "fetching ticker for signal-open failed", err)
			return
		}
		if _, err := s.positions.Open(ctx, *pair, domain.Buy, snap.LastPrice); err != nil {
			s.fault(ctx, cfg.Symbol, "opening on buy signal failed", err)
		}
	case active == nil && signal.Direction == strategy.DirectionSell && pair.Kind != domain.Spot:
		snap, err := s.market.FreshTicker(ctx, cfg.Symbol)
		if err != nil {
			s.fault(ctx, cfg.Symbol, "fetching ticker for signal-open failed", err)
			return
		}
		if _, err := s.positions.Open(ctx, *pair, domain.Sell, snap.LastPrice); err != nil {
			s.fault(ctx, cfg.Symbol, "opening on sell signal failed", err)
		}
	default:
		// no-op: either no signal, same-direction signal with an
		// already-open position, or a Sell signal on a spot-only pair.
	}
}

func isOpposite(positionSide domain.Side, signal strategy.Direction) bool {
	if signal == strategy.DirectionNone {
		return false
	}
	return (positionSide == domain.Buy && signal == strategy.DirectionSell) ||
		(positionSide == domain.Sell && signal == strategy.DirectionBuy)
}

func (s *Scheduler) fault(ctx context.Context, symbol, message string, err error) {
	log.Error().Err(err).Str("symbol", symbol).Msg("scheduler: " + message)
	s.notifier.Notify(ctx, "scheduler fault", symbol+": "+message+": "+err.Error(), false)
}
