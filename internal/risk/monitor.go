package risk

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/concurrency"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/obsmetrics"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/tradeerr"
)

// PositionCloser is the narrow slice of PositionManager the monitor needs —
// an interface in the leaf package, implemented directly by
// *internal/position.Manager, avoiding a risk↔position import cycle.
type PositionCloser interface {
	ListActive() ([]domain.Position, error)
	GetActive(symbol string) (*domain.Position, error)
	Close(ctx context.Context, symbol string, exitPrice decimal.Decimal, reason domain.CloseReason) (*domain.Position, error)
	UpdateStopLoss(symbol string, newPrice, newHighWatermark decimal.Decimal) error
}

// Notifier is the best-effort out-of-band alert sink; failures here never
// block risk checks.
type Notifier interface {
	Notify(ctx context.Context, subject, message string, critical bool)
}

// Monitor implements the dual-trigger stop-loss/take-profit/trailing-stop/
// time-limit watchdog described in the control plane's risk section:
// event-driven on every ticker, with a periodic sweep as the safety net for
// missed events.
type Monitor struct {
	locks      *concurrency.KeyedMutex
	calc       Calculator
	closer     PositionCloser
	market     *marketdata.Service
	breaker    *CircuitBreaker
	notifier   Notifier
	obs        *obsmetrics.Metrics
	staleAfter time.Duration
}

func NewMonitor(locks *concurrency.KeyedMutex, closer PositionCloser, market *marketdata.Service, breaker *CircuitBreaker, notifier Notifier) *Monitor {
	return &Monitor{
		locks:      locks,
		calc:       NewCalculator(),
		closer:     closer,
		market:     market,
		breaker:    breaker,
		notifier:   notifier,
		staleAfter: 5 * time.Second,
	}
}

// WithMetrics attaches a Metrics sink to observe per-symbol check duration;
// optional, nil-safe if never called.
func (m *Monitor) WithMetrics(obs *obsmetrics.Metrics) *Monitor {
	m.obs = obs
	return m
}

// OnTick runs the ordered checks for a single symbol reacting to a fresh
// MarketDataEvent — the low-latency path.
func (m *Monitor) OnTick(ctx context.Context, ev marketdata.Event) {
	m.checkSymbol(ctx, ev.Symbol, ev.Snapshot.LastPrice)
}

// RunPeriodic sweeps every active position at fixed rate interval using the
// cached ticker (refetching if stale), the safety net for missed events.
func (m *Monitor) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepAll(ctx)
		}
	}
}

func (m *Monitor) sweepAll(ctx context.Context) {
	positions, err := m.closer.ListActive()
	if err != nil {
		log.Error().Err(err).Msg("risk monitor: failed to list active positions")
		return
	}

	if m.breaker != nil {
		if tripped, reason := m.breaker.Tripped(); tripped {
			m.closeAllForBreaker(ctx, positions, reason)
			return
		}
	}

	for _, p := range positions {
		price, age, ok := m.market.Ticker(p.Symbol)
		if !ok || age > m.staleAfter {
			fresh, err := m.market.FreshTicker(ctx, p.Symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", p.Symbol).Msg("risk monitor: could not refresh stale ticker")
				continue
			}
			price = fresh
		}
		m.checkSymbol(ctx, p.Symbol, price.LastPrice)
	}
}

// checkSymbol runs the four ordered checks for one symbol's active position,
// if any. Per-position failures are logged and notified; they never abort
// the sweep of other symbols.
func (m *Monitor) checkSymbol(ctx context.Context, symbol string, price decimal.Decimal) {
	start := time.Now()
	if m.obs != nil {
		defer m.obs.ObserveRiskCheck(start)
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("symbol", symbol).Msg("risk monitor: recovered from panic checking symbol")
		}
	}()

	m.locks.Lock(symbol)
	pos, err := m.closer.GetActive(symbol)
	m.locks.Unlock(symbol)
	if err != nil || pos == nil || pos.EntryPrice.IsZero() {
		// no active position, or an emergency position awaiting an
		// operator-supplied entry price: time-limit still applies below.
		if pos != nil && pos.EntryPrice.IsZero() {
			m.checkTimeLimit(ctx, pos, price)
		}
		return
	}

	// 1. Trailing stop update.
	if !pos.TrailingStopPct.IsZero() {
		m.applyTrailingStop(pos, price)
		// re-read after a possible update so the SL check below sees it.
		if refreshed, err := m.closer.GetActive(symbol); err == nil && refreshed != nil {
			pos = refreshed
		}
	}

	// 2. Stop-loss.
	if m.stopLossTriggered(pos, price) {
		m.closeAndNotify(ctx, pos, price, domain.ReasonStopLoss, domain.EventStopLossTriggered)
		return
	}

	// 3. Take-profit (only if still active after SL check).
	if m.takeProfitTriggered(pos, price) {
		m.closeAndNotify(ctx, pos, price, domain.ReasonTakeProfit, domain.EventTakeProfitTriggered)
		return
	}

	// 4. Max holding time.
	m.checkTimeLimit(ctx, pos, price)
}

func (m *Monitor) stopLossTriggered(pos *domain.Position, price decimal.Decimal) bool {
	if pos.StopLossPrice.IsZero() {
		return false
	}
	if pos.Side == domain.Buy {
		return price.LessThanOrEqual(pos.StopLossPrice)
	}
	return price.GreaterThanOrEqual(pos.StopLossPrice)
}

func (m *Monitor) takeProfitTriggered(pos *domain.Position, price decimal.Decimal) bool {
	if pos.TakeProfitPrice.IsZero() {
		return false
	}
	if pos.Side == domain.Buy {
		return price.GreaterThanOrEqual(pos.TakeProfitPrice)
	}
	return price.LessThanOrEqual(pos.TakeProfitPrice)
}

func (m *Monitor) checkTimeLimit(ctx context.Context, pos *domain.Position, price decimal.Decimal) {
	if time.Now().UTC().Before(pos.ForceCloseAt) {
		return
	}
	m.closeAndNotify(ctx, pos, price, domain.ReasonTimeLimit, domain.EventTimeLimitTriggered)
}

func (m *Monitor) applyTrailingStop(pos *domain.Position, price decimal.Decimal) {
	newHWM := m.calc.NextHighWatermark(pos.Side, pos.HighWatermark, price)
	candidateSL := m.calc.TrailingStop(pos.Side, newHWM, pos.TrailingStopPct)
	if !m.calc.IsMoreProtective(pos.Side, candidateSL, pos.StopLossPrice) {
		return
	}
	if err := m.closer.UpdateStopLoss(pos.Symbol, candidateSL, newHWM); err != nil {
		log.Warn().Err(err).Str("symbol", pos.Symbol).Msg("risk monitor: failed to persist trailing stop")
	}
}

// closeAllForBreaker force-closes every active position once the daily-loss
// or emergency-stop threshold trips, the fatal-tier response that disables
// opens and flattens exposure until the next UTC day's reset.
func (m *Monitor) closeAllForBreaker(ctx context.Context, positions []domain.Position, reason string) {
	m.notifier.Notify(ctx, "circuit breaker tripped", reason+": closing all active positions", true)
	for _, p := range positions {
		price, age, ok := m.market.Ticker(p.Symbol)
		if !ok || age > m.staleAfter {
			fresh, err := m.market.FreshTicker(ctx, p.Symbol)
			if err != nil {
				log.Warn().Err(err).Str("symbol", p.Symbol).Msg("risk monitor: could not fetch price to flatten position on breaker trip")
				continue
			}
			price = fresh
		}
		pos := p
		m.closeAndNotify(ctx, &pos, price.LastPrice, domain.ReasonEmergencyStop, domain.EventCircuitBreaker)
	}
}

func (m *Monitor) closeAndNotify(ctx context.Context, pos *domain.Position, price decimal.Decimal, reason domain.CloseReason, eventType domain.RiskEventType) {
	closed, err := m.closer.Close(ctx, pos.Symbol, price, reason)
	if err != nil {
		if errors.Is(err, tradeerr.CloseInProgress) {
			// another tick already owns this close, retry next cycle.
			return
		}
		log.Error().Err(err).Str("symbol", pos.Symbol).Str("reason", string(reason)).Msg("risk monitor: close attempt failed, will retry next tick")
		m.notifier.Notify(ctx, "close failed", pos.Symbol+": "+err.Error(), false)
		return
	}
	log.Info().Str("symbol", pos.Symbol).Str("reason", string(reason)).Str("pnl", closed.Pnl.String()).Msg("risk monitor closed position")
	if m.breaker != nil && closed.PnlSet {
		m.breaker.RecordClose(closed.Pnl)
	}
	m.notifier.Notify(ctx, string(eventType), pos.Symbol+" closed: "+string(reason), reason == domain.ReasonStopLoss)
}
