// Package position implements PositionManager, the sole mutator of Position
// state. Serializes every read-modify-write on a symbol behind a per-symbol
// lock, generalizing the control plane's original single global-mutex order
// state machine (internal/execution.Executor) into the sharded-lock model
// the concurrency section requires.
package position

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/concurrency"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/obsmetrics"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/risk"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/tradeerr"
)

// ConfigLookup is the narrow slice of ConfigStore PositionManager needs —
// defined here (the leaf package) and implemented by an adapter on the
// config-store side, the same cyclic-dependency-avoidance idiom the control
// plane used for its risk/strategy coupling.
type ConfigLookup interface {
	IsSymbolActive(symbol string) bool
	RiskParamsFor(symbol string) (sl, tp, trailing decimal.Decimal)
	PositionNotional() decimal.Decimal
	MaxHoldingDuration() time.Duration
	MaxConcurrentPositions() int
}

// RiskGate is the narrow CircuitBreaker slice Open consults before placing a
// new order — the daily-loss/emergency-stop fatal tier disables opens
// without touching active positions, which RiskMonitor closes separately.
type RiskGate interface {
	Tripped() (bool, string)
}

// Manager owns the Position lifecycle: open, close, query.
type Manager struct {
	locks    *concurrency.KeyedMutex
	repo     *storage.Repository
	gateway  exchange.Gateway
	calc     risk.Calculator
	cfg      ConfigLookup
	breaker  RiskGate
	obs      *obsmetrics.Metrics
	inFlight map[string]bool // symbol -> close in progress, guarded by locks
}

func NewManager(repo *storage.Repository, gateway exchange.Gateway, cfg ConfigLookup, breaker RiskGate) *Manager {
	return &Manager{
		locks:    concurrency.NewKeyedMutex(),
		repo:     repo,
		gateway:  gateway,
		calc:     risk.NewCalculator(),
		cfg:      cfg,
		breaker:  breaker,
		inFlight: make(map[string]bool),
	}
}

// WithMetrics attaches a Metrics sink for open/close counters; optional,
// nil-safe if never called.
func (m *Manager) WithMetrics(obs *obsmetrics.Metrics) *Manager {
	m.obs = obs
	return m
}

// Open creates a new active Position for symbol. Fails with InvariantError
// if one is already active, ConfigError if the symbol isn't configured
// active, or a retryable ExchangeError if the market order fails — in every
// failure path no local Position is persisted.
func (m *Manager) Open(ctx context.Context, pair domain.TradingPair, side domain.Side, entryPrice decimal.Decimal) (*domain.Position, error) {
	m.locks.Lock(pair.Symbol)
	defer m.locks.Unlock(pair.Symbol)

	if m.breaker != nil {
		if tripped, reason := m.breaker.Tripped(); tripped {
			return nil, tradeerr.Risk(fmt.Sprintf("opens disabled: %s", reason))
		}
	}
	if side == domain.Sell && pair.Kind == domain.Spot {
		return nil, tradeerr.Config(fmt.Sprintf("short selling not permitted on spot pair %s", pair.Symbol))
	}
	if !m.cfg.IsSymbolActive(pair.Symbol) {
		return nil, tradeerr.Config(fmt.Sprintf("symbol %s is not active in config store", pair.Symbol))
	}
	if existing, err := m.repo.ActivePosition(pair.Symbol); err == nil && existing != nil {
		return nil, tradeerr.Invariant(fmt.Sprintf("position already active for %s", pair.Symbol))
	}

	active, err := m.repo.ListActivePositions()
	if err == nil && len(active) >= m.cfg.MaxConcurrentPositions() {
		return nil, tradeerr.Risk("max concurrent positions reached")
	}

	notional := m.cfg.PositionNotional()
	qty := m.calc.QuantityFromNotional(notional, entryPrice, pair.QuantityPrecision)
	if qty.LessThanOrEqual(pair.MinOrderSize) {
		return nil, tradeerr.Validation(fmt.Sprintf("computed quantity %s below min order size %s for %s", qty, pair.MinOrderSize, pair.Symbol))
	}

	result, err := m.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: pair.Symbol, Side: side, Type: domain.Market, Quantity: qty,
	})
	if err != nil {
		if m.obs != nil {
			m.obs.ExchangeErrorsTotal.Inc()
		}
		return nil, tradeerr.Exchange(fmt.Sprintf("opening %s %s failed", side, pair.Symbol), err, true, 2*time.Second)
	}

	fillPrice := result.AvgFillPrice
	if fillPrice.IsZero() {
		fillPrice = entryPrice
	}

	sl, tp, trailing := m.cfg.RiskParamsFor(pair.Symbol)
	now := time.Now().UTC()
	pos := &domain.Position{
		ID:              uuid.New().String(),
		Symbol:          pair.Symbol,
		Side:            side,
		Quantity:        result.FilledQuantity,
		EntryPrice:      fillPrice,
		StopLossPrice:   m.calc.StopLossPrice(side, fillPrice, sl),
		TakeProfitPrice: m.calc.TakeProfitPrice(side, fillPrice, tp),
		TrailingStopPct: trailing,
		HighWatermark:   fillPrice,
		Active:          true,
		OpenedAt:        now,
		ForceCloseAt:    now.Add(m.cfg.MaxHoldingDuration()),
	}

	if err := m.repo.CreatePosition(pos); err != nil {
		return nil, tradeerr.Wrap(tradeerr.KindInvariant, "persisting opened position failed", err)
	}

	m.emitEvent(pos.ID, pos.Symbol, domain.EventPositionOpened, pos.EntryPrice, fmt.Sprintf("opened %s %s qty=%s @ %s", side, pair.Symbol, pos.Quantity, pos.EntryPrice))
	log.Info().Str("symbol", pair.Symbol).Str("side", string(side)).Str("qty", pos.Quantity.String()).Str("entry", pos.EntryPrice.String()).Msg("position opened")
	if m.obs != nil {
		m.obs.PositionsOpenedTotal.Inc()
	}
	return pos, nil
}

// Close closes the active position for symbol at exitPrice with reason. A
// second Close call while one is already in flight for the same symbol
// returns tradeerr.CloseInProgress rather than racing the exchange call.
func (m *Manager) Close(ctx context.Context, symbol string, exitPrice decimal.Decimal, reason domain.CloseReason) (*domain.Position, error) {
	m.locks.Lock(symbol)
	defer m.locks.Unlock(symbol)

	if m.inFlight[symbol] {
		return nil, tradeerr.CloseInProgress
	}

	pos, err := m.repo.ActivePosition(symbol)
	if err != nil || pos == nil {
		return nil, tradeerr.NotFound(fmt.Sprintf("no active position for %s", symbol))
	}

	m.inFlight[symbol] = true
	defer delete(m.inFlight, symbol)

	result, err := m.gateway.PlaceOrder(ctx, exchange.OrderRequest{
		Symbol: symbol, Side: pos.Side.Opposite(), Type: domain.Market, Quantity: pos.Quantity,
	})
	if err != nil {
		// local position stays active=true; caller retries on next tick.
		if m.obs != nil {
			m.obs.ExchangeErrorsTotal.Inc()
		}
		return nil, tradeerr.Exchange(fmt.Sprintf("closing %s failed", symbol), err, true, 2*time.Second)
	}

	fillPrice := result.AvgFillPrice
	if fillPrice.IsZero() {
		fillPrice = exitPrice
	}

	pnl := m.calc.PnL(pos.Side, pos.EntryPrice, fillPrice, pos.Quantity)
	now := time.Now().UTC()
	pos.Active = false
	pos.ClosedAt = &now
	pos.Pnl = pnl
	pos.PnlSet = true
	pos.CloseReason = reason

	if err := m.repo.SavePosition(pos); err != nil {
		return nil, tradeerr.Wrap(tradeerr.KindInvariant, "persisting closed position failed", err)
	}

	m.emitEvent(pos.ID, symbol, domain.EventPositionClosed, fillPrice, fmt.Sprintf("closed %s reason=%s pnl=%s", symbol, reason, pnl))
	log.Info().Str("symbol", symbol).Str("reason", string(reason)).Str("pnl", pnl.String()).Msg("position closed")
	if m.obs != nil {
		m.obs.PositionsClosedTotal.WithLabelValues(string(reason)).Inc()
	}
	return pos, nil
}

// Locks exposes the per-symbol lock set so RiskMonitor can serialize its
// reads against Manager's own mutations instead of racing them.
func (m *Manager) Locks() *concurrency.KeyedMutex {
	return m.locks
}

// GetActive returns the active position for symbol, or nil if none.
func (m *Manager) GetActive(symbol string) (*domain.Position, error) {
	pos, err := m.repo.ActivePosition(symbol)
	if err != nil {
		return nil, nil //nolint:nilerr // gorm ErrRecordNotFound just means "no active position"
	}
	return pos, nil
}

// ListActive returns every currently active position.
func (m *Manager) ListActive() ([]domain.Position, error) {
	return m.repo.ListActivePositions()
}

// UpdateStopLoss persists a new stop-loss price for an active position.
// Callers (RiskMonitor's trailing-stop step) are responsible for verifying
// monotonicity before calling this.
func (m *Manager) UpdateStopLoss(symbol string, newPrice, newHighWatermark decimal.Decimal) error {
	m.locks.Lock(symbol)
	defer m.locks.Unlock(symbol)

	pos, err := m.repo.ActivePosition(symbol)
	if err != nil || pos == nil {
		return tradeerr.NotFound(fmt.Sprintf("no active position for %s", symbol))
	}
	pos.StopLossPrice = newPrice
	pos.HighWatermark = newHighWatermark
	if err := m.repo.SavePosition(pos); err != nil {
		return tradeerr.Wrap(tradeerr.KindInvariant, "persisting trailing stop update failed", err)
	}
	m.emitEvent(pos.ID, symbol, domain.EventTrailingStopUpdated, newPrice, fmt.Sprintf("trailing stop tightened to %s", newPrice))
	return nil
}

// SetEntryPrice supplies a missing entry price for an emergency position
// created by the reconciler, enabling SL/TP monitoring per the design note
// on emergency-position entryPrice=0.
func (m *Manager) SetEntryPrice(symbol string, entryPrice, stopLossPct, takeProfitPct decimal.Decimal) error {
	m.locks.Lock(symbol)
	defer m.locks.Unlock(symbol)

	pos, err := m.repo.ActivePosition(symbol)
	if err != nil || pos == nil {
		return tradeerr.NotFound(fmt.Sprintf("no active position for %s", symbol))
	}
	if !pos.EntryPrice.IsZero() {
		return tradeerr.Validation("entry price already set")
	}
	pos.EntryPrice = entryPrice
	pos.HighWatermark = entryPrice
	pos.StopLossPrice = m.calc.StopLossPrice(pos.Side, entryPrice, stopLossPct)
	pos.TakeProfitPrice = m.calc.TakeProfitPrice(pos.Side, entryPrice, takeProfitPct)
	return m.repo.SavePosition(pos)
}

func (m *Manager) emitEvent(positionID, symbol string, typ domain.RiskEventType, price decimal.Decimal, message string) {
	id := positionID
	event := &domain.RiskEvent{
		PositionID:   &id,
		Symbol:       symbol,
		Type:         typ,
		TriggerPrice: price,
		Message:      message,
		At:           time.Now().UTC(),
	}
	if err := m.repo.SaveRiskEvent(event); err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist risk event")
	}
	if m.obs != nil {
		m.obs.RiskEventsTotal.WithLabelValues(string(typ)).Inc()
	}
}
