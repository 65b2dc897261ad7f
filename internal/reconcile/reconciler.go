// Package reconcile implements StateReconciler: aligning local Position
// state with exchange-side exposure on startup and at a long interval,
// generalized from the control plane's original execution.Reconciler
// (load-from-DB, trust-it recovery) into a full three-way diff against
// ExchangeGateway.GetExchangePosition.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/config"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/obsmetrics"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
)

// DustThreshold is the minimum exchange-side base-asset balance treated as a
// real position rather than leftover dust.
var DustThreshold = decimal.NewFromFloat(0.00000001)

// Notifier is the best-effort alert sink for orphan exchange exposure and
// per-symbol reconciliation faults; quantity alignments are recorded as risk
// events only.
type Notifier interface {
	Notify(ctx context.Context, subject, message string, critical bool)
}

// Reconciler aligns the repository's local positions with the exchange's
// actual exposure.
type Reconciler struct {
	repo     *storage.Repository
	gateway  exchange.Gateway
	cfg      *config.Config
	notifier Notifier
	obs      *obsmetrics.Metrics
}

func New(repo *storage.Repository, gateway exchange.Gateway, cfg *config.Config, notifier Notifier) *Reconciler {
	return &Reconciler{repo: repo, gateway: gateway, cfg: cfg, notifier: notifier}
}

// WithMetrics attaches a Metrics sink for run/fix counters; optional,
// nil-safe if never called.
func (r *Reconciler) WithMetrics(obs *obsmetrics.Metrics) *Reconciler {
	r.obs = obs
	return r
}

// SeedDefaultStrategies inserts the configured default StrategyConfig
// entries the first time they're missing from the repository, run once on
// startup before the first reconciliation pass.
func (r *Reconciler) SeedDefaultStrategies() error {
	for _, d := range r.cfg.DefaultStrategies {
		existing, err := r.repo.StrategyConfig(d.Symbol)
		if err == nil && existing != nil {
			continue
		}
		sc := &domain.StrategyConfig{Symbol: d.Symbol, StrategyName: d.StrategyName, Active: d.Active, Params: d.Params}
		if err := r.repo.UpsertStrategyConfig(sc); err != nil {
			return fmt.Errorf("reconcile: seeding default strategy for %s: %w", d.Symbol, err)
		}
		log.Info().Str("symbol", d.Symbol).Str("strategy", d.StrategyName).Msg("reconcile: seeded default strategy config")
	}
	return nil
}

// Run performs one reconciliation pass over every configured trading pair.
// Running it twice in a row with no exchange-state change produces no
// additional mutations: every branch below only writes when L and E
// genuinely disagree.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.obs != nil {
		r.obs.ReconciliationRunsTotal.Inc()
	}
	pairs, err := r.repo.ActiveTradingPairs()
	if err != nil {
		return fmt.Errorf("reconcile: loading trading pairs: %w", err)
	}
	for _, pair := range pairs {
		if err := r.reconcileSymbol(ctx, pair); err != nil {
			log.Error().Err(err).Str("symbol", pair.Symbol).Msg("reconcile: symbol reconciliation failed")
			r.notifier.Notify(ctx, "reconciliation fault", pair.Symbol+": "+err.Error(), true)
		}
	}
	return nil
}

// RunPeriodic runs Run on a fixed interval until ctx is canceled.
func (r *Reconciler) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Run(ctx)
		}
	}
}

func (r *Reconciler) reconcileSymbol(ctx context.Context, pair domain.TradingPair) error {
	local, localErr := r.repo.ActivePosition(pair.Symbol)
	if localErr != nil {
		local = nil
	}

	exch, err := r.gateway.GetExchangePosition(ctx, pair, DustThreshold)
	if err != nil {
		return fmt.Errorf("fetching exchange position: %w", err)
	}

	switch {
	case local != nil && exch == nil:
		return r.handleExternalClose(pair.Symbol, local)
	case local == nil && exch != nil:
		return r.handleOrphanExposure(ctx, pair, exch)
	case local != nil && exch != nil:
		return r.handleBothPresent(pair, local, exch)
	default:
		return nil // both absent: no-op
	}
}

// handleExternalClose covers (L present, E absent): the exchange-side
// position disappeared while the bot was down.
func (r *Reconciler) handleExternalClose(symbol string, local *domain.Position) error {
	now := time.Now().UTC()
	local.Active = false
	local.ClosedAt = &now
	local.PnlSet = false
	local.CloseReason = domain.ReasonExternalClose
	if err := r.repo.SavePosition(local); err != nil {
		return fmt.Errorf("marking externally-closed position: %w", err)
	}
	r.countFix()
	return r.emit(local.ID, symbol, domain.EventReconciliation, decimal.Zero, "local position marked closed: no matching exchange exposure found")
}

// handleOrphanExposure covers (L absent, E present): uncontrolled exposure
// discovered on the exchange. Creates an emergency position with
// entryPrice=0, ineligible for SL/TP monitoring until an operator supplies
// an entry price (internal/position.Manager.SetEntryPrice).
func (r *Reconciler) handleOrphanExposure(ctx context.Context, pair domain.TradingPair, exch *exchange.ExchangePosition) error {
	now := time.Now().UTC()
	pos := &domain.Position{
		ID:           uuid.New().String(),
		Symbol:       pair.Symbol,
		Side:         domain.Buy,
		Quantity:     exch.Quantity,
		EntryPrice:   decimal.Zero,
		Active:       true,
		OpenedAt:     now,
		ForceCloseAt: now.Add(r.cfg.MaxHoldingDuration),
	}
	if err := r.repo.CreatePosition(pos); err != nil {
		return fmt.Errorf("creating emergency position: %w", err)
	}
	r.countFix()
	if err := r.emit(pos.ID, pair.Symbol, domain.EventEmergencyExposure, decimal.Zero,
		fmt.Sprintf("uncontrolled exchange exposure detected: qty=%s, emergency position created, entry price unknown", exch.Quantity)); err != nil {
		return err
	}
	log.Error().Str("symbol", pair.Symbol).Str("qty", exch.Quantity.String()).Msg("reconcile: orphan exchange exposure, emergency position created")
	r.notifier.Notify(ctx, "orphan exchange exposure",
		fmt.Sprintf("%s: emergency position created, qty=%s, entry price unknown", pair.Symbol, exch.Quantity), true)
	return nil
}

// handleBothPresent covers (L present, E present): aligns local quantity to
// the exchange's when they differ by more than one unit at the pair's
// quantity precision.
func (r *Reconciler) handleBothPresent(pair domain.TradingPair, local *domain.Position, exch *exchange.ExchangePosition) error {
	tolerance := decimal.New(1, -pair.QuantityPrecision)
	diff := local.Quantity.Sub(exch.Quantity).Abs()
	if diff.LessThanOrEqual(tolerance) {
		return nil
	}
	previous := local.Quantity
	local.Quantity = exch.Quantity
	if err := r.repo.SavePosition(local); err != nil {
		return fmt.Errorf("aligning position quantity: %w", err)
	}
	r.countFix()
	return r.emit(local.ID, pair.Symbol, domain.EventReconciliation, decimal.Zero,
		fmt.Sprintf("quantity mismatch beyond tolerance, aligned local to exchange: %s -> %s", previous, exch.Quantity))
}

func (r *Reconciler) countFix() {
	if r.obs != nil {
		r.obs.ReconciliationFixesTotal.Inc()
	}
}

func (r *Reconciler) emit(positionID, symbol string, typ domain.RiskEventType, price decimal.Decimal, message string) error {
	id := positionID
	event := &domain.RiskEvent{PositionID: &id, Symbol: symbol, Type: typ, TriggerPrice: price, Message: message, At: time.Now().UTC()}
	if r.obs != nil {
		r.obs.RiskEventsTotal.WithLabelValues(string(typ)).Inc()
	}
	return r.repo.SaveRiskEvent(event)
}
