// Package configstore adapts internal/config.Config and internal/storage's
// persisted strategy_configs/trading_pairs tables into the narrow
// ConfigLookup/ConfigSource interfaces internal/position and
// internal/scheduler declare on their own (leaf) side, the same
// cyclic-dependency-avoidance idiom used throughout this codebase.
package configstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/config"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
)

// Adapter composes the static config file with the persisted, admin-editable
// strategy_configs/trading_pairs tables. When a ConfigCache is supplied,
// ActiveConfigs reads through it instead of hitting the SQL store on every
// scheduler cycle.
type Adapter struct {
	cfg   *config.Config
	repo  *storage.Repository
	cache *storage.ConfigCache
}

func New(cfg *config.Config, repo *storage.Repository, cache *storage.ConfigCache) *Adapter {
	return &Adapter{cfg: cfg, repo: repo, cache: cache}
}

// --- internal/position.ConfigLookup ---

func (a *Adapter) IsSymbolActive(symbol string) bool {
	if a.cache != nil {
		if cfg, ok := a.cache.Get(symbol); ok {
			return cfg.Active
		}
	}
	sc, err := a.repo.StrategyConfig(symbol)
	return err == nil && sc != nil && sc.Active
}

func (a *Adapter) RiskParamsFor(symbol string) (sl, tp, trailing decimal.Decimal) {
	return a.cfg.RiskParamsFor(symbol)
}

func (a *Adapter) PositionNotional() decimal.Decimal {
	return a.cfg.PositionNotional
}

func (a *Adapter) MaxHoldingDuration() time.Duration {
	return a.cfg.MaxHoldingDuration
}

func (a *Adapter) MaxConcurrentPositions() int {
	return a.cfg.MaxConcurrentPositions
}

// --- internal/scheduler.ConfigSource ---

func (a *Adapter) ActiveConfigs() ([]domain.StrategyConfig, error) {
	if a.cache != nil {
		if configs, err := a.cache.Active(); err == nil {
			return configs, nil
		}
	}
	return a.repo.ActiveStrategyConfigs()
}

func (a *Adapter) TradingPair(symbol string) (*domain.TradingPair, error) {
	return a.repo.TradingPair(symbol)
}
