// Package storage is the control plane's persistence layer: a gorm-backed
// Repository over the six tables named by the spec (trading_pairs,
// market_data, positions, trades, risk_events, strategy_configs), adapted
// from the control plane's original dual Postgres/SQLite database package.
package storage

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

// MarketDataRow persists periodic ticker snapshots for later analysis; the
// live path reads through internal/marketdata's in-process cache instead.
type MarketDataRow struct {
	ID        uint `gorm:"primaryKey;autoIncrement"`
	Symbol    string `gorm:"index"`
	LastPrice decimal.Decimal `gorm:"type:numeric"`
	BestBid   decimal.Decimal `gorm:"type:numeric"`
	BestAsk   decimal.Decimal `gorm:"type:numeric"`
	Volume24h decimal.Decimal `gorm:"type:numeric"`
	At        time.Time `gorm:"index"`
}

// Repository is the opaque persistence contract every control-plane
// component depends on.
type Repository struct {
	db *gorm.DB
}

// Open connects to dsn, using the Postgres driver when driver is "postgres"
// or dsn looks like a Postgres connection string, and SQLite otherwise,
// mirroring the control plane's original driver-sniffing New().
func Open(driver, dsn string) (*Repository, error) {
	var db *gorm.DB
	var err error

	switch {
	case driver == "postgres" || strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("storage: connected (postgres)")
	default:
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", dsn).Msg("storage: connected (sqlite)")
	}

	if err := db.AutoMigrate(
		&domain.TradingPair{},
		&MarketDataRow{},
		&domain.Position{},
		&domain.Trade{},
		&domain.RiskEvent{},
		&domain.StrategyConfig{},
	); err != nil {
		return nil, err
	}

	return &Repository{db: db}, nil
}

// --- TradingPair ---

func (r *Repository) UpsertTradingPair(p *domain.TradingPair) error {
	return r.db.Save(p).Error
}

func (r *Repository) TradingPair(symbol string) (*domain.TradingPair, error) {
	var p domain.TradingPair
	err := r.db.First(&p, "symbol = ?", symbol).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ActiveTradingPairs() ([]domain.TradingPair, error) {
	var pairs []domain.TradingPair
	err := r.db.Where("active = ?", true).Find(&pairs).Error
	return pairs, err
}

// --- Position ---

// CreatePosition inserts a new Position row. Fails if one with the same ID
// already exists; callers must not call this while an active position
// exists for the symbol (enforced by internal/position, not here).
func (r *Repository) CreatePosition(p *domain.Position) error {
	return r.db.Create(p).Error
}

func (r *Repository) SavePosition(p *domain.Position) error {
	return r.db.Save(p).Error
}

func (r *Repository) ActivePosition(symbol string) (*domain.Position, error) {
	var p domain.Position
	err := r.db.Where("symbol = ? AND active = ?", symbol, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) ListActivePositions() ([]domain.Position, error) {
	var ps []domain.Position
	err := r.db.Where("active = ?", true).Find(&ps).Error
	return ps, err
}

func (r *Repository) PositionHistory(symbol string) ([]domain.Position, error) {
	q := r.db.Order("opened_at DESC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var ps []domain.Position
	err := q.Find(&ps).Error
	return ps, err
}

// ClosedPositionsAsc returns all closed positions ordered ascending by
// ClosedAt, the walk order MetricsService's equity-curve computation needs.
func (r *Repository) ClosedPositionsAsc() ([]domain.Position, error) {
	var ps []domain.Position
	err := r.db.Where("active = ?", false).Order("closed_at ASC").Find(&ps).Error
	return ps, err
}

// --- Trade ---

func (r *Repository) SaveTrade(t *domain.Trade) error {
	return r.db.Create(t).Error
}

func (r *Repository) TradeHistory(symbol string) ([]domain.Trade, error) {
	q := r.db.Order("executed_at DESC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var ts []domain.Trade
	err := q.Find(&ts).Error
	return ts, err
}

// --- RiskEvent ---

func (r *Repository) SaveRiskEvent(e *domain.RiskEvent) error {
	return r.db.Create(e).Error
}

func (r *Repository) RecentRiskEvents(limit int) ([]domain.RiskEvent, error) {
	var events []domain.RiskEvent
	err := r.db.Order("at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// --- StrategyConfig ---

func (r *Repository) UpsertStrategyConfig(c *domain.StrategyConfig) error {
	return r.db.Save(c).Error
}

func (r *Repository) StrategyConfig(symbol string) (*domain.StrategyConfig, error) {
	var c domain.StrategyConfig
	err := r.db.First(&c, "symbol = ?", symbol).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repository) ActiveStrategyConfigs() ([]domain.StrategyConfig, error) {
	var cs []domain.StrategyConfig
	err := r.db.Where("active = ?", true).Find(&cs).Error
	return cs, err
}

func (r *Repository) AllStrategyConfigs() ([]domain.StrategyConfig, error) {
	var cs []domain.StrategyConfig
	err := r.db.Find(&cs).Error
	return cs, err
}

func (r *Repository) DeleteStrategyConfig(symbol string) error {
	return r.db.Delete(&domain.StrategyConfig{}, "symbol = ?", symbol).Error
}

// --- MarketDataRow ---

func (r *Repository) SaveMarketSnapshot(s domain.MarketSnapshot) error {
	row := MarketDataRow{Symbol: s.Symbol, LastPrice: s.LastPrice, BestBid: s.BestBid, BestAsk: s.BestAsk, Volume24h: s.Volume24h, At: s.At}
	return r.db.Create(&row).Error
}
