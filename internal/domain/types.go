package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DOMAIN TYPES - Shared across position/risk/scheduler/reconcile to avoid cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is the direction of a position or order.
type Side string

const (
	Buy  Side = "Buy"
	Sell Side = "Sell"
)

func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// PairKind distinguishes spot markets from derivative markets.
type PairKind string

const (
	Spot         PairKind = "Spot"
	PerpFutures  PairKind = "PerpFutures"
	DatedFutures PairKind = "DatedFutures"
)

// OrderType is the canonical order type understood by ExchangeGateway.
type OrderType string

const (
	Market OrderType = "Market"
	Limit  OrderType = "Limit"
)

// OrderStatus is the canonical order status normalized by exchange adapters.
type OrderStatus string

const (
	OrderNew             OrderStatus = "New"
	OrderPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderFilled          OrderStatus = "Filled"
	OrderCanceled        OrderStatus = "Canceled"
	OrderRejected        OrderStatus = "Rejected"
	OrderExpired         OrderStatus = "Expired"
)

// CloseReason records why a Position was closed.
type CloseReason string

const (
	ReasonStrategySignal CloseReason = "StrategySignal"
	ReasonStopLoss       CloseReason = "StopLoss"
	ReasonTakeProfit     CloseReason = "TakeProfit"
	ReasonTimeLimit      CloseReason = "TimeLimit"
	ReasonManual         CloseReason = "Manual"
	ReasonExternalClose  CloseReason = "ExternalClose"
	ReasonEmergencyStop  CloseReason = "EmergencyStop"
)

// TradingPair describes a tradable market. Immutable after load except Active.
type TradingPair struct {
	Symbol            string `gorm:"primaryKey"`
	BaseAsset         string
	QuoteAsset        string
	PricePrecision    int32
	QuantityPrecision int32
	MinOrderSize      decimal.Decimal `gorm:"type:numeric"`
	Active            bool
	Kind              PairKind
}

// Position is the sole unit of exposure tracked by PositionManager.
//
// Invariants (enforced by internal/position, not by this struct alone):
//   - at most one Active position per Symbol at any instant
//   - EntryPrice > 0 and Quantity > 0 while Active (except emergency positions
//     created by internal/reconcile for orphan exchange exposure, whose
//     EntryPrice is zero)
//   - Active == (ClosedAt == nil && !PnlSet)
//   - ForceCloseAt == OpenedAt + max holding duration
//
// StopLossPrice, TakeProfitPrice, TrailingStopPct and HighWatermark use
// decimal.Zero to mean "unset" rather than a pointer, matching how the rest
// of the money-math types in this codebase represent optional amounts. Pnl
// is "unset" while PnlSet is false, so a zero Pnl with PnlSet true is a
// realized PnL of exactly zero.
type Position struct {
	ID              string `gorm:"primaryKey"`
	Symbol          string `gorm:"index"`
	Side            Side
	Quantity        decimal.Decimal `gorm:"type:numeric"`
	EntryPrice      decimal.Decimal `gorm:"type:numeric"`
	StopLossPrice   decimal.Decimal `gorm:"type:numeric"`
	TakeProfitPrice decimal.Decimal `gorm:"type:numeric"`
	TrailingStopPct decimal.Decimal `gorm:"type:numeric"`
	HighWatermark   decimal.Decimal `gorm:"type:numeric"`
	Active          bool            `gorm:"index"`
	OpenedAt        time.Time
	ClosedAt        *time.Time
	ForceCloseAt    time.Time
	Pnl             decimal.Decimal `gorm:"type:numeric"`
	PnlSet          bool
	CloseReason     CloseReason
	CloseInProgress bool `gorm:"-"`
}

// Trade is an immutable record of an exchange fill.
type Trade struct {
	ExchangeTradeID string `gorm:"primaryKey"`
	Symbol          string `gorm:"index"`
	Side            Side
	Type            OrderType
	Status          OrderStatus
	Price           decimal.Decimal `gorm:"type:numeric"`
	Quantity        decimal.Decimal `gorm:"type:numeric"`
	Commission      decimal.Decimal `gorm:"type:numeric"`
	ExecutedAt      time.Time
}

// StrategyConfig is the admin-controlled per-symbol strategy binding, consumed
// read-only by StrategyScheduler.
type StrategyConfig struct {
	Symbol       string            `gorm:"primaryKey"`
	StrategyName string
	Active       bool
	Params       map[string]string `gorm:"serializer:json"`
}

// RiskEventType enumerates the kinds of audit events RiskMonitor/StateReconciler
// emit.
type RiskEventType string

const (
	EventPositionOpened      RiskEventType = "PositionOpened"
	EventPositionClosed      RiskEventType = "PositionClosed"
	EventStopLossTriggered   RiskEventType = "StopLossTriggered"
	EventTakeProfitTriggered RiskEventType = "TakeProfitTriggered"
	EventTrailingStopUpdated RiskEventType = "TrailingStopUpdated"
	EventTimeLimitTriggered  RiskEventType = "TimeLimitTriggered"
	EventReconciliation      RiskEventType = "Reconciliation"
	EventEmergencyExposure   RiskEventType = "EmergencyExposure"
	EventCircuitBreaker      RiskEventType = "CircuitBreaker"
)

// RiskEvent is an append-only audit record. PositionID is a nullable foreign
// key, never an owning reference.
type RiskEvent struct {
	ID           uint `gorm:"primaryKey;autoIncrement"`
	PositionID   *string
	Symbol       string
	Type         RiskEventType
	TriggerPrice decimal.Decimal `gorm:"type:numeric"`
	Message      string
	At           time.Time
}

// MarketSnapshot is the latest ticker summary for a symbol.
type MarketSnapshot struct {
	Symbol         string
	LastPrice      decimal.Decimal
	BestBid        decimal.Decimal
	BestAsk        decimal.Decimal
	Volume24h      decimal.Decimal
	QuoteVolume24h decimal.Decimal
	ChangePct24h   decimal.Decimal
	At             time.Time
}
