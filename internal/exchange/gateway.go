// Package exchange defines the uniform ExchangeGateway contract and ships
// two adapters: a deterministic PaperGateway for simulated trading and a
// RESTGateway for a signed REST venue. Both normalize venue-specific order
// status/side/type strings to the canonical domain enums.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

// OrderRequest is the normalized shape every Gateway.PlaceOrder call accepts.
type OrderRequest struct {
	Symbol   string
	Side     domain.Side
	Type     domain.OrderType
	Quantity decimal.Decimal
	Price    decimal.Decimal // zero for Market orders
}

// OrderResult is the normalized response from PlaceOrder/GetOrderStatus.
type OrderResult struct {
	ExchangeOrderID string
	ClientOrderID   string
	Status          domain.OrderStatus
	FilledQuantity  decimal.Decimal
	AvgFillPrice    decimal.Decimal
	Commission      decimal.Decimal
	UpdatedAt       time.Time
}

// Balance is a single asset's free/locked balance on the exchange.
type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// ExchangePosition is the exchange-side view of exposure used by the
// reconciler, synthesized from balances for spot venues.
type ExchangePosition struct {
	Symbol   string
	Side     domain.Side
	Quantity decimal.Decimal
}

// Gateway is the uniform interface to a spot exchange. Every method is
// blocking I/O; callers are expected to apply their own timeouts via ctx.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error
	GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (OrderResult, error)
	GetTicker(ctx context.Context, symbol string) (domain.MarketSnapshot, error)
	GetBalances(ctx context.Context) ([]Balance, error)
	GetServerTime(ctx context.Context) (time.Time, error)
	GetOpenOrders(ctx context.Context, symbol string) ([]OrderResult, error)
	GetExchangePosition(ctx context.Context, pair domain.TradingPair, dustThreshold decimal.Decimal) (*ExchangePosition, error)
}

// ConnectTimeout and ReadTimeout mirror the control plane's connect/read
// timeout budget.
const (
	ConnectTimeout = 5 * time.Second
	ReadTimeout    = 10 * time.Second
)
