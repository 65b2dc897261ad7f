package position

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/tradeerr"
)

// stubGateway fills every order at a fixed price unless forced to error.
type stubGateway struct {
	fillPrice decimal.Decimal
	failNext  bool
}

func (g *stubGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	if g.failNext {
		g.failNext = false
		return exchange.OrderResult{}, assert.AnError
	}
	return exchange.OrderResult{
		ExchangeOrderID: "x1",
		Status:          domain.OrderFilled,
		FilledQuantity:  req.Quantity,
		AvgFillPrice:    g.fillPrice,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

func (g *stubGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return nil
}

func (g *stubGateway) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}

func (g *stubGateway) GetTicker(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{Symbol: symbol, LastPrice: g.fillPrice}, nil
}

func (g *stubGateway) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	return nil, nil
}

func (g *stubGateway) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

func (g *stubGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	return nil, nil
}

func (g *stubGateway) GetExchangePosition(ctx context.Context, pair domain.TradingPair, dustThreshold decimal.Decimal) (*exchange.ExchangePosition, error) {
	return nil, nil
}

// stubConfig is a fixed ConfigLookup for one always-active symbol.
type stubConfig struct {
	active   bool
	maxConc  int
	notional decimal.Decimal
}

func (c *stubConfig) IsSymbolActive(symbol string) bool { return c.active }
func (c *stubConfig) RiskParamsFor(symbol string) (sl, tp, trailing decimal.Decimal) {
	return dec("0.015"), dec("0.03"), dec("0.01")
}
func (c *stubConfig) PositionNotional() decimal.Decimal   { return c.notional }
func (c *stubConfig) MaxHoldingDuration() time.Duration   { return time.Hour }
func (c *stubConfig) MaxConcurrentPositions() int         { return c.maxConc }

// stubBreaker reports a fixed tripped state.
type stubBreaker struct {
	tripped bool
}

func (b *stubBreaker) Tripped() (bool, string) {
	if b.tripped {
		return true, "max daily loss threshold breached"
	}
	return false, ""
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	return repo
}

func testPair(symbol string, kind domain.PairKind) domain.TradingPair {
	return domain.TradingPair{
		Symbol:            symbol,
		BaseAsset:         "BTC",
		QuoteAsset:        "USDT",
		PricePrecision:    2,
		QuantityPrecision: 6,
		MinOrderSize:      dec("0.0001"),
		Active:            true,
		Kind:              kind,
	}
}

func TestManager_Open_SingleActivePositionInvariant(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	pair := testPair("BTCUSDT", domain.Spot)
	_, err := mgr.Open(context.Background(), pair, domain.Buy, dec("100"))
	require.NoError(t, err)

	_, err = mgr.Open(context.Background(), pair, domain.Buy, dec("100"))
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindInvariant))
}

func TestManager_Open_RefusedWhenBreakerTripped(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{tripped: true})

	pair := testPair("BTCUSDT", domain.Spot)
	_, err := mgr.Open(context.Background(), pair, domain.Buy, dec("100"))
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindRisk))
}

func TestManager_Open_RefusesShortOnSpot(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	pair := testPair("BTCUSDT", domain.Spot)
	_, err := mgr.Open(context.Background(), pair, domain.Sell, dec("100"))
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindConfig))
}

func TestManager_Open_RefusesWhenConfigInactive(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: false, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	pair := testPair("BTCUSDT", domain.Spot)
	_, err := mgr.Open(context.Background(), pair, domain.Buy, dec("100"))
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindConfig))
}

func TestManager_CloseThenReopen_PnlRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	pair := testPair("BTCUSDT", domain.Spot)
	opened, err := mgr.Open(context.Background(), pair, domain.Buy, dec("100"))
	require.NoError(t, err)

	gw.fillPrice = dec("103.2")
	closed, err := mgr.Close(context.Background(), pair.Symbol, dec("103.2"), domain.ReasonTakeProfit)
	require.NoError(t, err)
	assert.False(t, closed.Active)
	assert.True(t, closed.PnlSet)
	assert.True(t, closed.Pnl.Equal(opened.Quantity.Mul(dec("3.2"))), "got pnl %s", closed.Pnl)

	active, err := mgr.GetActive(pair.Symbol)
	require.NoError(t, err)
	assert.Nil(t, active, "closed position must no longer be active")

	// Reopening the same symbol after close must succeed.
	gw.fillPrice = dec("105")
	_, err = mgr.Open(context.Background(), pair, domain.Buy, dec("105"))
	require.NoError(t, err)
}

func TestManager_Close_NoActivePositionIsNotFound(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	_, err := mgr.Close(context.Background(), "BTCUSDT", dec("100"), domain.ReasonManual)
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindNotFound))
}

func TestManager_Open_RefusesWhenMaxConcurrentPositionsReached(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 1, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	_, err := mgr.Open(context.Background(), testPair("BTCUSDT", domain.Spot), domain.Buy, dec("100"))
	require.NoError(t, err)

	_, err = mgr.Open(context.Background(), testPair("ETHUSDT", domain.Spot), domain.Buy, dec("100"))
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindRisk))
}

func TestManager_SetEntryPrice_RejectsAlreadySet(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	_, err := mgr.Open(context.Background(), testPair("BTCUSDT", domain.Spot), domain.Buy, dec("100"))
	require.NoError(t, err)

	err = mgr.SetEntryPrice("BTCUSDT", dec("100"), dec("0.015"), dec("0.03"))
	require.Error(t, err)
	assert.True(t, tradeerr.Is(err, tradeerr.KindValidation))
}

func TestManager_UpdateStopLoss_PersistsNewPriceAndWatermark(t *testing.T) {
	repo := newTestRepo(t)
	gw := &stubGateway{fillPrice: dec("100")}
	cfg := &stubConfig{active: true, maxConc: 5, notional: dec("1000")}
	mgr := NewManager(repo, gw, cfg, &stubBreaker{})

	_, err := mgr.Open(context.Background(), testPair("BTCUSDT", domain.Spot), domain.Buy, dec("100"))
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateStopLoss("BTCUSDT", dec("101.97"), dec("103")))

	active, err := mgr.GetActive("BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, active.StopLossPrice.Equal(dec("101.97")))
	assert.True(t, active.HighWatermark.Equal(dec("103")))
}
