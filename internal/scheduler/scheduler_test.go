package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/strategy"
)

// fakeTickerGateway fills every GetTicker call with a fixed price; the rest
// of exchange.Gateway is unused by marketdata.Service in this test.
type fakeTickerGateway struct {
	price decimal.Decimal
}

func (g *fakeTickerGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (g *fakeTickerGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	return nil
}
func (g *fakeTickerGateway) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (g *fakeTickerGateway) GetTicker(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{Symbol: symbol, LastPrice: g.price, At: time.Now().UTC()}, nil
}
func (g *fakeTickerGateway) GetBalances(ctx context.Context) ([]exchange.Balance, error) {
	return nil, nil
}
func (g *fakeTickerGateway) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}
func (g *fakeTickerGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	return nil, nil
}
func (g *fakeTickerGateway) GetExchangePosition(ctx context.Context, pair domain.TradingPair, dustThreshold decimal.Decimal) (*exchange.ExchangePosition, error) {
	return nil, nil
}

type mockPositions struct {
	mu      sync.Mutex
	opened  []string
	active  map[string]*domain.Position
}

func newMockPositions() *mockPositions {
	return &mockPositions{active: make(map[string]*domain.Position)}
}

func (m *mockPositions) GetActive(symbol string) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[symbol], nil
}

func (m *mockPositions) Open(ctx context.Context, pair domain.TradingPair, side domain.Side, entryPrice decimal.Decimal) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = append(m.opened, pair.Symbol)
	pos := &domain.Position{Symbol: pair.Symbol, Side: side, EntryPrice: entryPrice, Active: true}
	m.active[pair.Symbol] = pos
	return pos, nil
}

func (m *mockPositions) Close(ctx context.Context, symbol string, exitPrice decimal.Decimal, reason domain.CloseReason) (*domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, symbol)
	return &domain.Position{Symbol: symbol}, nil
}

type mockConfigSource struct {
	configs []domain.StrategyConfig
	pairs   map[string]*domain.TradingPair
}

func (c *mockConfigSource) ActiveConfigs() ([]domain.StrategyConfig, error) { return c.configs, nil }
func (c *mockConfigSource) TradingPair(symbol string) (*domain.TradingPair, error) {
	return c.pairs[symbol], nil
}

type mockNotifier struct {
	mu    sync.Mutex
	faults []string
}

func (n *mockNotifier) Notify(ctx context.Context, subject, message string, critical bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.faults = append(n.faults, subject+": "+message)
}

// panicStrategy always panics on Evaluate, simulating a broken strategy
// implementation.
type panicStrategy struct {
	strategy.BaseStrategy
}

func (p panicStrategy) Evaluate(market strategy.MarketContext) strategy.Signal {
	panic("boom")
}

func buildMarket(t *testing.T, price decimal.Decimal, symbols ...string) *marketdata.Service {
	t.Helper()
	gw := &fakeTickerGateway{price: price}
	svc := marketdata.NewService(gw, time.Hour, 100)
	for _, sym := range symbols {
		_, err := svc.FreshTicker(context.Background(), sym)
		require.NoError(t, err)
	}
	return svc
}

func TestScheduler_PanicInOneSymbolDoesNotAbortSweep(t *testing.T) {
	registry := strategy.NewRegistry()
	registry.Register(panicStrategy{BaseStrategy: strategy.NewBaseStrategy("PANIC", 0)})
	registry.Register(strategy.NewSMACrossover())

	positions := newMockPositions()
	configs := &mockConfigSource{
		configs: []domain.StrategyConfig{
			{Symbol: "BTCUSDT", StrategyName: "PANIC", Active: true},
			{Symbol: "ETHUSDT", StrategyName: "SMA_CROSSOVER", Active: true, Params: map[string]string{"short": "3", "long": "5"}},
		},
		pairs: map[string]*domain.TradingPair{
			"BTCUSDT": {Symbol: "BTCUSDT", Kind: domain.Spot},
			"ETHUSDT": {Symbol: "ETHUSDT", Kind: domain.Spot},
		},
	}
	market := buildMarket(t, decimal.NewFromInt(100), "BTCUSDT", "ETHUSDT")
	notifier := &mockNotifier{}

	sched := New(time.Minute, registry, positions, configs, market, notifier)

	assert.NotPanics(t, func() {
		sched.runCycle(context.Background())
	}, "a panicking strategy for one symbol must not crash the whole sweep")
}

func TestScheduler_UnknownStrategySkipsSymbolWithoutFault(t *testing.T) {
	registry := strategy.NewRegistry()
	positions := newMockPositions()
	configs := &mockConfigSource{
		configs: []domain.StrategyConfig{{Symbol: "BTCUSDT", StrategyName: "NOPE", Active: true}},
		pairs:   map[string]*domain.TradingPair{"BTCUSDT": {Symbol: "BTCUSDT", Kind: domain.Spot}},
	}
	market := buildMarket(t, decimal.NewFromInt(100), "BTCUSDT")
	notifier := &mockNotifier{}

	sched := New(time.Minute, registry, positions, configs, market, notifier)
	sched.runCycle(context.Background())

	active, err := positions.GetActive("BTCUSDT")
	require.NoError(t, err)
	assert.Nil(t, active)
	assert.Empty(t, notifier.faults, "an unknown strategy is a config problem, not a runtime fault to notify on")
}

func TestScheduler_NoSignalLeavesActivePositionUntouched(t *testing.T) {
	registry := strategy.NewRegistry()
	registry.Register(strategy.NewSMACrossover())
	positions := newMockPositions()
	positions.active["BTCUSDT"] = &domain.Position{Symbol: "BTCUSDT", Side: domain.Buy, Active: true}

	configs := &mockConfigSource{
		configs: []domain.StrategyConfig{{Symbol: "BTCUSDT", StrategyName: "SMA_CROSSOVER", Active: true, Params: map[string]string{"short": "3", "long": "5"}}},
		pairs:   map[string]*domain.TradingPair{"BTCUSDT": {Symbol: "BTCUSDT", Kind: domain.Spot}},
	}
	market := buildMarket(t, decimal.NewFromInt(100), "BTCUSDT")
	notifier := &mockNotifier{}

	sched := New(time.Minute, registry, positions, configs, market, notifier)
	sched.runSymbol(context.Background(), configs.configs[0])

	// SMA crossover with flat/empty history returns DirectionNone, which is
	// never "opposite" — the active Buy position must remain untouched.
	active, err := positions.GetActive("BTCUSDT")
	require.NoError(t, err)
	assert.NotNil(t, active)
}
