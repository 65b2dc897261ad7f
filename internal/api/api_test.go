package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/metricsvc"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/strategy"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/tradeerr"
)

type stubCloser struct {
	closedSymbol string
	err          error
}

func (c *stubCloser) Close(ctx context.Context, symbol string, exitPrice decimal.Decimal, reason domain.CloseReason) (*domain.Position, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.closedSymbol = symbol
	return &domain.Position{Symbol: symbol, Active: false, CloseReason: reason}, nil
}

type noopGateway struct{}

func (noopGateway) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (noopGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error { return nil }
func (noopGateway) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (noopGateway) GetTicker(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	return domain.MarketSnapshot{Symbol: symbol, LastPrice: decimal.NewFromInt(100), At: time.Now().UTC()}, nil
}
func (noopGateway) GetBalances(ctx context.Context) ([]exchange.Balance, error) { return nil, nil }
func (noopGateway) GetServerTime(ctx context.Context) (time.Time, error)        { return time.Now().UTC(), nil }
func (noopGateway) GetOpenOrders(ctx context.Context, symbol string) ([]exchange.OrderResult, error) {
	return nil, nil
}
func (noopGateway) GetExchangePosition(ctx context.Context, pair domain.TradingPair, dustThreshold decimal.Decimal) (*exchange.ExchangePosition, error) {
	return nil, nil
}

func newTestServer(t *testing.T, closer PositionCloser) (*Server, *storage.Repository) {
	t.Helper()
	repo, err := storage.Open("sqlite", ":memory:")
	require.NoError(t, err)
	market := marketdata.NewService(noopGateway{}, time.Hour, 10)
	registry := strategy.NewDefaultRegistry()
	metrics := metricsvc.New(repo, decimal.NewFromInt(10000))
	return NewServer(repo, nil, closer, market, registry, metrics), repo
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, &stubCloser{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/health/status", nil)
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStrategyConfig_UpsertThenListRoundTrip(t *testing.T) {
	s, repo := newTestServer(t, &stubCloser{})

	body, _ := json.Marshal(domain.StrategyConfig{Symbol: "BTCUSDT", StrategyName: "SMA_CROSSOVER", Active: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/config/strategies", bytes.NewReader(body))
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	cfgs, err := repo.ActiveStrategyConfigs()
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "BTCUSDT", cfgs[0].Symbol)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/api/config/strategies/active", nil)
	s.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)
}

func TestStrategyConfig_UnknownStrategyNameIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, &stubCloser{})
	body, _ := json.Marshal(domain.StrategyConfig{Symbol: "BTCUSDT", StrategyName: "NOPE", Active: true})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/config/strategies", bytes.NewReader(body))
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStrategyConfig_DeleteRequiresPairParam(t *testing.T) {
	s, _ := newTestServer(t, &stubCloser{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/config/strategies", nil)
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseActivePosition_MissingSymbolIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t, &stubCloser{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/trading/positions/active", nil)
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCloseActivePosition_Success(t *testing.T) {
	closer := &stubCloser{}
	s, _ := newTestServer(t, closer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/trading/positions/active?symbol=BTCUSDT", nil)
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "BTCUSDT", closer.closedSymbol)
}

func TestWriteError_KindToStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{tradeerr.Validation("bad"), http.StatusBadRequest},
		{tradeerr.Config("bad config"), http.StatusBadRequest},
		{tradeerr.NotFound("missing"), http.StatusNotFound},
		{tradeerr.Invariant("conflict"), http.StatusConflict},
		{tradeerr.Risk("risk"), http.StatusConflict},
		{tradeerr.Exchange("down", nil, true, time.Second), http.StatusBadGateway},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, c.err)
		assert.Equal(t, c.want, rec.Code, "for %v", c.err)
	}
}

func TestCloseActivePosition_PropagatesTradeErrorStatus(t *testing.T) {
	closer := &stubCloser{err: tradeerr.NotFound("no active position")}
	s, _ := newTestServer(t, closer)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/trading/positions/active?symbol=BTCUSDT", nil)
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
