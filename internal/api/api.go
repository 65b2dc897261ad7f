// Package api implements the control plane's admin HTTP surface,
// generalized from bitunixbot's internal/dashboard.RiskDashboard (a
// gorilla/mux router plus JSON/WebSocket handlers) into a plain JSON REST
// API over strategy configuration, trading state and risk metrics — no
// dashboard HTML or WebSocket streaming, per this control plane's scope.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/metricsvc"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/strategy"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/tradeerr"
)

// PositionCloser is the narrow PositionManager slice the admin API needs for
// the manual-close route.
type PositionCloser interface {
	Close(ctx context.Context, symbol string, exitPrice decimal.Decimal, reason domain.CloseReason) (*domain.Position, error)
}

// Server wires the admin HTTP API's dependencies and exposes an http.Handler.
type Server struct {
	repo     *storage.Repository
	cache    *storage.ConfigCache
	closer   PositionCloser
	market   *marketdata.Service
	registry *strategy.Registry
	metrics  *metricsvc.Service
	router   *mux.Router
}

func NewServer(repo *storage.Repository, cache *storage.ConfigCache, closer PositionCloser, market *marketdata.Service, registry *strategy.Registry, metrics *metricsvc.Service) *Server {
	s := &Server{repo: repo, cache: cache, closer: closer, market: market, registry: registry, metrics: metrics}
	s.router = mux.NewRouter()
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/api/health/status", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/config/strategies", s.handleListStrategyNames).Methods(http.MethodGet)
	s.router.HandleFunc("/api/config/strategies", s.handleUpsertStrategyConfig).Methods(http.MethodPost)
	s.router.HandleFunc("/api/config/strategies", s.handleDeleteStrategyConfig).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/config/strategies/active", s.handleActiveStrategyConfigs).Methods(http.MethodGet)
	s.router.HandleFunc("/api/trading/positions/active", s.handleActivePositions).Methods(http.MethodGet)
	s.router.HandleFunc("/api/trading/positions/active", s.handleCloseActivePosition).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/trading/positions/history", s.handlePositionHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/trading/trades/history", s.handleTradeHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/risk/metrics", s.handleRiskMetrics).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// --- health ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

// --- strategy config ---

func (s *Server) handleListStrategyNames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"strategies": s.registry.Names()})
}

func (s *Server) handleUpsertStrategyConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, tradeerr.Validation("malformed request body: "+err.Error()))
		return
	}
	if cfg.Symbol == "" {
		writeError(w, tradeerr.Validation("symbol is required"))
		return
	}
	if _, err := s.registry.Resolve(cfg.StrategyName); err != nil {
		writeError(w, tradeerr.Config("unknown strategy name "+cfg.StrategyName))
		return
	}
	if err := s.repo.UpsertStrategyConfig(&cfg); err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "persisting strategy config failed", err))
		return
	}
	if s.cache != nil {
		if err := s.cache.Put(cfg); err != nil {
			log.Warn().Err(err).Str("symbol", cfg.Symbol).Msg("failed to refresh config cache entry")
		}
	}
	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleActiveStrategyConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.repo.ActiveStrategyConfigs()
	if err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "loading active strategy configs failed", err))
		return
	}
	writeJSON(w, http.StatusOK, configs)
}

func (s *Server) handleDeleteStrategyConfig(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("pair")
	if symbol == "" {
		writeError(w, tradeerr.Validation("pair query parameter is required"))
		return
	}
	if err := s.repo.DeleteStrategyConfig(symbol); err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "deleting strategy config failed", err))
		return
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(symbol); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("failed to invalidate config cache entry")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- positions ---

// PositionView is the JSON projection of domain.Position returned by the
// trading-state routes.
type PositionView struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Side            domain.Side     `json:"side"`
	Quantity        decimal.Decimal `json:"quantity"`
	EntryPrice      decimal.Decimal `json:"entryPrice"`
	StopLossPrice   decimal.Decimal `json:"stopLossPrice"`
	TakeProfitPrice decimal.Decimal `json:"takeProfitPrice"`
	Active          bool            `json:"active"`
	OpenedAt        time.Time       `json:"openedAt"`
	ClosedAt        *time.Time      `json:"closedAt,omitempty"`
	Pnl             decimal.Decimal `json:"pnl,omitempty"`
	CloseReason     domain.CloseReason `json:"closeReason,omitempty"`
}

func toPositionView(p domain.Position) PositionView {
	return PositionView{
		ID: p.ID, Symbol: p.Symbol, Side: p.Side, Quantity: p.Quantity,
		EntryPrice: p.EntryPrice, StopLossPrice: p.StopLossPrice, TakeProfitPrice: p.TakeProfitPrice,
		Active: p.Active, OpenedAt: p.OpenedAt, ClosedAt: p.ClosedAt, Pnl: p.Pnl, CloseReason: p.CloseReason,
	}
}

func (s *Server) handleActivePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.repo.ListActivePositions()
	if err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "loading active positions failed", err))
		return
	}
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePositionHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	positions, err := s.repo.PositionHistory(symbol)
	if err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "loading position history failed", err))
		return
	}
	views := make([]PositionView, 0, len(positions))
	for _, p := range positions {
		views = append(views, toPositionView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleCloseActivePosition(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, tradeerr.Validation("symbol query parameter is required"))
		return
	}

	snap, _, ok := s.market.Ticker(symbol)
	if !ok {
		fresh, err := s.market.FreshTicker(r.Context(), symbol)
		if err != nil {
			writeError(w, tradeerr.Exchange("fetching current price for manual close failed", err, true, 2*time.Second))
			return
		}
		snap = fresh
	}

	if _, err := s.closer.Close(r.Context(), symbol, snap.LastPrice, domain.ReasonManual); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- trades ---

// TradeView is the JSON projection of domain.Trade.
type TradeView struct {
	ExchangeTradeID string             `json:"exchangeTradeId"`
	Symbol          string             `json:"symbol"`
	Side            domain.Side        `json:"side"`
	Type            domain.OrderType   `json:"type"`
	Status          domain.OrderStatus `json:"status"`
	Price           decimal.Decimal    `json:"price"`
	Quantity        decimal.Decimal    `json:"quantity"`
	Commission      decimal.Decimal    `json:"commission"`
	ExecutedAt      time.Time          `json:"executedAt"`
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	trades, err := s.repo.TradeHistory(symbol)
	if err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "loading trade history failed", err))
		return
	}
	views := make([]TradeView, 0, len(trades))
	for _, t := range trades {
		views = append(views, TradeView{
			ExchangeTradeID: t.ExchangeTradeID, Symbol: t.Symbol, Side: t.Side, Type: t.Type, Status: t.Status,
			Price: t.Price, Quantity: t.Quantity, Commission: t.Commission, ExecutedAt: t.ExecutedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// --- risk metrics ---

func (s *Server) handleRiskMetrics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Compute()
	if err != nil {
		writeError(w, tradeerr.Wrap(tradeerr.KindInvariant, "computing risk metrics failed", err))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("api: failed to encode JSON response")
	}
}

// errorResponse is the structured body every failed admin API call returns.
type errorResponse struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	Retryable     *bool  `json:"retryable,omitempty"`
	RetryAfterSec *int   `json:"retryAfterSec,omitempty"`
}

// writeError maps a tradeerr.TradeError's Kind to the HTTP status per the
// control plane's error handling design, falling back to 500 for anything
// unrecognized (e.g. a bare gorm/driver error).
func writeError(w http.ResponseWriter, err error) {
	var te *tradeerr.TradeError
	if !tradeerr.As(err, &te) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "InternalError", Message: err.Error()})
		return
	}

	status := http.StatusInternalServerError
	switch te.Kind {
	case tradeerr.KindValidation, tradeerr.KindConfig:
		status = http.StatusBadRequest
	case tradeerr.KindNotFound:
		status = http.StatusNotFound
	case tradeerr.KindInvariant:
		status = http.StatusConflict
	case tradeerr.KindRisk:
		status = http.StatusConflict
	case tradeerr.KindExchange:
		status = http.StatusBadGateway
	}

	resp := errorResponse{Code: string(te.Kind), Message: te.Message}
	if te.Retryable {
		t := true
		resp.Retryable = &t
		sec := int(te.RetryAfter / time.Second)
		resp.RetryAfterSec = &sec
	}
	writeJSON(w, status, resp)
}
