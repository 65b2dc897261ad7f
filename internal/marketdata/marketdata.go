// Package marketdata supplies the current ticker and a bounded candle
// history per symbol, and fans out MarketDataEvent to subscribers (the risk
// monitor's event-driven path). The ticker cache generalizes the control
// plane's original single sync.RWMutex-guarded map into a sync.Map for
// lock-free reads, per the concurrency model's "last-ticker map is a
// concurrent key-value store with lock-free reads" requirement.
package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/exchange"
)

// Event is emitted to subscribers on every ticker update.
type Event struct {
	Symbol  string
	Snapshot domain.MarketSnapshot
}

// Candle is a single OHLCV bar, retained in a bounded ring per symbol for
// strategies that need short history (e.g. SMA crossover).
type Candle struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Service polls the gateway for tickers at a fixed interval, maintains a
// concurrent last-ticker cache and a bounded candle history, and publishes
// Event to subscribers.
type Service struct {
	gateway  exchange.Gateway
	interval time.Duration
	maxBars  int

	tickers sync.Map // symbol -> domain.MarketSnapshot

	mu      sync.Mutex
	history map[string][]Candle

	subMu sync.Mutex
	subs  []chan Event
}

func NewService(gateway exchange.Gateway, pollInterval time.Duration, maxBars int) *Service {
	return &Service{
		gateway:  gateway,
		interval: pollInterval,
		maxBars:  maxBars,
		history:  make(map[string][]Candle),
	}
}

// Subscribe returns a channel of Event for every ticker update across all
// symbols. The channel is buffered; slow subscribers drop events rather than
// blocking the poll loop.
func (s *Service) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	s.subMu.Lock()
	s.subs = append(s.subs, ch)
	s.subMu.Unlock()
	return ch
}

// Run polls every configured symbol at the fixed interval until ctx is
// canceled.
func (s *Service) Run(ctx context.Context, symbols []string) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, sym := range symbols {
				s.poll(ctx, sym)
			}
		}
	}
}

func (s *Service) poll(ctx context.Context, symbol string) {
	snap, err := s.gateway.GetTicker(ctx, symbol)
	if err != nil {
		return
	}
	s.tickers.Store(symbol, snap)
	s.appendCandle(symbol, snap)
	s.publish(Event{Symbol: symbol, Snapshot: snap})
}

func (s *Service) appendCandle(symbol string, snap domain.MarketSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.history[symbol]
	bars = append(bars, Candle{OpenTime: snap.At, Open: snap.LastPrice, High: snap.LastPrice, Low: snap.LastPrice, Close: snap.LastPrice, Volume: snap.Volume24h})
	if len(bars) > s.maxBars {
		bars = bars[len(bars)-s.maxBars:]
	}
	s.history[symbol] = bars
}

func (s *Service) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Ticker returns the cached snapshot for a symbol, the age of that
// snapshot, and whether one exists at all.
func (s *Service) Ticker(symbol string) (domain.MarketSnapshot, time.Duration, bool) {
	v, ok := s.tickers.Load(symbol)
	if !ok {
		return domain.MarketSnapshot{}, 0, false
	}
	snap := v.(domain.MarketSnapshot)
	return snap, time.Since(snap.At), true
}

// History returns up to maxBars most-recent candles for symbol.
func (s *Service) History(symbol string) []Candle {
	s.mu.Lock()
	defer s.mu.Unlock()
	bars := s.history[symbol]
	out := make([]Candle, len(bars))
	copy(out, bars)
	return out
}

// FreshTicker fetches a ticker directly from the gateway, bypassing the
// cache; used whenever the caller needs a guaranteed-current price (e.g.
// closing a position at market).
func (s *Service) FreshTicker(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	snap, err := s.gateway.GetTicker(ctx, symbol)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	s.tickers.Store(symbol, snap)
	return snap, nil
}
