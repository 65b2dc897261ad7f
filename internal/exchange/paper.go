package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

// PaperGateway simulates fills with configurable slippage, grounded on the
// same "pay slightly more on buy, receive slightly less on sell" model
// the original paper-trading executor used, generalized to arbitrary spot
// symbols instead of a single price range.
type PaperGateway struct {
	mu          sync.Mutex
	slippageBps int64
	feeRate     decimal.Decimal

	lastPrice map[string]decimal.Decimal // seeded/updated by feeders for realistic fills
	balances  map[string]decimal.Decimal
	orders    map[string]OrderResult
}

func NewPaperGateway(slippageBps int64, startingQuote decimal.Decimal, quoteAsset string) *PaperGateway {
	return &PaperGateway{
		slippageBps: slippageBps,
		feeRate:     decimal.NewFromFloat(0.001),
		lastPrice:   make(map[string]decimal.Decimal),
		balances:    map[string]decimal.Decimal{quoteAsset: startingQuote},
		orders:      make(map[string]OrderResult),
	}
}

// SeedPrice lets the market data feeder keep the paper book realistic.
func (p *PaperGateway) SeedPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrice[symbol] = price
}

func (p *PaperGateway) PlaceOrder(_ context.Context, req OrderRequest) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	refPrice := req.Price
	if refPrice.IsZero() {
		refPrice = p.lastPrice[req.Symbol]
	}
	if refPrice.IsZero() {
		return OrderResult{}, fmt.Errorf("exchange: paper gateway has no reference price for %s", req.Symbol)
	}

	slippage := decimal.NewFromInt(p.slippageBps).Div(decimal.NewFromInt(10000))
	fillPrice := refPrice
	if req.Side == domain.Buy {
		fillPrice = refPrice.Mul(decimal.NewFromInt(1).Add(slippage))
	} else {
		fillPrice = refPrice.Mul(decimal.NewFromInt(1).Sub(slippage))
	}

	id := uuid.New().String()
	result := OrderResult{
		ExchangeOrderID: id,
		ClientOrderID:   id,
		Status:          domain.OrderFilled,
		FilledQuantity:  req.Quantity,
		AvgFillPrice:    fillPrice,
		Commission:      fillPrice.Mul(req.Quantity).Mul(p.feeRate),
		UpdatedAt:       time.Now().UTC(),
	}
	p.orders[id] = result

	log.Info().
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Str("fill_price", fillPrice.StringFixed(8)).
		Str("qty", req.Quantity.StringFixed(8)).
		Msg("paper order filled")

	return result, nil
}

func (p *PaperGateway) CancelOrder(_ context.Context, _ string, exchangeOrderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.orders[exchangeOrderID]
	if !ok {
		return fmt.Errorf("exchange: unknown order %s", exchangeOrderID)
	}
	r.Status = domain.OrderCanceled
	p.orders[exchangeOrderID] = r
	return nil
}

func (p *PaperGateway) GetOrderStatus(_ context.Context, _ string, exchangeOrderID string) (OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.orders[exchangeOrderID]
	if !ok {
		return OrderResult{}, fmt.Errorf("exchange: unknown order %s", exchangeOrderID)
	}
	return r, nil
}

func (p *PaperGateway) GetTicker(_ context.Context, symbol string) (domain.MarketSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.lastPrice[symbol]
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("exchange: no price seeded for %s", symbol)
	}
	return domain.MarketSnapshot{Symbol: symbol, LastPrice: price, BestBid: price, BestAsk: price, At: time.Now().UTC()}, nil
}

func (p *PaperGateway) GetBalances(_ context.Context) ([]Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Balance, 0, len(p.balances))
	for asset, free := range p.balances {
		out = append(out, Balance{Asset: asset, Free: free})
	}
	return out, nil
}

func (p *PaperGateway) GetServerTime(_ context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

func (p *PaperGateway) GetOpenOrders(_ context.Context, symbol string) ([]OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []OrderResult
	for _, r := range p.orders {
		if r.Status == domain.OrderNew || r.Status == domain.OrderPartiallyFilled {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetExchangePosition always reports no exposure: the paper gateway never
// holds a balance the control plane didn't create through PlaceOrder, so
// reconciliation against it is a no-op by construction in paper mode.
func (p *PaperGateway) GetExchangePosition(_ context.Context, _ domain.TradingPair, _ decimal.Decimal) (*ExchangePosition, error) {
	return nil, nil
}
