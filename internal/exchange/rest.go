package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

// RESTGateway is a signed REST client for a Binance-shaped spot exchange
// API, generalizing the HMAC-signing/retry idiom of the control plane's
// original CLOB client (apiKey/apiSecret header signing, bounded retries,
// connect/read timeouts) to the canonical ExchangeGateway contract instead
// of one venue's order-book protocol.
type RESTGateway struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	recvWindow int
	httpClient *http.Client
	maxRetries int
}

func NewRESTGateway(baseURL, apiKey, apiSecret string, recvWindowMs int) *RESTGateway {
	return &RESTGateway{
		baseURL:    baseURL,
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		recvWindow: recvWindowMs,
		maxRetries: 2,
		httpClient: &http.Client{
			Timeout: ReadTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: ConnectTimeout}).DialContext,
			},
		},
	}
}

func (g *RESTGateway) sign(query url.Values) string {
	mac := hmac.New(sha256.New, []byte(g.apiSecret))
	mac.Write([]byte(query.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *RESTGateway) signedRequest(ctx context.Context, method, path string, query url.Values) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	query.Set("recvWindow", strconv.Itoa(g.recvWindow))
	query.Set("signature", g.sign(query))

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-API-KEY", g.apiKey)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("exchange: rate limited")
			time.Sleep(time.Duration(attempt+1) * 500 * time.Millisecond)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("exchange: server error %d: %s", resp.StatusCode, string(body))
			continue
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("exchange: request rejected %d: %s", resp.StatusCode, string(body))
		}
		return body, nil
	}
	return nil, fmt.Errorf("exchange: exhausted retries: %w", lastErr)
}

func normalizeStatus(raw string) domain.OrderStatus {
	switch raw {
	case "NEW":
		return domain.OrderNew
	case "PARTIALLY_FILLED":
		return domain.OrderPartiallyFilled
	case "FILLED":
		return domain.OrderFilled
	case "CANCELED", "CANCELLED":
		return domain.OrderCanceled
	case "REJECTED":
		return domain.OrderRejected
	case "EXPIRED":
		return domain.OrderExpired
	default:
		return domain.OrderRejected
	}
}

type restOrderResponse struct {
	OrderID           int64  `json:"orderId"`
	ClientOrderID     string `json:"clientOrderId"`
	Status            string `json:"status"`
	ExecutedQty       string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

func (g *RESTGateway) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	q := url.Values{}
	q.Set("symbol", req.Symbol)
	q.Set("side", mapSide(req.Side))
	q.Set("type", mapType(req.Type))
	q.Set("quantity", req.Quantity.String())
	if req.Type == domain.Limit {
		q.Set("price", req.Price.String())
		q.Set("timeInForce", "GTC")
	}
	clientOrderID := uuid.New().String()
	q.Set("newClientOrderId", clientOrderID)

	body, err := g.signedRequest(ctx, http.MethodPost, "/api/v3/order", q)
	if err != nil {
		log.Error().Err(err).Str("symbol", req.Symbol).Msg("exchange place order failed")
		return OrderResult{}, err
	}
	var resp restOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResult{}, fmt.Errorf("exchange: decoding order response: %w", err)
	}
	filled, _ := decimal.NewFromString(resp.ExecutedQty)
	quote, _ := decimal.NewFromString(resp.CummulativeQuoteQty)
	avgPrice := decimal.Zero
	if !filled.IsZero() {
		avgPrice = quote.Div(filled)
	}
	return OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID:   resp.ClientOrderID,
		Status:          normalizeStatus(resp.Status),
		FilledQuantity:  filled,
		AvgFillPrice:    avgPrice,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

func (g *RESTGateway) CancelOrder(ctx context.Context, symbol, exchangeOrderID string) error {
	q := url.Values{"symbol": {symbol}, "orderId": {exchangeOrderID}}
	_, err := g.signedRequest(ctx, http.MethodDelete, "/api/v3/order", q)
	return err
}

func (g *RESTGateway) GetOrderStatus(ctx context.Context, symbol, exchangeOrderID string) (OrderResult, error) {
	q := url.Values{"symbol": {symbol}, "orderId": {exchangeOrderID}}
	body, err := g.signedRequest(ctx, http.MethodGet, "/api/v3/order", q)
	if err != nil {
		return OrderResult{}, err
	}
	var resp restOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return OrderResult{}, err
	}
	filled, _ := decimal.NewFromString(resp.ExecutedQty)
	return OrderResult{
		ExchangeOrderID: strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID:   resp.ClientOrderID,
		Status:          normalizeStatus(resp.Status),
		FilledQuantity:  filled,
		UpdatedAt:       time.Now().UTC(),
	}, nil
}

type restTickerResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	BidPrice           string `json:"bidPrice"`
	AskPrice           string `json:"askPrice"`
	Volume             string `json:"volume"`
	QuoteVolume        string `json:"quoteVolume"`
	PriceChangePercent string `json:"priceChangePercent"`
}

func (g *RESTGateway) GetTicker(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	q := url.Values{"symbol": {symbol}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/v3/ticker/24hr?"+q.Encode(), nil)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}
	var t restTickerResponse
	if err := json.Unmarshal(body, &t); err != nil {
		return domain.MarketSnapshot{}, err
	}
	last, _ := decimal.NewFromString(t.LastPrice)
	bid, _ := decimal.NewFromString(t.BidPrice)
	ask, _ := decimal.NewFromString(t.AskPrice)
	vol, _ := decimal.NewFromString(t.Volume)
	qvol, _ := decimal.NewFromString(t.QuoteVolume)
	chg, _ := decimal.NewFromString(t.PriceChangePercent)
	return domain.MarketSnapshot{
		Symbol: symbol, LastPrice: last, BestBid: bid, BestAsk: ask,
		Volume24h: vol, QuoteVolume24h: qvol, ChangePct24h: chg, At: time.Now().UTC(),
	}, nil
}

func (g *RESTGateway) GetBalances(ctx context.Context) ([]Balance, error) {
	body, err := g.signedRequest(ctx, http.MethodGet, "/api/v3/account", nil)
	if err != nil {
		return nil, err
	}
	var acct struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := json.Unmarshal(body, &acct); err != nil {
		return nil, err
	}
	out := make([]Balance, 0, len(acct.Balances))
	for _, b := range acct.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		out = append(out, Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

func (g *RESTGateway) GetServerTime(ctx context.Context) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/api/v3/time", nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return time.Time{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return time.Time{}, err
	}
	var t struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &t); err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(t.ServerTime).UTC(), nil
}

func (g *RESTGateway) GetOpenOrders(ctx context.Context, symbol string) ([]OrderResult, error) {
	q := url.Values{"symbol": {symbol}}
	body, err := g.signedRequest(ctx, http.MethodGet, "/api/v3/openOrders", q)
	if err != nil {
		return nil, err
	}
	var raw []restOrderResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]OrderResult, 0, len(raw))
	for _, r := range raw {
		filled, _ := decimal.NewFromString(r.ExecutedQty)
		out = append(out, OrderResult{
			ExchangeOrderID: strconv.FormatInt(r.OrderID, 10),
			ClientOrderID:   r.ClientOrderID,
			Status:          normalizeStatus(r.Status),
			FilledQuantity:  filled,
		})
	}
	return out, nil
}

func (g *RESTGateway) GetExchangePosition(ctx context.Context, pair domain.TradingPair, dustThreshold decimal.Decimal) (*ExchangePosition, error) {
	balances, err := g.GetBalances(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range balances {
		if b.Asset != pair.BaseAsset {
			continue
		}
		qty := b.Free.Add(b.Locked)
		if qty.LessThan(dustThreshold) {
			return nil, nil
		}
		return &ExchangePosition{Symbol: pair.Symbol, Side: domain.Buy, Quantity: qty}, nil
	}
	return nil, nil
}

func mapSide(s domain.Side) string {
	if s == domain.Buy {
		return "BUY"
	}
	return "SELL"
}

func mapType(t domain.OrderType) string {
	if t == domain.Market {
		return "MARKET"
	}
	return "LIMIT"
}
