package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/marketdata"
)

func candlesFromCloses(closes []float64) []marketdata.Candle {
	out := make([]marketdata.Candle, len(closes))
	for i, c := range closes {
		out[i] = marketdata.Candle{
			OpenTime: time.Now().UTC().Add(time.Duration(i) * time.Minute),
			Close:    decimal.NewFromFloat(c),
		}
	}
	return out
}

func TestSMACrossover_InsufficientHistoryIsNone(t *testing.T) {
	s := NewSMACrossover()
	ctx := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"short": "3", "long": "5"},
		History: candlesFromCloses([]float64{10, 10, 10}),
	}
	sig := s.Evaluate(ctx)
	assert.Equal(t, DirectionNone, sig.Direction)
}

func TestSMACrossover_GoldenCrossSignalsBuy(t *testing.T) {
	s := NewSMACrossover()
	ctx := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"short": "3", "long": "5"},
		History: candlesFromCloses([]float64{10, 10, 10, 10, 10, 20}),
	}
	sig := s.Evaluate(ctx)
	assert.Equal(t, DirectionBuy, sig.Direction)
	assert.Greater(t, sig.Confidence, 0.5)
}

func TestSMACrossover_DeathCrossSignalsSell(t *testing.T) {
	s := NewSMACrossover()
	ctx := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"short": "3", "long": "5"},
		History: candlesFromCloses([]float64{10, 10, 10, 10, 10, 5}),
	}
	sig := s.Evaluate(ctx)
	assert.Equal(t, DirectionSell, sig.Direction)
}

func TestSMACrossover_FlatHistoryIsNone(t *testing.T) {
	s := NewSMACrossover()
	ctx := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"short": "3", "long": "5"},
		History: candlesFromCloses([]float64{10, 10, 10, 10, 10, 10}),
	}
	sig := s.Evaluate(ctx)
	assert.Equal(t, DirectionNone, sig.Direction)
}

func TestSMACrossover_Warmup(t *testing.T) {
	s := NewSMACrossover()
	assert.Equal(t, 51, s.Warmup())
	assert.Equal(t, "SMA_CROSSOVER", s.Name())
}
