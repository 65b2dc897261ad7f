package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/indicators"
)

func TestRSIMomentum_InsufficientHistoryIsNone(t *testing.T) {
	r := NewRSIMomentum()
	ctx := MarketContext{
		Symbol:  "BTCUSDT",
		History: candlesFromCloses([]float64{10, 11, 12}),
	}
	sig := r.Evaluate(ctx)
	assert.Equal(t, DirectionNone, sig.Direction)
}

func TestRSIMomentum_Warmup(t *testing.T) {
	r := NewRSIMomentum()
	assert.Equal(t, 20, r.Warmup())
	assert.Equal(t, "RSI_MOMENTUM", r.Name())
}

func TestRSIMomentum_CompositeMatchesWeightedIndicators(t *testing.T) {
	r := NewRSIMomentum()
	closes := make([]float64, 25)
	price := 100.0
	for i := range closes {
		price += 0.5
		closes[i] = price
	}
	ctx := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"rsi_period": "14", "momentum_period": "10", "threshold": "20"},
		History: candlesFromCloses(closes),
	}
	sig := r.Evaluate(ctx)

	rsiRaw := indicators.RSI(closes, 14)
	rsiScore := indicators.RSIScore(rsiRaw)
	momentumScore := indicators.MomentumScore(closes, 10)
	expected := rsiScore*0.45 + momentumScore*0.55

	assert.InDelta(t, expected, sig.Score, 1e-9)
	assert.InDelta(t, rsiRaw, sig.Indicators["rsi"], 1e-9)

	switch {
	case expected > 20:
		assert.Equal(t, DirectionBuy, sig.Direction)
	case expected < -20:
		assert.Equal(t, DirectionSell, sig.Direction)
	default:
		assert.Equal(t, DirectionNone, sig.Direction)
	}
}

func TestRSIMomentum_ThresholdParamOverridesDefault(t *testing.T) {
	r := NewRSIMomentum()
	closes := make([]float64, 25)
	price := 100.0
	for i := range closes {
		price += 0.1
		closes[i] = price
	}
	low := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"threshold": "1"},
		History: candlesFromCloses(closes),
	}
	high := MarketContext{
		Symbol:  "BTCUSDT",
		Params:  map[string]string{"threshold": "1000"},
		History: candlesFromCloses(closes),
	}
	sigLow := r.Evaluate(low)
	sigHigh := r.Evaluate(high)
	assert.NotEqual(t, DirectionNone, sigLow.Direction, "a near-zero threshold should clear on any nonzero composite")
	assert.Equal(t, DirectionNone, sigHigh.Direction, "an unreachable threshold always yields None")
}
