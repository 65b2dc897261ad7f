package strategy

import (
	"fmt"
	"math"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/indicators"
)

// RSIMomentum combines an RSI score and a momentum score into a weighted
// composite, signaling Buy/Sell when the composite clears a threshold.
// Generalizes the control plane's original multi-indicator composite
// (RSI+momentum+volume+orderbook+funding) down to the two indicators that
// have a direct analogue in a candle-only MarketContext; the weights keep
// the original relative emphasis (momentum weighted above RSI).
type RSIMomentum struct {
	BaseStrategy
	rsiWeight      float64
	momentumWeight float64
}

func NewRSIMomentum() *RSIMomentum {
	return &RSIMomentum{
		BaseStrategy:   NewBaseStrategy("RSI_MOMENTUM", 20),
		rsiWeight:      0.45,
		momentumWeight: 0.55,
	}
}

func (r *RSIMomentum) Evaluate(market MarketContext) Signal {
	prices := closingPrices(market.History)
	if len(prices) < r.Warmup() {
		return Signal{Direction: DirectionNone, Reason: "insufficient history for RSI/momentum warmup"}
	}

	rsiPeriod := paramInt(market.Params, "rsi_period", 14)
	momentumPeriod := paramInt(market.Params, "momentum_period", 10)
	threshold := paramFloat(market.Params, "threshold", 20)

	rsiRaw := indicators.RSI(prices, rsiPeriod)
	rsiScore := indicators.RSIScore(rsiRaw)
	momentumScore := indicators.MomentumScore(prices, momentumPeriod)

	composite := rsiScore*r.rsiWeight + momentumScore*r.momentumWeight
	absScore := math.Abs(composite)

	signal := Signal{
		Score:      composite,
		Strength:   CalculateStrength(absScore),
		Confidence: CalculateConfidence(absScore),
		Indicators: map[string]float64{"rsi": rsiRaw, "rsi_score": rsiScore, "momentum_score": momentumScore},
	}

	switch {
	case composite > threshold:
		signal.Direction = DirectionBuy
		signal.Reason = fmt.Sprintf("bullish composite score %.1f (RSI=%.1f)", composite, rsiRaw)
	case composite < -threshold:
		signal.Direction = DirectionSell
		signal.Reason = fmt.Sprintf("bearish composite score %.1f (RSI=%.1f)", composite, rsiRaw)
	default:
		signal.Direction = DirectionNone
		signal.Reason = fmt.Sprintf("composite score %.1f below threshold %.1f", composite, threshold)
	}
	return signal
}
