package strategy

import (
	"fmt"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/indicators"
)

// SMACrossover signals Buy when the short SMA crosses above the long SMA and
// Sell when it crosses below, the minimal moving-average crossover strategy
// used as the reference strategy throughout the control plane's tests.
type SMACrossover struct {
	BaseStrategy
}

func NewSMACrossover() *SMACrossover {
	return &SMACrossover{BaseStrategy: NewBaseStrategy("SMA_CROSSOVER", 51)}
}

func (s *SMACrossover) Evaluate(market MarketContext) Signal {
	short := paramInt(market.Params, "short", 10)
	long := paramInt(market.Params, "long", 50)
	prices := closingPrices(market.History)

	if len(prices) < long+1 {
		return Signal{Direction: DirectionNone, Reason: "insufficient history for SMA crossover"}
	}

	shortNow := indicators.SMA(prices, short)
	longNow := indicators.SMA(prices, long)
	shortPrev := indicators.SMA(prices[:len(prices)-1], short)
	longPrev := indicators.SMA(prices[:len(prices)-1], long)

	crossedUp := shortPrev <= longPrev && shortNow > longNow
	crossedDown := shortPrev >= longPrev && shortNow < longNow

	switch {
	case crossedUp:
		score := relativeSeparation(shortNow, longNow)
		return Signal{
			Direction:  DirectionBuy,
			Score:      score,
			Strength:   CalculateStrength(score),
			Confidence: CalculateConfidence(score),
			Reason:     fmt.Sprintf("short SMA(%d)=%.4f crossed above long SMA(%d)=%.4f", short, shortNow, long, longNow),
			Indicators: map[string]float64{"sma_short": shortNow, "sma_long": longNow},
		}
	case crossedDown:
		score := relativeSeparation(longNow, shortNow)
		return Signal{
			Direction:  DirectionSell,
			Score:      score,
			Strength:   CalculateStrength(score),
			Confidence: CalculateConfidence(score),
			Reason:     fmt.Sprintf("short SMA(%d)=%.4f crossed below long SMA(%d)=%.4f", short, shortNow, long, longNow),
			Indicators: map[string]float64{"sma_short": shortNow, "sma_long": longNow},
		}
	default:
		return Signal{Direction: DirectionNone, Reason: "no crossover"}
	}
}

func relativeSeparation(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	sep := (a - b) / b * 100
	if sep < 0 {
		sep = -sep
	}
	if sep > 100 {
		sep = 100
	}
	return sep
}
