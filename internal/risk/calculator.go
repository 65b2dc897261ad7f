// Package risk implements RiskCalculator (pure SL/TP/PnL math) and
// RiskMonitor (the dual-trigger stop-loss/take-profit/trailing-stop/time-limit
// watchdog), generalized from the control plane's original TPSLManager and
// CircuitBreaker.
package risk

import (
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

// Calculator is a pure, stateless set of functions: stop-loss/take-profit
// price from entry, and realized P&L from exit. No I/O, no locking.
type Calculator struct{}

func NewCalculator() Calculator { return Calculator{} }

// StopLossPrice returns the price at which a position of the given side and
// entry price should be stopped out, given a percentage distance.
func (Calculator) StopLossPrice(side domain.Side, entryPrice, pct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == domain.Buy {
		return entryPrice.Mul(one.Sub(pct))
	}
	return entryPrice.Mul(one.Add(pct))
}

// TakeProfitPrice returns the price at which a position should be closed for
// profit, given a percentage distance.
func (Calculator) TakeProfitPrice(side domain.Side, entryPrice, pct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == domain.Buy {
		return entryPrice.Mul(one.Add(pct))
	}
	return entryPrice.Mul(one.Sub(pct))
}

// PnL computes realized profit/loss for a close at exitPrice.
func (Calculator) PnL(side domain.Side, entryPrice, exitPrice, quantity decimal.Decimal) decimal.Decimal {
	diff := exitPrice.Sub(entryPrice)
	if side == domain.Sell {
		diff = diff.Neg()
	}
	return diff.Mul(quantity).Round(8)
}

// QuantityFromNotional computes the order quantity for a fixed quote-currency
// notional at the given entry price, rounded down to the pair's quantity
// precision (never round up an order quantity).
func (Calculator) QuantityFromNotional(notional, entryPrice decimal.Decimal, quantityPrecision int32) decimal.Decimal {
	if entryPrice.IsZero() {
		return decimal.Zero
	}
	return notional.Div(entryPrice).Truncate(quantityPrecision)
}

// TrailingStop computes the candidate new stop-loss price from a
// high-watermark and trailing percentage. For Buy positions the watermark
// tracks the running maximum price; for Sell positions it tracks the running
// minimum.
func (Calculator) TrailingStop(side domain.Side, highWatermark, trailingPct decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if side == domain.Buy {
		return highWatermark.Mul(one.Sub(trailingPct))
	}
	return highWatermark.Mul(one.Add(trailingPct))
}

// IsMoreProtective reports whether candidateSL is strictly more protective
// than currentSL for the given side — i.e., trailing-stop updates only ever
// tighten, never loosen.
func (Calculator) IsMoreProtective(side domain.Side, candidateSL, currentSL decimal.Decimal) bool {
	if side == domain.Buy {
		return candidateSL.GreaterThan(currentSL)
	}
	return candidateSL.LessThan(currentSL)
}

// NextHighWatermark updates the running high-watermark given a new price.
func (Calculator) NextHighWatermark(side domain.Side, currentHWM, price decimal.Decimal) decimal.Decimal {
	if side == domain.Buy {
		if price.GreaterThan(currentHWM) {
			return price
		}
		return currentHWM
	}
	if price.LessThan(currentHWM) {
		return price
	}
	return currentHWM
}
