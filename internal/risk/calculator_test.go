package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestStopLossAndTakeProfitPrice_Buy(t *testing.T) {
	calc := NewCalculator()
	entry := dec("100")
	sl := calc.StopLossPrice(domain.Buy, entry, dec("0.015"))
	tp := calc.TakeProfitPrice(domain.Buy, entry, dec("0.03"))
	assert.True(t, sl.Equal(dec("98.5")))
	assert.True(t, tp.Equal(dec("103")))
}

func TestStopLossAndTakeProfitPrice_Sell(t *testing.T) {
	calc := NewCalculator()
	entry := dec("100")
	sl := calc.StopLossPrice(domain.Sell, entry, dec("0.015"))
	tp := calc.TakeProfitPrice(domain.Sell, entry, dec("0.03"))
	assert.True(t, sl.Equal(dec("101.5")))
	assert.True(t, tp.Equal(dec("97")))
}

func TestPnL_BuyCloseWin(t *testing.T) {
	calc := NewCalculator()
	pnl := calc.PnL(domain.Buy, dec("100"), dec("103.2"), dec("10"))
	assert.True(t, pnl.Equal(dec("32")), "got %s", pnl)
}

func TestPnL_BuyCloseLoss(t *testing.T) {
	calc := NewCalculator()
	pnl := calc.PnL(domain.Buy, dec("100"), dec("98.2"), dec("10"))
	assert.True(t, pnl.Equal(dec("-18")), "got %s", pnl)
}

func TestPnL_SellClose(t *testing.T) {
	calc := NewCalculator()
	pnl := calc.PnL(domain.Sell, dec("100"), dec("95"), dec("10"))
	assert.True(t, pnl.Equal(dec("50")), "got %s", pnl)
}

func TestQuantityFromNotional_TruncatesNeverRoundsUp(t *testing.T) {
	calc := NewCalculator()
	qty := calc.QuantityFromNotional(dec("100"), dec("33.333"), 4)
	assert.True(t, qty.LessThanOrEqual(dec("3.0001")))
	assert.True(t, qty.Equal(dec("3")))
}

func TestQuantityFromNotional_ZeroPriceIsZeroQuantity(t *testing.T) {
	calc := NewCalculator()
	qty := calc.QuantityFromNotional(dec("100"), decimal.Zero, 4)
	assert.True(t, qty.IsZero())
}

func TestTrailingStopMonotonicity_Buy(t *testing.T) {
	calc := NewCalculator()
	hwm := dec("100")
	sl := dec("98.5")

	ticks := []string{"101", "102", "103", "101"}
	for _, tickStr := range ticks {
		price := dec(tickStr)
		hwm = calc.NextHighWatermark(domain.Buy, hwm, price)
		candidate := calc.TrailingStop(domain.Buy, hwm, dec("0.01"))
		if calc.IsMoreProtective(domain.Buy, candidate, sl) {
			sl = candidate
		}
	}

	assert.True(t, hwm.Equal(dec("103")), "high watermark should peak at 103, got %s", hwm)
	assert.True(t, sl.Equal(dec("101.97")), "stop-loss should tighten to 101.97, got %s", sl)
}

func TestIsMoreProtective_NeverLoosens(t *testing.T) {
	calc := NewCalculator()
	assert.False(t, calc.IsMoreProtective(domain.Buy, dec("97"), dec("98.5")))
	assert.True(t, calc.IsMoreProtective(domain.Buy, dec("99"), dec("98.5")))
	assert.False(t, calc.IsMoreProtective(domain.Sell, dec("102"), dec("101.5")))
	assert.True(t, calc.IsMoreProtective(domain.Sell, dec("101"), dec("101.5")))
}
