// Package metricsvc implements MetricsService: a pure read-model computing
// trading performance statistics from closed positions, grounded on the
// control plane's original risk/circuit_breaker.go PnL bookkeeping style
// generalized into a standalone aggregation pass.
package metricsvc

import (
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/domain"
	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/storage"
)

// Snapshot is the full set of aggregate statistics exposed by GET
// /api/risk/metrics.
type Snapshot struct {
	TotalPnl           decimal.Decimal
	ClosedTradeCount   int
	WinCount           int
	LossCount          int
	WinRate            decimal.Decimal // percentage, 0-100
	ProfitFactor       decimal.Decimal // grossProfit / grossLoss; sentinel below if grossLoss == 0
	ProfitFactorIsInf  bool
	MaxDrawdown        decimal.Decimal // percentage of peak equity, non-negative
	AverageTradePnl    decimal.Decimal
	AverageWinningTrade decimal.Decimal
	AverageLosingTrade  decimal.Decimal
}

// Scale is the decimal scale every presented figure is rounded to.
const Scale = 8

// hundred is reused for every percentage conversion below.
var hundred = decimal.NewFromInt(100)

// Service computes Snapshot on demand from the repository's closed-position
// history. It holds no state of its own: every call re-derives from storage,
// matching the "pure read-model" requirement.
type Service struct {
	repo           *storage.Repository
	initialCapital decimal.Decimal
}

// New builds a Service. initialCapital seeds the equity curve used to scale
// MaxDrawdown into a percentage of peak equity.
func New(repo *storage.Repository, initialCapital decimal.Decimal) *Service {
	return &Service{repo: repo, initialCapital: initialCapital}
}

// Compute walks every closed position in ascending close order and derives
// the aggregate Snapshot. An empty history yields an all-zero Snapshot with
// ProfitFactorIsInf false.
func (s *Service) Compute() (Snapshot, error) {
	positions, err := s.repo.ClosedPositionsAsc()
	if err != nil {
		return Snapshot{}, err
	}
	return compute(positions, s.initialCapital), nil
}

func compute(positions []domain.Position, initialCapital decimal.Decimal) Snapshot {
	var (
		totalPnl    = decimal.Zero
		grossProfit = decimal.Zero
		grossLoss   = decimal.Zero // stored positive
		wins, losses, total int
		equity      = initialCapital
		peak        = initialCapital
		maxDrawdown = decimal.Zero // fraction of peak, not yet scaled to percent
	)

	for _, p := range positions {
		if !p.PnlSet {
			continue
		}
		pnl := p.Pnl
		total++
		totalPnl = totalPnl.Add(pnl)

		switch {
		case pnl.IsPositive():
			wins++
			grossProfit = grossProfit.Add(pnl)
		case pnl.IsNegative():
			losses++
			grossLoss = grossLoss.Add(pnl.Abs())
		}

		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if peak.IsPositive() {
			drawdown := peak.Sub(equity).Div(peak)
			if drawdown.GreaterThan(maxDrawdown) {
				maxDrawdown = drawdown
			}
		}
	}

	snap := Snapshot{
		TotalPnl:         totalPnl.Round(Scale),
		ClosedTradeCount: total,
		WinCount:         wins,
		LossCount:        losses,
		MaxDrawdown:      maxDrawdown.Mul(hundred).Round(Scale),
	}

	if total > 0 {
		snap.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(total))).Mul(hundred).Round(Scale)
		snap.AverageTradePnl = totalPnl.DivRound(decimal.NewFromInt(int64(total)), Scale)
	}
	if wins > 0 {
		snap.AverageWinningTrade = grossProfit.DivRound(decimal.NewFromInt(int64(wins)), Scale)
	}
	if losses > 0 {
		snap.AverageLosingTrade = grossLoss.Neg().DivRound(decimal.NewFromInt(int64(losses)), Scale)
	}

	switch {
	case grossLoss.IsZero() && grossProfit.IsPositive():
		snap.ProfitFactorIsInf = true
	case grossLoss.IsZero():
		snap.ProfitFactor = decimal.Zero
	default:
		snap.ProfitFactor = grossProfit.DivRound(grossLoss, Scale)
	}

	return snap
}
