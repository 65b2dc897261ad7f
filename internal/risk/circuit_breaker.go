package risk

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/Seich87/Crypto-scalping-bot-from-GoogleAI-sub001/internal/obsmetrics"
)

// CircuitBreaker enforces the daily-loss and emergency-stop thresholds from
// the fatal tier of the RiskViolation taxonomy: breaching maxDailyLossPct
// (or the tighter emergencyStopPct) closes all active positions and
// disables new opens until the next UTC day, generalized from the control
// plane's original consecutive-loss/cooldown breaker to the spec's UTC-day
// reset rule instead of a fixed cooldown window.
type CircuitBreaker struct {
	mu sync.Mutex

	maxDailyLossPct  decimal.Decimal
	emergencyStopPct decimal.Decimal
	initialCapital   decimal.Decimal

	dailyPnl    decimal.Decimal
	lastResetDay string
	tripped      bool
	tripReason   string
	obs          *obsmetrics.Metrics
}

func NewCircuitBreaker(maxDailyLossPct, emergencyStopPct, initialCapital decimal.Decimal) *CircuitBreaker {
	return &CircuitBreaker{
		maxDailyLossPct:  maxDailyLossPct,
		emergencyStopPct: emergencyStopPct,
		initialCapital:   initialCapital,
		lastResetDay:     time.Now().UTC().Format("2006-01-02"),
	}
}

// WithMetrics attaches a Metrics sink to count trip events; optional,
// nil-safe if never called.
func (cb *CircuitBreaker) WithMetrics(obs *obsmetrics.Metrics) *CircuitBreaker {
	cb.obs = obs
	return cb
}

func (cb *CircuitBreaker) rolloverLocked() {
	today := time.Now().UTC().Format("2006-01-02")
	if cb.lastResetDay != today {
		cb.lastResetDay = today
		cb.dailyPnl = decimal.Zero
		cb.tripped = false
		cb.tripReason = ""
		log.Info().Msg("circuit breaker reset for new UTC day")
	}
}

// RecordClose folds a closed position's realized PnL into the daily total
// and trips the breaker if either threshold is breached.
func (cb *CircuitBreaker) RecordClose(pnl decimal.Decimal) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rolloverLocked()
	cb.dailyPnl = cb.dailyPnl.Add(pnl)

	if cb.initialCapital.IsZero() {
		return
	}
	lossPct := cb.dailyPnl.Neg().Div(cb.initialCapital)
	if lossPct.GreaterThanOrEqual(cb.emergencyStopPct) {
		cb.trip("emergency stop threshold breached")
	} else if lossPct.GreaterThanOrEqual(cb.maxDailyLossPct) {
		cb.trip("max daily loss threshold breached")
	}
}

func (cb *CircuitBreaker) trip(reason string) {
	if cb.tripped {
		return
	}
	cb.tripped = true
	cb.tripReason = reason
	log.Error().Str("reason", reason).Str("daily_pnl", cb.dailyPnl.StringFixed(8)).Msg("circuit breaker tripped: opens disabled until next UTC day")
	if cb.obs != nil {
		cb.obs.CircuitBreakerTripped.Inc()
	}
}

// Tripped reports whether new opens are currently disabled, and why.
func (cb *CircuitBreaker) Tripped() (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rolloverLocked()
	return cb.tripped, cb.tripReason
}

// DailyPnl returns today's realized PnL so far.
func (cb *CircuitBreaker) DailyPnl() decimal.Decimal {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.rolloverLocked()
	return cb.dailyPnl
}
