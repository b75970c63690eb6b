package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"options-backtester/internal/config"
	"options-backtester/internal/events"
	"options-backtester/internal/models"
	"options-backtester/internal/positions"
	"options-backtester/internal/pricing"
	"options-backtester/internal/risk"
)

// SignalGenerator proposes new positions from a tick's quote chain. The
// portfolio only ever sees the resulting signal events; how positions are
// constructed stays outside the engine.
type SignalGenerator interface {
	OnTick(quotes []models.Leg, asOf time.Time, openPositions int) []*events.SignalEvent
}

// StrangleScanner emits short-strangle signals: it picks the put and call
// whose absolute delta is closest to the configured target and pairs them
// with the configured risk-management strategy. At most one signal per tick,
// and none while a position is already open.
type StrangleScanner struct {
	cfg    config.StrategyConfig
	margin pricing.MarginCalculator
}

// NewStrangleScanner creates a scanner using the brokerage's margin
// calculator so proposed positions are priced consistently with the
// portfolio's schedule.
func NewStrangleScanner(cfg config.StrategyConfig, margin pricing.MarginCalculator) *StrangleScanner {
	return &StrangleScanner{cfg: cfg, margin: margin}
}

// OnTick scans the chain for a delta-targeted strangle.
func (sc *StrangleScanner) OnTick(quotes []models.Leg, asOf time.Time, openPositions int) []*events.SignalEvent {
	if openPositions > 0 {
		return nil
	}

	put, putOK := sc.closestByDelta(quotes, models.RightPut)
	call, callOK := sc.closestByDelta(quotes, models.RightCall)
	if !putOK || !callOK {
		return nil
	}
	// Never open a position that would be closed on the same tick.
	if !asOf.Before(put.ExpirationDateTime) || !asOf.Before(call.ExpirationDateTime) {
		return nil
	}

	strangle := positions.NewStrangle(sc.cfg.Quantity, put, call, models.TransactionSell, sc.margin)
	return []*events.SignalEvent{
		events.NewSignalEvent(strangle, sc.riskStrategy(), asOf),
	}
}

// closestByDelta returns the out-of-the-money leg of the given right whose
// absolute delta is nearest the target.
func (sc *StrangleScanner) closestByDelta(quotes []models.Leg, right models.OptionRight) (models.Leg, bool) {
	var best models.Leg
	bestDist := math.Inf(1)
	found := false

	for _, q := range quotes {
		if q.Right != right {
			continue
		}
		if !q.OTMAmount().IsPositive() {
			continue
		}
		dist := math.Abs(math.Abs(q.Delta) - sc.cfg.TargetDelta)
		if dist < bestDist {
			best = q
			bestDist = dist
			found = true
		}
	}
	return best, found
}

// riskStrategy builds the configured risk-management strategy.
func (sc *StrangleScanner) riskStrategy() risk.Strategy {
	switch sc.cfg.RiskManagement {
	case "profit_target":
		return risk.NewProfitTarget(decimal.NewFromFloat(sc.cfg.ProfitTarget))
	case "stop_loss":
		return risk.NewStopLoss(decimal.NewFromFloat(sc.cfg.StopLoss))
	default:
		return risk.NewHoldToExpiration()
	}
}
