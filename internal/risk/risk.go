// Package risk provides risk-management strategies that decide when a
// position should be closed. Strategies are pure decisions: they never mutate
// portfolio state. Closure is always executed by the portfolio.
package risk

import (
	"time"

	"github.com/shopspring/decimal"

	"options-backtester/internal/positions"
)

// Strategy evaluates whether a position should be closed as of a simulation
// timestamp. New strategies can be added without modifying the portfolio
// engine.
type Strategy interface {
	// Name returns a short identifier used in logs and stored records.
	Name() string
	// ShouldClose reports whether the position should be closed as of asOf.
	ShouldClose(position positions.Position, asOf time.Time) bool
}

// HoldToExpiration closes a position only when it has expired.
type HoldToExpiration struct{}

// NewHoldToExpiration creates a hold-to-expiration strategy.
func NewHoldToExpiration() *HoldToExpiration {
	return &HoldToExpiration{}
}

// Name returns the strategy identifier.
func (h *HoldToExpiration) Name() string {
	return "hold_to_expiration"
}

// ShouldClose reports whether the position's earliest leg has expired.
func (h *HoldToExpiration) ShouldClose(position positions.Position, asOf time.Time) bool {
	return position.ExpiredAsOf(asOf)
}

// ProfitTarget closes a position once its unrealized profit reaches a target
// amount, or at expiration, whichever comes first.
type ProfitTarget struct {
	target decimal.Decimal
}

// NewProfitTarget creates a profit-target strategy for the given currency
// amount.
func NewProfitTarget(target decimal.Decimal) *ProfitTarget {
	return &ProfitTarget{target: target}
}

// Name returns the strategy identifier.
func (p *ProfitTarget) Name() string {
	return "profit_target"
}

// ShouldClose reports whether the profit target was reached or the position
// expired.
func (p *ProfitTarget) ShouldClose(position positions.Position, asOf time.Time) bool {
	if position.ExpiredAsOf(asOf) {
		return true
	}
	return position.MarkToMarketPnL().GreaterThanOrEqual(p.target)
}

// StopLoss closes a position once its unrealized loss reaches a limit amount,
// or at expiration, whichever comes first.
type StopLoss struct {
	limit decimal.Decimal
}

// NewStopLoss creates a stop-loss strategy for the given currency amount.
// The limit is expressed as a positive loss magnitude.
func NewStopLoss(limit decimal.Decimal) *StopLoss {
	return &StopLoss{limit: limit}
}

// Name returns the strategy identifier.
func (s *StopLoss) Name() string {
	return "stop_loss"
}

// ShouldClose reports whether the loss limit was breached or the position
// expired.
func (s *StopLoss) ShouldClose(position positions.Position, asOf time.Time) bool {
	if position.ExpiredAsOf(asOf) {
		return true
	}
	return position.MarkToMarketPnL().LessThanOrEqual(s.limit.Neg())
}
