package pricing

import (
	"github.com/shopspring/decimal"

	"options-backtester/internal/models"
)

// MarginCalculator computes the buying power a brokerage requires to hold a
// naked option leg. Position variants combine per-leg requirements according
// to their own rules, so the brokerage formula stays swappable without
// touching the portfolio engine.
type MarginCalculator interface {
	NakedRequirement(leg models.Leg, quantity int) decimal.Decimal
}

// PercentOfUnderlying implements the percentage-of-underlying margin rule:
// a fraction of the underlying price minus the out-of-the-money amount plus
// the option premium, floored at a smaller fraction of the strike plus the
// premium, per contract.
type PercentOfUnderlying struct {
	params MarginParams
}

// NewPercentOfUnderlying creates a calculator using the schedule's margin
// parameters.
func NewPercentOfUnderlying(params MarginParams) *PercentOfUnderlying {
	return &PercentOfUnderlying{params: params}
}

// NakedRequirement returns the margin requirement for holding the leg naked
// at the given quantity.
func (c *PercentOfUnderlying) NakedRequirement(leg models.Leg, quantity int) decimal.Decimal {
	underlyingPct := decimal.NewFromFloat(c.params.NakedUnderlyingPct)
	minStrikePct := decimal.NewFromFloat(c.params.NakedMinStrikePct)

	perContract := leg.UnderlyingPrice.Mul(underlyingPct).
		Sub(leg.OTMAmount()).
		Add(leg.TradePrice)

	floor := leg.StrikePrice.Mul(minStrikePct).Add(leg.TradePrice)
	if perContract.LessThan(floor) {
		perContract = floor
	}

	return perContract.
		Mul(decimal.NewFromInt(models.ContractMultiplier)).
		Mul(decimal.NewFromInt(int64(quantity)))
}
