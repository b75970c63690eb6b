// Package pricing loads brokerage fee schedules and margin parameters from an
// external configuration file. The engine treats fees as opaque currency
// deductions looked up by (brokerage, contract count, side).
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"options-backtester/internal/errors"
)

// FeeSide holds the per-contract charges applied on one side of a trade.
type FeeSide struct {
	CommissionPerContract    float64 `mapstructure:"commission_per_contract"`
	ClearingFeePerContract   float64 `mapstructure:"clearing_fee_per_contract"`
	RegulatoryFeePerContract float64 `mapstructure:"regulatory_fee_per_contract"`
}

// perContract returns the total charge for a single contract as an exact decimal.
func (f FeeSide) perContract() decimal.Decimal {
	return decimal.NewFromFloat(f.CommissionPerContract).
		Add(decimal.NewFromFloat(f.ClearingFeePerContract)).
		Add(decimal.NewFromFloat(f.RegulatoryFeePerContract))
}

// MarginParams holds the brokerage's naked-option margin rule parameters.
// The requirement per contract is
//
//	max(underlying*NakedUnderlyingPct - OTM amount + premium,
//	    strike*NakedMinStrikePct + premium)
//
// scaled by the contract multiplier and quantity.
type MarginParams struct {
	NakedUnderlyingPct float64 `mapstructure:"naked_underlying_pct"`
	NakedMinStrikePct  float64 `mapstructure:"naked_min_strike_pct"`
}

// brokerageConfig is the on-disk shape of one brokerage entry.
type brokerageConfig struct {
	IndexOption struct {
		Open  FeeSide `mapstructure:"open"`
		Close FeeSide `mapstructure:"close"`
	} `mapstructure:"index_option"`
	Margin MarginParams `mapstructure:"margin"`
}

// Schedule is the fee and margin schedule for a single brokerage.
type Schedule struct {
	brokerage string
	open      FeeSide
	close     FeeSide
	margin    MarginParams
}

// Load reads the pricing configuration file and returns the schedule for the
// named brokerage. A missing or malformed file is a hard error: the caller
// must not run a backtest silently charging zero fees.
func Load(path, brokerage string) (*Schedule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.NewPricingError(brokerage, path, errors.Wrap(errors.ErrPricingConfig, err.Error()))
	}

	var brokerages map[string]brokerageConfig
	if err := v.UnmarshalKey("brokerages", &brokerages); err != nil {
		return nil, errors.NewPricingError(brokerage, path, fmt.Errorf("parsing brokerages: %w", err))
	}

	cfg, ok := brokerages[brokerage]
	if !ok {
		return nil, errors.NewPricingError(brokerage, path, errors.ErrUnknownBrokerage)
	}

	s := &Schedule{
		brokerage: brokerage,
		open:      cfg.IndexOption.Open,
		close:     cfg.IndexOption.Close,
		margin:    cfg.Margin,
	}

	if err := s.validate(); err != nil {
		return nil, errors.NewPricingError(brokerage, path, err)
	}

	return s, nil
}

func (s *Schedule) validate() error {
	if s.margin.NakedUnderlyingPct <= 0 || s.margin.NakedUnderlyingPct > 1 {
		return fmt.Errorf("naked_underlying_pct must be in (0, 1], got %v", s.margin.NakedUnderlyingPct)
	}
	if s.margin.NakedMinStrikePct < 0 || s.margin.NakedMinStrikePct > 1 {
		return fmt.Errorf("naked_min_strike_pct must be in [0, 1], got %v", s.margin.NakedMinStrikePct)
	}
	if s.open.CommissionPerContract < 0 || s.open.ClearingFeePerContract < 0 || s.open.RegulatoryFeePerContract < 0 {
		return fmt.Errorf("open fees must be non-negative")
	}
	if s.close.CommissionPerContract < 0 || s.close.ClearingFeePerContract < 0 || s.close.RegulatoryFeePerContract < 0 {
		return fmt.Errorf("close fees must be non-negative")
	}
	return nil
}

// Brokerage returns the brokerage identifier this schedule was loaded for.
func (s *Schedule) Brokerage() string {
	return s.brokerage
}

// OpenFees returns the total commissions and fees charged to open the given
// number of contracts.
func (s *Schedule) OpenFees(contracts int) decimal.Decimal {
	return s.open.perContract().Mul(decimal.NewFromInt(int64(contracts)))
}

// CloseFees returns the total commissions and fees charged to close the given
// number of contracts.
func (s *Schedule) CloseFees(contracts int) decimal.Decimal {
	return s.close.perContract().Mul(decimal.NewFromInt(int64(contracts)))
}

// Margin returns the brokerage's naked-option margin parameters.
func (s *Schedule) Margin() MarginParams {
	return s.margin
}
