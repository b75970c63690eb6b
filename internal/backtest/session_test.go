package backtest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/events"
	"options-backtester/internal/models"
	"options-backtester/internal/portfolio"
	"options-backtester/internal/pricing"
	"options-backtester/internal/store"
)

// pricingCalcFor builds the margin calculator the scanner shares with the
// portfolio's schedule.
func pricingCalcFor(pf *portfolio.Portfolio) pricing.MarginCalculator {
	return pricing.NewPercentOfUnderlying(pf.Schedule().Margin())
}

const sessionPricingJSON = `{
  "brokerages": {
    "tastyworks": {
      "index_option": {
        "open": {
          "commission_per_contract": 0.65,
          "clearing_fee_per_contract": 0.1,
          "regulatory_fee_per_contract": 0.02135
        },
        "close": {
          "commission_per_contract": 0.0,
          "clearing_fee_per_contract": 0.1,
          "regulatory_fee_per_contract": 0.02135
        }
      },
      "margin": {
        "naked_underlying_pct": 0.25,
        "naked_min_strike_pct": 0.1
      }
    }
  }
}`

// sliceHandler yields a fixed sequence of ticks, for driving a session without
// a chain file.
type sliceHandler struct {
	ticks []*events.TickEvent
	pos   int
}

func (h *sliceHandler) HasNext() bool {
	return h.pos < len(h.ticks)
}

func (h *sliceHandler) Next() (*events.TickEvent, error) {
	tick := h.ticks[h.pos]
	h.pos++
	return tick, nil
}

func sessionLeg(right models.OptionRight, strike, trade string, delta float64, asOf, exp time.Time) models.Leg {
	return models.Leg{
		UnderlyingTicker:   "SPX",
		UnderlyingPrice:    decimal.RequireFromString("2786.24"),
		StrikePrice:        decimal.RequireFromString(strike),
		Right:              right,
		Delta:              delta,
		Gamma:              0.01,
		Theta:              0.02,
		Vega:               0.03,
		DateTime:           asOf,
		ExpirationDateTime: exp,
		TradePrice:         decimal.RequireFromString(trade),
	}
}

func newSessionPortfolio(t *testing.T) *portfolio.Portfolio {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(sessionPricingJSON), 0644))

	p, err := portfolio.New(portfolio.Config{
		StartingCapital:         decimal.NewFromInt(1000000),
		MaxCapitalToUse:         0.5,
		MaxCapitalToUsePerTrade: 0.5,
		PricingSource:           "tastyworks",
		PricingConfigPath:       path,
	}, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestSessionOpenRevalueClose(t *testing.T) {
	d1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	d3 := d1.AddDate(0, 0, 2)

	ticks := []*events.TickEvent{
		events.NewTickEvent([]models.Leg{
			sessionLeg(models.RightPut, "2690", "7.475", -0.16, d1, d3),
			sessionLeg(models.RightCall, "2855", "5.30", 0.16, d1, d3),
		}),
		events.NewTickEvent([]models.Leg{
			sessionLeg(models.RightPut, "2690", "6.475", -0.13, d2, d3),
			sessionLeg(models.RightCall, "2855", "4.30", 0.19, d2, d3),
		}),
		events.NewTickEvent([]models.Leg{
			sessionLeg(models.RightPut, "2690", "6.00", -0.10, d3, d3),
			sessionLeg(models.RightCall, "2855", "4.00", 0.12, d3, d3),
		}),
	}

	pf := newSessionPortfolio(t)
	margin := pricingCalcFor(pf)
	scanner := NewStrangleScanner(strangleCfg("hold_to_expiration"), margin)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "backtester.db"))
	require.NoError(t, err)
	defer st.Close()

	session := NewSession(&sliceHandler{ticks: ticks}, pf, scanner, st, "chain.csv", zerolog.Nop())
	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, result.Ticks)
	assert.Equal(t, 1, result.SignalsEmitted)
	assert.Equal(t, 1, result.PositionsOpened)
	assert.Equal(t, 1, result.PositionsClosed)
	assert.Equal(t, 0, pf.ActivePositionCount())
	assert.Len(t, result.EquityCurve, 3)

	// Short 12.775 credit closed at 10.00: +277.50 realized, net of fees.
	assert.True(t, pf.RealizedPnL().Equal(decimal.RequireFromString("277.5")),
		"got %s", pf.RealizedPnL())
	assert.True(t, result.FinalNetLiquidity.Equal(pf.NetLiquidity()))
	assert.True(t, result.FinalNetLiquidity.GreaterThan(pf.StartingCapital()))
	assert.Greater(t, result.TotalReturnPct, 0.0)

	// Persistence: one run, one snapshot per tick, one closure.
	ctx := context.Background()
	run, err := st.GetRun(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "tastyworks", run.PricingSource)
	assert.Equal(t, "chain.csv", run.QuotesFile)

	snaps, err := st.GetSnapshots(ctx, result.RunID)
	require.NoError(t, err)
	assert.Len(t, snaps, 3)

	closed, err := st.GetClosedPositions(ctx, result.RunID)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "SPX", closed[0].Ticker)
	assert.Equal(t, "277.5", closed[0].PnL)
	assert.True(t, closed[0].ClosedAt.Equal(d3))
}

func TestSessionCapitalRejectionIsSilent(t *testing.T) {
	d1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := d1.AddDate(0, 0, 19)

	ticks := []*events.TickEvent{
		events.NewTickEvent([]models.Leg{
			sessionLeg(models.RightPut, "2690", "7.475", -0.16, d1, exp),
			sessionLeg(models.RightCall, "2855", "5.30", 0.16, d1, exp),
		}),
	}

	path := filepath.Join(t.TempDir(), "pricing.json")
	require.NoError(t, os.WriteFile(path, []byte(sessionPricingJSON), 0644))
	pf, err := portfolio.New(portfolio.Config{
		StartingCapital:         decimal.NewFromInt(10000),
		MaxCapitalToUse:         0.5,
		MaxCapitalToUsePerTrade: 0.5,
		PricingSource:           "tastyworks",
		PricingConfigPath:       path,
	}, zerolog.Nop())
	require.NoError(t, err)

	scanner := NewStrangleScanner(strangleCfg("hold_to_expiration"), pricingCalcFor(pf))
	session := NewSession(&sliceHandler{ticks: ticks}, pf, scanner, nil, "chain.csv", zerolog.Nop())

	result, err := session.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.SignalsEmitted)
	assert.Equal(t, 0, result.PositionsOpened)
	assert.Equal(t, 0, pf.ActivePositionCount())
	assert.True(t, result.FinalNetLiquidity.Equal(decimal.NewFromInt(10000)))
}

func TestSessionContextCancellation(t *testing.T) {
	d1 := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := d1.AddDate(0, 0, 19)

	ticks := []*events.TickEvent{
		events.NewTickEvent([]models.Leg{
			sessionLeg(models.RightPut, "2690", "7.475", -0.16, d1, exp),
		}),
	}

	pf := newSessionPortfolio(t)
	scanner := NewStrangleScanner(strangleCfg("hold_to_expiration"), pricingCalcFor(pf))
	session := NewSession(&sliceHandler{ticks: ticks}, pf, scanner, nil, "chain.csv", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := session.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
