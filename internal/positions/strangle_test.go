package positions

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

var (
	day1 = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2021, 1, 2, 0, 0, 0, 0, time.UTC)
	exp  = time.Date(2021, 1, 20, 0, 0, 0, 0, time.UTC)
)

func testMargin() pricing.MarginCalculator {
	return pricing.NewPercentOfUnderlying(pricing.MarginParams{
		NakedUnderlyingPct: 0.25,
		NakedMinStrikePct:  0.1,
	})
}

func spxPut(trade string, asOf time.Time) models.Leg {
	return models.Leg{
		UnderlyingTicker:   "SPX",
		UnderlyingPrice:    decimal.RequireFromString("2786.24"),
		StrikePrice:        decimal.RequireFromString("2690"),
		Right:              models.RightPut,
		Delta:              -0.16,
		Gamma:              0.01,
		Theta:              0.02,
		Vega:               0.03,
		DateTime:           asOf,
		ExpirationDateTime: exp,
		BidPrice:           decimal.RequireFromString("7.45"),
		AskPrice:           decimal.RequireFromString("7.50"),
		TradePrice:         decimal.RequireFromString(trade),
	}
}

func spxCall(trade string, asOf time.Time) models.Leg {
	return models.Leg{
		UnderlyingTicker:   "SPX",
		UnderlyingPrice:    decimal.RequireFromString("2786.24"),
		StrikePrice:        decimal.RequireFromString("2855"),
		Right:              models.RightCall,
		Delta:              0.16,
		Gamma:              0.01,
		Theta:              0.02,
		Vega:               0.03,
		DateTime:           asOf,
		ExpirationDateTime: exp,
		BidPrice:           decimal.RequireFromString("5.20"),
		AskPrice:           decimal.RequireFromString("5.40"),
		TradePrice:         decimal.RequireFromString(trade),
	}
}

func TestStrangleBuyingPowerIsMaxLegRequirement(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())

	// Call side: 0.25*2786.24 - 68.76 + 5.30 = 633.10 per contract.
	// Put side:  0.25*2786.24 - 96.24 + 7.475 = 607.795 per contract.
	assert.True(t, s.BuyingPowerRequirement().Equal(decimal.RequireFromString("63310")),
		"got %s", s.BuyingPowerRequirement())
}

func TestStrangleGreeksSumLegs(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())

	g := s.Greeks()
	assert.InDelta(t, 0.0, g.Delta, 1e-9)
	assert.InDelta(t, 0.02, g.Gamma, 1e-9)
	assert.InDelta(t, 0.04, g.Theta, 1e-9)
	assert.InDelta(t, 0.06, g.Vega, 1e-9)
}

func TestStrangleGreeksScaleWithQuantity(t *testing.T) {
	s := NewStrangle(3, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())

	g := s.Greeks()
	assert.InDelta(t, 0.0, g.Delta, 1e-9)
	assert.InDelta(t, 0.06, g.Gamma, 1e-9)
	assert.InDelta(t, 0.12, g.Theta, 1e-9)
	assert.InDelta(t, 0.18, g.Vega, 1e-9)
}

func TestStrangleRefreshRevalues(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())

	assert.True(t, s.MarkToMarketPnL().IsZero())

	chain := map[models.InstrumentKey]models.Leg{
		spxPut("6.475", day2).Key():  spxPut("6.475", day2),
		spxCall("4.30", day2).Key(): spxCall("4.30", day2),
	}
	matched := s.Refresh(chain)
	require.True(t, matched)

	// Short premium decayed by 2.00 per contract: +200 unrealized.
	assert.True(t, s.MarkToMarketPnL().Equal(decimal.RequireFromString("200")),
		"got %s", s.MarkToMarketPnL())
	// Call side repriced: 633.10 - 1.00 = 632.10 per contract.
	assert.True(t, s.BuyingPowerRequirement().Equal(decimal.RequireFromString("63210")),
		"got %s", s.BuyingPowerRequirement())
}

func TestStranglePartialRefresh(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())

	chain := map[models.InstrumentKey]models.Leg{
		spxCall("4.30", day2).Key(): spxCall("4.30", day2),
	}
	matched := s.Refresh(chain)
	require.True(t, matched)

	// Only the call leg moved: premium 12.775 -> 11.775, +100 unrealized.
	assert.True(t, s.MarkToMarketPnL().Equal(decimal.RequireFromString("100")),
		"got %s", s.MarkToMarketPnL())
}

func TestStrangleRefreshNoMatch(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())
	before := s.BuyingPowerRequirement()

	other := models.Leg{
		UnderlyingTicker:   "NDX",
		UnderlyingPrice:    decimal.RequireFromString("9000"),
		StrikePrice:        decimal.RequireFromString("9200"),
		Right:              models.RightCall,
		DateTime:           day2,
		ExpirationDateTime: exp,
		TradePrice:         decimal.RequireFromString("12"),
	}
	matched := s.Refresh(map[models.InstrumentKey]models.Leg{other.Key(): other})

	assert.False(t, matched)
	assert.True(t, s.BuyingPowerRequirement().Equal(before))
}

func TestStrangleLongDirectionPnL(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionBuy, testMargin())

	chain := map[models.InstrumentKey]models.Leg{
		spxPut("6.475", day2).Key():  spxPut("6.475", day2),
		spxCall("4.30", day2).Key(): spxCall("4.30", day2),
	}
	s.Refresh(chain)

	// The same decay is a loss for the long holder.
	assert.True(t, s.MarkToMarketPnL().Equal(decimal.RequireFromString("-200")),
		"got %s", s.MarkToMarketPnL())
}

func TestStrangleExpiredAsOf(t *testing.T) {
	s := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())

	assert.False(t, s.ExpiredAsOf(day1))
	assert.False(t, s.ExpiredAsOf(exp.Add(-time.Hour)))
	assert.True(t, s.ExpiredAsOf(exp))
	assert.True(t, s.ExpiredAsOf(exp.Add(24*time.Hour)))
}

func TestStrangleExpiredAsOfUsesEarliestLeg(t *testing.T) {
	put := spxPut("7.475", day1)
	put.ExpirationDateTime = day2
	s := NewStrangle(1, put, spxCall("5.30", day1), models.TransactionSell, testMargin())

	assert.True(t, s.ExpiredAsOf(day2))
}

func TestStrangleNumContracts(t *testing.T) {
	s := NewStrangle(2, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())
	assert.Equal(t, 4, s.NumContracts())
}

func TestStrangleValidate(t *testing.T) {
	valid := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())
	assert.NoError(t, valid.Validate())

	zeroQty := NewStrangle(0, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())
	assert.True(t, errors.Is(zeroQty.Validate(), errors.ErrInvalidPosition))

	swapped := NewStrangle(1, spxCall("5.30", day1), spxPut("7.475", day1), models.TransactionSell, testMargin())
	assert.True(t, errors.Is(swapped.Validate(), errors.ErrInvalidPosition))

	badDirection := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionType("HOLD"), testMargin())
	assert.True(t, errors.Is(badDirection.Validate(), errors.ErrInvalidPosition))

	noMargin := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, nil)
	assert.True(t, errors.Is(noMargin.Validate(), errors.ErrInvalidPosition))

	crossTicker := spxCall("5.30", day1)
	crossTicker.UnderlyingTicker = "NDX"
	mixed := NewStrangle(1, spxPut("7.475", day1), crossTicker, models.TransactionSell, testMargin())
	assert.True(t, errors.Is(mixed.Validate(), errors.ErrInvalidPosition))
}

func TestStrangleIDsUnique(t *testing.T) {
	a := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())
	b := NewStrangle(1, spxPut("7.475", day1), spxCall("5.30", day1), models.TransactionSell, testMargin())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.NotEmpty(t, a.ID())
}
