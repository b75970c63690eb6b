package positions

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
	"options-backtester/internal/pricing"
)

// Strangle is a two-leg position combining an out-of-the-money put and call
// on the same underlying. The margin requirement is the larger of the two
// naked-leg requirements under the brokerage's margin rule.
type Strangle struct {
	id        string
	quantity  int
	direction models.TransactionType
	putLeg    models.Leg
	callLeg   models.Leg
	margin    pricing.MarginCalculator

	// Per-contract premium collected (or paid) at open.
	openPremium decimal.Decimal

	// Derived state, recomputed in full on every leg replacement.
	buyingPower decimal.Decimal
	greeks      models.Greeks
	pnl         decimal.Decimal
}

// NewStrangle creates a strangle position from its put and call legs. The
// opening premium is captured from the legs' trade prices at construction.
func NewStrangle(quantity int, putLeg, callLeg models.Leg, direction models.TransactionType, margin pricing.MarginCalculator) *Strangle {
	s := &Strangle{
		id:          uuid.New().String(),
		quantity:    quantity,
		direction:   direction,
		putLeg:      putLeg,
		callLeg:     callLeg,
		margin:      margin,
		openPremium: putLeg.TradePrice.Add(callLeg.TradePrice),
	}
	if margin != nil {
		s.recompute()
	}
	return s
}

// ID returns the position identifier.
func (s *Strangle) ID() string {
	return s.id
}

// Ticker returns the underlying ticker.
func (s *Strangle) Ticker() string {
	return s.putLeg.UnderlyingTicker
}

// Legs returns the put and call legs.
func (s *Strangle) Legs() []models.Leg {
	return []models.Leg{s.putLeg, s.callLeg}
}

// Quantity returns the order quantity.
func (s *Strangle) Quantity() int {
	return s.quantity
}

// Direction returns the transaction type.
func (s *Strangle) Direction() models.TransactionType {
	return s.direction
}

// NumContracts returns the contract count across both legs.
func (s *Strangle) NumContracts() int {
	return 2 * s.quantity
}

// BuyingPowerRequirement returns the current margin requirement.
func (s *Strangle) BuyingPowerRequirement() decimal.Decimal {
	return s.buyingPower
}

// Greeks returns the aggregate Greeks across both legs, scaled by quantity.
func (s *Strangle) Greeks() models.Greeks {
	return s.greeks
}

// MarkToMarketPnL returns the unrealized profit or loss at current prices.
func (s *Strangle) MarkToMarketPnL() decimal.Decimal {
	return s.pnl
}

// ExpiredAsOf reports whether the earliest leg expiration is at or before asOf.
func (s *Strangle) ExpiredAsOf(asOf time.Time) bool {
	earliest := s.putLeg.ExpirationDateTime
	if s.callLeg.ExpirationDateTime.Before(earliest) {
		earliest = s.callLeg.ExpirationDateTime
	}
	return !asOf.Before(earliest)
}

// Refresh replaces legs present in the quote map and recomputes derived state.
func (s *Strangle) Refresh(quotes map[models.InstrumentKey]models.Leg) bool {
	matched := false
	if q, ok := quotes[s.putLeg.Key()]; ok {
		s.putLeg = q
		matched = true
	}
	if q, ok := quotes[s.callLeg.Key()]; ok {
		s.callLeg = q
		matched = true
	}
	if matched {
		s.recompute()
	}
	return matched
}

// Validate checks the structural integrity of the strangle.
func (s *Strangle) Validate() error {
	if s.quantity <= 0 {
		return errors.NewValidationError("quantity", s.quantity, "order quantity must be positive")
	}
	if s.direction != models.TransactionBuy && s.direction != models.TransactionSell {
		return errors.NewValidationError("direction", s.direction, "direction must be BUY or SELL")
	}
	if s.putLeg.Right != models.RightPut {
		return errors.NewValidationError("putLeg", s.putLeg.Right, "put leg must be a PUT")
	}
	if s.callLeg.Right != models.RightCall {
		return errors.NewValidationError("callLeg", s.callLeg.Right, "call leg must be a CALL")
	}
	if s.putLeg.UnderlyingTicker != s.callLeg.UnderlyingTicker {
		return errors.NewValidationError("legs", s.callLeg.UnderlyingTicker, "legs must share an underlying")
	}
	if s.margin == nil {
		return errors.NewValidationError("margin", nil, "margin calculator is required")
	}
	return nil
}

// recompute rebuilds every derived field from the current legs. Full
// recomputation keeps the derived state consistent with the legs regardless
// of how many of them a tick refreshed.
func (s *Strangle) recompute() {
	putReq := s.margin.NakedRequirement(s.putLeg, s.quantity)
	callReq := s.margin.NakedRequirement(s.callLeg, s.quantity)
	if callReq.GreaterThan(putReq) {
		s.buyingPower = callReq
	} else {
		s.buyingPower = putReq
	}

	s.greeks = s.putLeg.Greeks().Add(s.callLeg.Greeks()).Scale(float64(s.quantity))

	currentPremium := s.putLeg.TradePrice.Add(s.callLeg.TradePrice)
	var perContract decimal.Decimal
	if s.direction == models.TransactionSell {
		// Credit received at open minus current cost to close.
		perContract = s.openPremium.Sub(currentPremium)
	} else {
		perContract = currentPremium.Sub(s.openPremium)
	}
	s.pnl = perContract.
		Mul(decimal.NewFromInt(models.ContractMultiplier)).
		Mul(decimal.NewFromInt(int64(s.quantity)))
}
