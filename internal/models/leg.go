package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OptionRight identifies the option type of a leg.
type OptionRight string

const (
	RightCall OptionRight = "CALL"
	RightPut  OptionRight = "PUT"
)

// InstrumentKey uniquely identifies an option contract. Two Leg observations
// taken at different times refer to the same contract iff their keys are equal.
type InstrumentKey struct {
	Ticker     string
	Strike     string // canonical decimal string, e.g. "2690"
	Expiration time.Time
	Right      OptionRight
}

// Leg is a single option contract observation: prices, Greeks, and timestamps
// as of one point in simulation time. A Leg is immutable once constructed; a
// later observation of the same contract is a new Leg value.
//
// Currency amounts are exact decimals. Greeks are float64: they are model
// outputs and inherently approximate.
type Leg struct {
	UnderlyingTicker string
	UnderlyingPrice  decimal.Decimal
	StrikePrice      decimal.Decimal
	Right            OptionRight

	Delta float64
	Gamma float64
	Theta float64
	Vega  float64

	DateTime           time.Time
	ExpirationDateTime time.Time

	BidPrice   decimal.Decimal
	AskPrice   decimal.Decimal
	TradePrice decimal.Decimal
}

// Key returns the instrument identity of the leg.
func (l Leg) Key() InstrumentKey {
	return InstrumentKey{
		Ticker:     l.UnderlyingTicker,
		Strike:     canonicalStrike(l.StrikePrice),
		Expiration: l.ExpirationDateTime,
		Right:      l.Right,
	}
}

// canonicalStrike renders a strike without trailing fractional zeros so that
// 2690 and 2690.0 identify the same contract.
func canonicalStrike(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// Greeks returns the leg's Greeks as a value.
func (l Leg) Greeks() Greeks {
	return Greeks{Delta: l.Delta, Gamma: l.Gamma, Theta: l.Theta, Vega: l.Vega}
}

// OTMAmount returns how far out of the money the leg is, floored at zero.
func (l Leg) OTMAmount() decimal.Decimal {
	var otm decimal.Decimal
	switch l.Right {
	case RightCall:
		otm = l.StrikePrice.Sub(l.UnderlyingPrice)
	case RightPut:
		otm = l.UnderlyingPrice.Sub(l.StrikePrice)
	}
	if otm.IsNegative() {
		return decimal.Zero
	}
	return otm
}
