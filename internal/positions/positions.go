// Package positions defines the capability contract a multi-leg option
// position must implement, and the concrete strategy variants. The portfolio
// engine only sees the Position interface, so new variants can be added
// without modifying it.
package positions

import (
	"time"

	"github.com/shopspring/decimal"

	"options-backtester/internal/models"
)

// Position is an open strategy instance composed of one or more option legs.
// Derived values (buying power, Greeks, mark-to-market P&L) are always
// consistent with the most recently assigned legs: they are recomputed in
// full whenever legs are replaced, never patched incrementally.
type Position interface {
	// ID returns a stable identifier for the position.
	ID() string
	// Ticker returns the underlying ticker of the position's legs.
	Ticker() string
	// Legs returns the position's current legs.
	Legs() []models.Leg
	// Quantity returns the order quantity.
	Quantity() int
	// Direction returns the transaction type applied to all legs.
	Direction() models.TransactionType
	// NumContracts returns the total option contract count (legs * quantity),
	// the unit fee schedules are keyed by.
	NumContracts() int
	// BuyingPowerRequirement returns the margin the brokerage requires to
	// hold the position at current prices.
	BuyingPowerRequirement() decimal.Decimal
	// Greeks returns the aggregate Greeks across the position's legs.
	Greeks() models.Greeks
	// MarkToMarketPnL returns the unrealized profit or loss at current prices.
	MarkToMarketPnL() decimal.Decimal
	// ExpiredAsOf reports whether the position's earliest leg expiration is at
	// or before the given timestamp.
	ExpiredAsOf(asOf time.Time) bool
	// Refresh replaces any legs present in the quote map (matched by
	// instrument identity) and recomputes derived state. It reports whether
	// at least one leg was refreshed.
	Refresh(quotes map[models.InstrumentKey]models.Leg) bool
	// Validate checks the position's structure (leg count, quantity,
	// direction) before it is admitted to a portfolio.
	Validate() error
}
