// Package portfolio implements the capital ledger and position registry for
// the backtester. The Portfolio is the sole mutator of aggregate state: it
// admits or rejects proposed positions against available buying power,
// revalues active positions on market data, and executes risk-management
// closures. Every aggregate is rebuilt by full summation over the active set
// after each event, trading a little CPU for immunity to drift bugs.
package portfolio

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"options-backtester/internal/errors"
	"options-backtester/internal/events"
	"options-backtester/internal/logging"
	"options-backtester/internal/models"
	"options-backtester/internal/positions"
	"options-backtester/internal/pricing"
	"options-backtester/internal/risk"
)

// Config holds the portfolio construction parameters.
type Config struct {
	// StartingCapital is the cash the portfolio begins with. Must be positive.
	StartingCapital decimal.Decimal
	// MaxCapitalToUse caps the fraction of starting capital committable in
	// total, in (0, 1].
	MaxCapitalToUse float64
	// MaxCapitalToUsePerTrade caps the fraction of currently available
	// capital committable to a single position, in (0, 1].
	MaxCapitalToUsePerTrade float64
	// PricingSource is the brokerage identifier used to look up fees and
	// margin parameters.
	PricingSource string
	// PricingConfigPath is the fee/margin schedule file. Loading it is part
	// of construction; a missing or malformed file fails fast.
	PricingConfigPath string
}

// holding pairs an admitted position with its risk-management strategy and
// the fees charged to open it.
type holding struct {
	position positions.Position
	strategy risk.Strategy
	openFees decimal.Decimal
}

// Portfolio owns the active-position set, the capital ledger, and the
// aggregate risk metrics. Event processing is sequential: each OnSignal or
// UpdatePortfolio call is an atomic transaction against in-memory state.
type Portfolio struct {
	mu     sync.RWMutex
	logger zerolog.Logger

	startingCapital    decimal.Decimal
	maxCapitalToUse    decimal.Decimal
	maxCapitalPerTrade decimal.Decimal
	schedule           *pricing.Schedule

	active []*holding

	totalBuyingPower decimal.Decimal
	netLiquidity     decimal.Decimal
	realizedPnL      decimal.Decimal
	totalFees        decimal.Decimal
	greeks           models.Greeks
}

// New creates a portfolio, loading the fee schedule for the configured
// pricing source. Configuration or schedule problems are construction errors.
func New(cfg Config, logger zerolog.Logger) (*Portfolio, error) {
	if !cfg.StartingCapital.IsPositive() {
		return nil, errors.Wrapf(errors.ErrConfigInvalid, "starting capital must be positive, got %s", cfg.StartingCapital)
	}
	if cfg.MaxCapitalToUse <= 0 || cfg.MaxCapitalToUse > 1 {
		return nil, errors.Wrapf(errors.ErrConfigInvalid, "max capital to use must be in (0, 1], got %v", cfg.MaxCapitalToUse)
	}
	if cfg.MaxCapitalToUsePerTrade <= 0 || cfg.MaxCapitalToUsePerTrade > 1 {
		return nil, errors.Wrapf(errors.ErrConfigInvalid, "max capital to use per trade must be in (0, 1], got %v", cfg.MaxCapitalToUsePerTrade)
	}

	schedule, err := pricing.Load(cfg.PricingConfigPath, cfg.PricingSource)
	if err != nil {
		return nil, errors.Wrap(err, "loading pricing schedule")
	}

	return &Portfolio{
		logger:             logger,
		startingCapital:    cfg.StartingCapital,
		maxCapitalToUse:    decimal.NewFromFloat(cfg.MaxCapitalToUse),
		maxCapitalPerTrade: decimal.NewFromFloat(cfg.MaxCapitalToUsePerTrade),
		schedule:           schedule,
		netLiquidity:       cfg.StartingCapital,
	}, nil
}

// Schedule returns the loaded fee/margin schedule, for callers that need to
// construct positions priced against the same brokerage.
func (p *Portfolio) Schedule() *pricing.Schedule {
	return p.schedule
}

// OnSignal evaluates a proposed position against available capital and admits
// or rejects it.
//
// A structurally invalid position is a reported validation error. A position
// that does not fit within the capital limits is dropped silently: rejection
// is a normal control-flow outcome, observable only through unchanged
// aggregates and position count.
func (p *Portfolio) OnSignal(ev *events.SignalEvent) error {
	position, strategy, err := ev.Consume()
	if err != nil {
		return err
	}
	if position == nil {
		return errors.NewValidationError("position", nil, "signal carries no position")
	}
	if strategy == nil {
		return errors.NewValidationError("strategy", nil, "signal carries no risk-management strategy")
	}
	if err := position.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	buyingPower := position.BuyingPowerRequirement()
	openFees := p.schedule.OpenFees(position.NumContracts())
	// Fees are part of the capital consumed to open: they are reserved
	// alongside the margin requirement at admission time.
	required := buyingPower.Add(openFees)

	available := p.startingCapital.Mul(p.maxCapitalToUse).Sub(p.totalBuyingPower)
	perTradeLimit := available.Mul(p.maxCapitalPerTrade)

	if required.GreaterThan(perTradeLimit) || required.GreaterThan(available) {
		logging.LogSignalRejected(p.logger, position.ID(), required.String(), available.String())
		return nil
	}

	p.active = append(p.active, &holding{
		position: position,
		strategy: strategy,
		openFees: openFees,
	})
	p.totalBuyingPower = p.totalBuyingPower.Add(required)
	p.totalFees = p.totalFees.Add(openFees)
	p.refreshGreeksAndLiquidity()

	logging.LogPositionOpened(p.logger, position.ID(), position.Ticker(), position.Quantity(), required.String())
	return nil
}

// UpdatePortfolio revalues every active position against the tick's quote
// chain, rebuilds the aggregates, then executes any closures the positions'
// risk-management strategies request.
//
// Legs in the chain that match no active position are ignored. Positions with
// no matching refreshed legs keep their previous values for this cycle.
func (p *Portfolio) UpdatePortfolio(ev *events.TickEvent) error {
	quotes, err := ev.Consume()
	if err != nil {
		return err
	}

	var asOf time.Time
	chain := make(map[models.InstrumentKey]models.Leg, len(quotes))
	for _, q := range quotes {
		chain[q.Key()] = q
		if q.DateTime.After(asOf) {
			asOf = q.DateTime
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.active {
		h.position.Refresh(chain)
	}
	p.reaggregate()

	// Closure pass. Decisions are independent per position; the final
	// aggregates reflect exactly the surviving set regardless of evaluation
	// order.
	survivors := make([]*holding, 0, len(p.active))
	for _, h := range p.active {
		if h.strategy.ShouldClose(h.position, asOf) {
			pnl := h.position.MarkToMarketPnL()
			closeFees := p.schedule.CloseFees(h.position.NumContracts())
			p.realizedPnL = p.realizedPnL.Add(pnl)
			p.totalFees = p.totalFees.Add(closeFees)
			logging.LogPositionClosed(p.logger, h.position.ID(), h.strategy.Name(), pnl.String())
			continue
		}
		survivors = append(survivors, h)
	}
	p.active = survivors
	p.reaggregate()

	logging.LogTick(p.logger, asOf, len(p.active), p.netLiquidity.String())
	return nil
}

// reaggregate rebuilds totalBuyingPower, the Greek aggregates, and net
// liquidity by full summation over the active set. Caller must hold the lock.
func (p *Portfolio) reaggregate() {
	total := decimal.Zero
	for _, h := range p.active {
		total = total.Add(h.position.BuyingPowerRequirement())
	}
	p.totalBuyingPower = total
	p.refreshGreeksAndLiquidity()
}

// refreshGreeksAndLiquidity rebuilds the Greek aggregates and net liquidity.
// Caller must hold the lock.
func (p *Portfolio) refreshGreeksAndLiquidity() {
	greeks := models.Greeks{}
	unrealized := decimal.Zero
	for _, h := range p.active {
		greeks = greeks.Add(h.position.Greeks())
		unrealized = unrealized.Add(h.position.MarkToMarketPnL())
	}
	p.greeks = greeks
	p.netLiquidity = p.startingCapital.
		Add(p.realizedPnL).
		Add(unrealized).
		Sub(p.totalFees)
}

// ActivePositionCount returns the number of open positions.
func (p *Portfolio) ActivePositionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// ActivePositions returns the open positions in insertion order.
func (p *Portfolio) ActivePositions() []positions.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]positions.Position, 0, len(p.active))
	for _, h := range p.active {
		out = append(out, h.position)
	}
	return out
}

// TotalBuyingPower returns the capital currently committed to open positions.
func (p *Portfolio) TotalBuyingPower() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalBuyingPower
}

// NetLiquidity returns starting capital plus realized and unrealized profit
// and loss, net of cumulative commissions and fees.
func (p *Portfolio) NetLiquidity() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.netLiquidity
}

// StartingCapital returns the capital the portfolio was constructed with.
func (p *Portfolio) StartingCapital() decimal.Decimal {
	return p.startingCapital
}

// TotalFees returns the cumulative commissions and fees charged to date.
func (p *Portfolio) TotalFees() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalFees
}

// RealizedPnL returns the profit and loss booked from closed positions.
func (p *Portfolio) RealizedPnL() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// Greeks returns the aggregate Greeks across active positions.
func (p *Portfolio) Greeks() models.Greeks {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.greeks
}

// TotalDelta returns the aggregate delta across active positions.
func (p *Portfolio) TotalDelta() float64 {
	return p.Greeks().Delta
}

// TotalGamma returns the aggregate gamma across active positions.
func (p *Portfolio) TotalGamma() float64 {
	return p.Greeks().Gamma
}

// TotalTheta returns the aggregate theta across active positions.
func (p *Portfolio) TotalTheta() float64 {
	return p.Greeks().Theta
}

// TotalVega returns the aggregate vega across active positions.
func (p *Portfolio) TotalVega() float64 {
	return p.Greeks().Vega
}
