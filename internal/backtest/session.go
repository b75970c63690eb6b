// Package backtest runs the event loop that drives a portfolio through
// historical market data: one tick at a time, revalue, then scan for new
// signals, recording the portfolio state after every cycle.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"options-backtester/internal/datahandler"
	"options-backtester/internal/portfolio"
	"options-backtester/internal/positions"
	"options-backtester/internal/store"
)

// EquityPoint is one point on the net-liquidity curve.
type EquityPoint struct {
	AsOf         time.Time
	NetLiquidity decimal.Decimal
}

// Result summarizes a finished backtest run.
type Result struct {
	RunID             string
	Ticks             int
	SignalsEmitted    int
	PositionsOpened   int
	PositionsClosed   int
	FinalNetLiquidity decimal.Decimal
	TotalReturnPct    float64
	MaxDrawdownPct    float64
	EquityCurve       []EquityPoint
}

// Session wires a data handler, a signal generator, and a portfolio into a
// single sequential event loop. The store is optional; when present, the
// session persists a snapshot per tick and a record per closure.
type Session struct {
	data      datahandler.DataHandler
	portfolio *portfolio.Portfolio
	generator SignalGenerator
	store     store.Store
	logger    zerolog.Logger

	runID      string
	quotesFile string
}

// NewSession creates a backtest session.
func NewSession(data datahandler.DataHandler, pf *portfolio.Portfolio, generator SignalGenerator, st store.Store, quotesFile string, logger zerolog.Logger) *Session {
	return &Session{
		data:       data,
		portfolio:  pf,
		generator:  generator,
		store:      st,
		logger:     logger,
		runID:      uuid.New().String(),
		quotesFile: quotesFile,
	}
}

// RunID returns the session's run identifier.
func (s *Session) RunID() string {
	return s.runID
}

// Run processes every tick to completion. Events are handled strictly in
// order: each tick's revaluation and closures finish before signal
// generation, and each signal is admitted or rejected before the next event.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	if s.store != nil {
		run := store.Run{
			ID:              s.runID,
			StartedAt:       time.Now(),
			QuotesFile:      s.quotesFile,
			PricingSource:   s.portfolio.Schedule().Brokerage(),
			StartingCapital: s.portfolio.StartingCapital().String(),
		}
		if err := s.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("recording run: %w", err)
		}
	}

	result := &Result{RunID: s.runID}
	peak := s.portfolio.NetLiquidity()

	for s.data.HasNext() {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		tick, err := s.data.Next()
		if err != nil {
			return result, fmt.Errorf("reading tick: %w", err)
		}
		quotes := tick.Quotes()
		asOf := tick.When()
		result.Ticks++

		before := s.portfolio.ActivePositions()
		if err := s.portfolio.UpdatePortfolio(tick); err != nil {
			return result, fmt.Errorf("updating portfolio: %w", err)
		}
		closed := s.closedSince(before)
		result.PositionsClosed += len(closed)

		if s.store != nil {
			for _, c := range closed {
				rec := store.ClosedPosition{
					RunID:      s.runID,
					PositionID: c.ID(),
					Ticker:     c.Ticker(),
					ClosedAt:   asOf,
					Reason:     "risk_management",
					PnL:        c.MarkToMarketPnL().String(),
				}
				if err := s.store.SaveClosedPosition(ctx, rec); err != nil {
					return result, fmt.Errorf("recording closure: %w", err)
				}
			}
		}

		for _, signal := range s.generator.OnTick(quotes, asOf, s.portfolio.ActivePositionCount()) {
			result.SignalsEmitted++
			countBefore := s.portfolio.ActivePositionCount()
			if err := s.portfolio.OnSignal(signal); err != nil {
				// Structurally invalid signals abort the run; a capital
				// rejection is not an error and does not reach here.
				return result, fmt.Errorf("processing signal: %w", err)
			}
			if s.portfolio.ActivePositionCount() > countBefore {
				result.PositionsOpened++
			}
		}

		netLiq := s.portfolio.NetLiquidity()
		result.EquityCurve = append(result.EquityCurve, EquityPoint{AsOf: asOf, NetLiquidity: netLiq})
		if netLiq.GreaterThan(peak) {
			peak = netLiq
		}
		if peak.IsPositive() {
			drawdown, _ := peak.Sub(netLiq).Div(peak).Float64()
			if drawdown*100 > result.MaxDrawdownPct {
				result.MaxDrawdownPct = drawdown * 100
			}
		}

		if s.store != nil {
			greeks := s.portfolio.Greeks()
			snap := store.Snapshot{
				RunID:            s.runID,
				AsOf:             asOf,
				NetLiquidity:     netLiq.String(),
				TotalBuyingPower: s.portfolio.TotalBuyingPower().String(),
				Delta:            greeks.Delta,
				Gamma:            greeks.Gamma,
				Theta:            greeks.Theta,
				Vega:             greeks.Vega,
				ActivePositions:  s.portfolio.ActivePositionCount(),
			}
			if err := s.store.SaveSnapshot(ctx, snap); err != nil {
				return result, fmt.Errorf("recording snapshot: %w", err)
			}
		}
	}

	result.FinalNetLiquidity = s.portfolio.NetLiquidity()
	returnPct, _ := result.FinalNetLiquidity.
		Sub(s.portfolio.StartingCapital()).
		Div(s.portfolio.StartingCapital()).
		Float64()
	result.TotalReturnPct = returnPct * 100

	s.logger.Info().
		Str("run_id", s.runID).
		Int("ticks", result.Ticks).
		Int("opened", result.PositionsOpened).
		Int("closed", result.PositionsClosed).
		Str("final_net_liquidity", result.FinalNetLiquidity.String()).
		Msg("Backtest finished")

	return result, nil
}

// closedSince returns the positions present in before but no longer active.
func (s *Session) closedSince(before []positions.Position) []positions.Position {
	activeNow := make(map[string]bool)
	for _, p := range s.portfolio.ActivePositions() {
		activeNow[p.ID()] = true
	}

	var closed []positions.Position
	for _, p := range before {
		if !activeNow[p.ID()] {
			closed = append(closed, p)
		}
	}
	return closed
}
