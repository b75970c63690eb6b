// Package store provides data persistence implementations.
package store

import (
	"context"
	"time"
)

// Run describes one backtest execution.
type Run struct {
	ID              string
	StartedAt       time.Time
	QuotesFile      string
	PricingSource   string
	StartingCapital string // decimal string
}

// Snapshot is the portfolio state recorded after one tick. Currency values
// are decimal strings so nothing is lost to float conversion.
type Snapshot struct {
	RunID            string
	AsOf             time.Time
	NetLiquidity     string
	TotalBuyingPower string
	Delta            float64
	Gamma            float64
	Theta            float64
	Vega             float64
	ActivePositions  int
}

// ClosedPosition records a risk-management closure.
type ClosedPosition struct {
	RunID      string
	PositionID string
	Ticker     string
	ClosedAt   time.Time
	Reason     string
	PnL        string // decimal string
}

// Store persists backtest runs and their per-tick snapshots.
type Store interface {
	CreateRun(ctx context.Context, run Run) error
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	SaveClosedPosition(ctx context.Context, closed ClosedPosition) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context) ([]Run, error)
	GetSnapshots(ctx context.Context, runID string) ([]Snapshot, error)
	GetClosedPositions(ctx context.Context, runID string) ([]ClosedPosition, error)
	Close() error
}
