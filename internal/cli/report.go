package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"options-backtester/pkg/utils"
)

// newReportCmd creates the `report` command: summarize stored runs.
func newReportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Summarize stored backtest runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.Store == nil {
				return fmt.Errorf("results store is not available")
			}

			if len(args) == 0 {
				return listRuns(cmd, app)
			}
			return showRun(cmd, app, args[0])
		},
	}

	return cmd
}

func listRuns(cmd *cobra.Command, app *App) error {
	runs, err := app.Store.ListRuns(cmd.Context())
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs.")
		return nil
	}

	for _, run := range runs {
		fmt.Printf("%s  %s  %s  capital=%s\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"), run.PricingSource, run.StartingCapital)
	}
	return nil
}

func showRun(cmd *cobra.Command, app *App, runID string) error {
	run, err := app.Store.GetRun(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("fetching run: %w", err)
	}

	snaps, err := app.Store.GetSnapshots(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("fetching snapshots: %w", err)
	}

	closed, err := app.Store.GetClosedPositions(cmd.Context(), runID)
	if err != nil {
		return fmt.Errorf("fetching closures: %w", err)
	}

	fmt.Printf("Run %s (%s, %s)\n", run.ID, run.StartedAt.Format("2006-01-02"), run.PricingSource)
	fmt.Printf("Starting capital: %s\n", run.StartingCapital)
	fmt.Printf("Snapshots: %d, closures: %d\n\n", len(snaps), len(closed))

	for _, snap := range snaps {
		netLiq, err := decimal.NewFromString(snap.NetLiquidity)
		if err != nil {
			return fmt.Errorf("parsing net liquidity: %w", err)
		}
		fmt.Printf("%s  net=%s  bp=%s  positions=%d  delta=%.4f\n",
			snap.AsOf.Format("2006-01-02"), utils.FormatUSD(netLiq), snap.TotalBuyingPower,
			snap.ActivePositions, snap.Delta)
	}

	if len(closed) > 0 {
		fmt.Println()
		for _, c := range closed {
			fmt.Printf("closed %s  %s  %s  pnl=%s\n",
				c.ClosedAt.Format("2006-01-02"), c.Ticker, c.Reason, c.PnL)
		}
	}
	return nil
}
