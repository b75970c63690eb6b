package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"options-backtester/internal/backtest"
	"options-backtester/internal/datahandler"
	"options-backtester/internal/portfolio"
	"options-backtester/internal/pricing"
	"options-backtester/pkg/utils"
)

// newRunCmd creates the `run` command: execute a backtest over a chain file.
func newRunCmd(app *App) *cobra.Command {
	var quotesFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest over a historical option-chain file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if quotesFile == "" {
				quotesFile = app.Config.Data.QuotesFile
			}
			if quotesFile == "" {
				return fmt.Errorf("no quotes file configured; set data.quotes_file or pass --quotes")
			}

			data, err := datahandler.NewCSVHandler(quotesFile)
			if err != nil {
				return fmt.Errorf("loading quotes: %w", err)
			}

			pf, err := portfolio.New(portfolio.Config{
				StartingCapital:         decimal.NewFromFloat(app.Config.Portfolio.StartingCapital),
				MaxCapitalToUse:         app.Config.Portfolio.MaxCapitalToUse,
				MaxCapitalToUsePerTrade: app.Config.Portfolio.MaxCapitalToUsePerTrade,
				PricingSource:           app.Config.Portfolio.PricingSource,
				PricingConfigPath:       app.Config.Portfolio.PricingConfigPath,
			}, app.Logger)
			if err != nil {
				return fmt.Errorf("constructing portfolio: %w", err)
			}

			margin := pricing.NewPercentOfUnderlying(pf.Schedule().Margin())
			scanner := backtest.NewStrangleScanner(app.Config.Strategy, margin)
			session := backtest.NewSession(data, pf, scanner, app.Store, quotesFile, app.Logger)

			result, err := session.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("running backtest: %w", err)
			}

			fmt.Printf("Run:             %s\n", result.RunID)
			fmt.Printf("Ticks processed: %d\n", result.Ticks)
			fmt.Printf("Positions:       %d opened, %d closed\n", result.PositionsOpened, result.PositionsClosed)
			fmt.Printf("Net liquidity:   %s\n", utils.FormatUSD(result.FinalNetLiquidity))
			fmt.Printf("Total return:    %s\n", utils.FormatPercent(result.TotalReturnPct))
			fmt.Printf("Max drawdown:    %s\n", utils.FormatPercent(result.MaxDrawdownPct))
			return nil
		},
	}

	cmd.Flags().StringVar(&quotesFile, "quotes", "", "option-chain CSV file (overrides config)")

	return cmd
}
