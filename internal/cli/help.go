package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"momentum-trader/internal/config"
)

// addHelpCommands adds workflow documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newQuickstartCmd(app))
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Research a Symbol",
					commands: []string{
						"trader data import INFY infy.csv     # Store daily candles",
						"trader backtest INFY                 # Simulate with config parameters",
						"trader backtest INFY --weekly=false  # Without the weekly filter",
						"trader optimize INFY --top 5         # Search the parameter grid",
					},
				},
				{
					title: "Track Trades",
					commands: []string{
						"trader backtest INFY --accept --amount 25000  # Take the open signal",
						"trader trade add TCS 3990 20000 --sl-pct 5 --tp-pct 8",
						"trader refresh                                # Update prices, apply exits",
						"trader refresh --watch --every 15m            # Keep refreshing",
						"trader trade close 3f2a1c 4120 --notes \"took profit early\"",
					},
				},
				{
					title: "Review Performance",
					commands: []string{
						"trader stats                       # Win rate, P/L, Sharpe, drawdown",
						"trader report monthly              # Month by month",
						"trader report heatmap --year 2025  # Exit calendar",
						"trader report reasons --json       # Machine-readable breakdown",
					},
				},
				{
					title: "Backup and Restore",
					commands: []string{
						"trader export --output trades.json",
						"trader export --csv --output trades.csv",
						"trader import trades.json --mode replace --keep-active",
					},
				},
			}

			for _, ex := range examples {
				output.Bold(ex.title)
				for _, c := range ex.commands {
					parts := strings.SplitN(c, "#", 2)
					if len(parts) == 2 {
						output.Printf("  %s %s\n", output.Cyan(strings.TrimSpace(parts[0])), output.DimText(strings.TrimSpace(parts[1])))
					} else {
						output.Printf("  %s\n", output.Cyan(c))
					}
				}
				output.Println()
			}

			return nil
		},
	}
}

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Momentum Trader - Quick Start Guide")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{"Review the Configuration", "Strategy parameters, storage and the price feed live in one file.", "trader config show"},
				{"Load Price History", "Import daily candles from a CSV with date,open,high,low,close,volume columns.", "trader data import RELIANCE reliance.csv"},
				{"Backtest", "Run the oscillator strategy over the stored history.", "trader backtest RELIANCE"},
				{"Record a Trade", "Add a position with its stop-loss, target and square-off date.", "trader trade add RELIANCE 2450 50000 --sl-pct 5 --tp-pct 8"},
				{"Refresh Prices", "Fetch quotes and close trades that hit an exit rule.", "trader refresh --price RELIANCE=2510"},
				{"Check Statistics", "Summarize closed and open trades.", "trader stats"},
			}

			for i, s := range steps {
				output.Printf("%s %s\n", output.ColoredString(ColorBold, fmt.Sprintf("Step %d:", i+1)), s.title)
				output.Printf("   %s\n", s.desc)
				output.Printf("   %s\n", output.Cyan(s.cmd))
				output.Println()
			}

			output.Bold("Files")
			output.Printf("  %s - Strategy, storage and refresh settings\n", output.Cyan(config.ConfigPath(app.Config.Dir)))
			output.Printf("  %s - Price feed API key (TRADER_PRICE_FEED_KEY)\n", output.Cyan(".env"))
			output.Println()

			output.Bold("Getting Help")
			output.Printf("  %s - Common workflows\n", output.Cyan("trader examples"))
			output.Printf("  %s - Help for any command\n", output.Cyan("trader help <command>"))
			return nil
		},
	}
}

