package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"momentum-trader/internal/analytics"
)

// addAnalyticsCommands adds the statistics and report commands.
func addAnalyticsCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatsCmd(app))

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Performance reports over closed trades",
	}
	reportCmd.AddCommand(newReportCmd(app, "equity", "Equity curve by exit date", printEquity))
	reportCmd.AddCommand(newReportCmd(app, "drawdown", "Drawdown below the running equity peak", printDrawdown))
	reportCmd.AddCommand(newReportCmd(app, "monthly", "Performance by exit month", printMonthly))
	reportCmd.AddCommand(newReportCmd(app, "histogram", "P/L distribution in 5% bins", printHistogram))
	reportCmd.AddCommand(newReportCmd(app, "reasons", "Breakdown by exit reason", printReasons))
	reportCmd.AddCommand(newReportCmd(app, "markets", "Breakdown by currency", printMarkets))
	reportCmd.AddCommand(newReportCmd(app, "holding", "Performance by holding period", printHolding))
	reportCmd.AddCommand(newReportCmd(app, "sizes", "Trade size against return", printSizes))
	reportCmd.AddCommand(newHeatmapCmd(app))
	rootCmd.AddCommand(reportCmd)
}

func newStatsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show ledger statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			cache, err := app.Analytics(ctx)
			if err != nil {
				return err
			}
			report := cache.Report()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"stats":       report.Stats,
					"sharpeRatio": report.SharpeRatio,
					"drawdown":    report.Drawdown,
					"expectancy":  report.Expectancy,
					"streaks":     report.Streaks,
				})
			}
			printStats(output, report)
			return nil
		},
	}
}

func printStats(output *Output, r *analytics.Report) {
	s := r.Stats
	output.Bold("Trades")
	output.Printf("  Total:          %d (%d active, %d closed)\n", s.TotalTrades, s.ActiveTrades, s.ClosedTrades)
	output.Printf("  Won / Lost:     %d / %d\n", s.WinningTrades, s.LosingTrades)
	output.Println()

	output.Bold("Closed")
	output.Printf("  Win Rate:       %.1f%%\n", s.WinRate)
	output.Printf("  Avg P/L:        %s\n", output.FormatPercent(s.AvgPLPercent))
	output.Printf("  Avg Win/Loss:   %.2f%% / %.2f%%\n", s.AvgWinPercent, s.AvgLossPercent)
	output.Printf("  Best / Worst:   %s / %s\n", output.FormatPercent(s.BestTradePercent), output.FormatPercent(s.WorstTradePercent))
	output.Printf("  Realized P/L:   %s\n", output.FormatPnL(s.RealizedPLValue, ""))
	output.Printf("  Profit Factor:  %s\n", FormatRatio(s.ProfitFactor))
	output.Printf("  Expectancy:     %.2f%%\n", r.Expectancy)
	output.Printf("  Sharpe Ratio:   %.2f\n", r.SharpeRatio)
	output.Printf("  Max Drawdown:   %.2f%%", r.Drawdown.MaxPercent)
	if r.Drawdown.MaxPercent > 0 {
		output.Printf(" (%s to %s, %d days)", FormatDate(r.Drawdown.PeakDate), FormatDate(r.Drawdown.TroughDate), r.Drawdown.Days)
	}
	output.Println()
	output.Printf("  Streaks:        longest win %d, longest loss %d", r.Streaks.LongestWin, r.Streaks.LongestLoss)
	if r.Streaks.CurrentKind != analytics.StreakNone {
		output.Printf(", current %d %s", r.Streaks.CurrentLength, r.Streaks.CurrentKind)
	}
	output.Println()
	output.Println()

	output.Bold("Open")
	output.Printf("  Invested:       %s\n", FormatMoney(s.TotalInvested, ""))
	output.Printf("  Open P/L:       %s (%s)\n", output.FormatPnL(s.OpenPLValue, ""), output.FormatPercent(s.OpenPLPercent))
}

// newReportCmd builds a report subcommand that prints one view of the cached
// analytics report, or the whole view as JSON.
func newReportCmd(app *App, name, short string, print func(*Output, *analytics.Report) interface{}) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			cache, err := app.Analytics(ctx)
			if err != nil {
				return err
			}
			report := cache.Report()
			if output.IsJSON() {
				return output.JSON(print(nil, report))
			}
			print(output, report)
			return nil
		},
	}
}

// Each printer returns its view; a nil output only selects the view.

func printEquity(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.Equity
	}
	if len(r.Equity) == 0 {
		output.Dim("No closed trades")
		return nil
	}
	table := NewTable(output, "DATE", "EQUITY", "RETURN")
	for _, p := range r.Equity {
		date := FormatDate(p.Date)
		if p.Current {
			date += " (open)"
		}
		table.AddRow(date, output.FormatPnL(p.EquityValue, ""), output.FormatPercent(p.EquityPercent))
	}
	table.Render()
	return nil
}

func printDrawdown(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return map[string]interface{}{"max": r.Drawdown, "curve": r.DrawdownCurve}
	}
	if len(r.DrawdownCurve) == 0 {
		output.Dim("No closed trades")
		return nil
	}
	table := NewTable(output, "DATE", "DRAWDOWN", "")
	for _, p := range r.DrawdownCurve {
		table.AddRow(FormatDate(p.Date), fmt.Sprintf("%.2f%%", p.DrawdownPercent), bar(p.DrawdownPercent, 2))
	}
	table.Render()
	output.Println()
	output.Printf("Max drawdown %.2f%% over %d days\n", r.Drawdown.MaxPercent, r.Drawdown.Days)
	return nil
}

func printMonthly(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.Monthly
	}
	if len(r.Monthly) == 0 {
		output.Dim("No closed trades")
		return nil
	}
	table := NewTable(output, "MONTH", "TRADES", "WINS", "WIN%", "AVG P/L", "TOTAL")
	for _, m := range r.Monthly {
		table.AddRow(m.Month, fmt.Sprintf("%d", m.Trades), fmt.Sprintf("%d", m.Wins),
			fmt.Sprintf("%.1f", m.WinRate), output.FormatPercent(m.AvgPLPercent), output.FormatPnL(m.TotalPLValue, ""))
	}
	table.Render()
	return nil
}

func printHistogram(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.Histogram
	}
	table := NewTable(output, "RANGE", "COUNT", "")
	for _, b := range r.Histogram {
		table.AddRow(fmt.Sprintf("%+.0f%% .. %+.0f%%", b.Lower, b.Upper), fmt.Sprintf("%d", b.Count), bar(float64(b.Count), 1))
	}
	table.Render()
	return nil
}

func printReasons(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.ExitReasons
	}
	printBreakdown(output, "REASON", r.ExitReasons)
	return nil
}

func printMarkets(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.Currencies
	}
	printBreakdown(output, "CURRENCY", r.Currencies)
	return nil
}

func printBreakdown(output *Output, keyHeader string, rows []analytics.Breakdown) {
	if len(rows) == 0 {
		output.Dim("No closed trades")
		return
	}
	table := NewTable(output, keyHeader, "TRADES", "SHARE", "WIN%", "AVG P/L", "TOTAL", "INVESTED")
	for _, b := range rows {
		table.AddRow(b.Key, fmt.Sprintf("%d", b.Trades), fmt.Sprintf("%.1f%%", b.Percent),
			fmt.Sprintf("%.1f", b.WinRate), output.FormatPercent(b.AvgPLPercent),
			output.FormatPnL(b.TotalPLValue, ""), FormatMoney(b.Invested, ""))
	}
	table.Render()
}

func printHolding(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.Holding
	}
	table := NewTable(output, "PERIOD", "DAYS", "TRADES", "AVG P/L", "WIN%")
	for _, b := range r.Holding {
		days := fmt.Sprintf("%d+", b.MinDays)
		if b.MaxDays > 0 {
			days = fmt.Sprintf("%d-%d", b.MinDays, b.MaxDays)
		}
		table.AddRow(b.Label, days, fmt.Sprintf("%d", b.Count), output.FormatPercent(b.AvgPLPercent), fmt.Sprintf("%.1f", b.WinRate))
	}
	table.Render()
	return nil
}

func printSizes(output *Output, r *analytics.Report) interface{} {
	if output == nil {
		return r.Sizes
	}
	if len(r.Sizes) == 0 {
		output.Dim("No closed trades")
		return nil
	}
	table := NewTable(output, "ID", "SYMBOL", "INVESTED", "P/L")
	for _, p := range r.Sizes {
		table.AddRow(shortID(p.TradeID), p.Symbol, FormatMoney(p.InvestmentAmount, ""), output.FormatPercent(p.PLPercent))
	}
	table.Render()
	return nil
}

func newHeatmapCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Average P/L per exit day over a calendar year",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			year, _ := cmd.Flags().GetInt("year")
			if year == 0 {
				year = time.Now().Year()
			}
			cache, err := app.Analytics(ctx)
			if err != nil {
				return err
			}
			days := cache.Heatmap(year)
			if output.IsJSON() {
				return output.JSON(days)
			}
			printHeatmap(output, year, days)
			return nil
		},
	}
	cmd.Flags().Int("year", 0, "calendar year (default: current year)")
	return cmd
}

// printHeatmap prints one row per month with a cell per day: '+' for a
// positive average, '-' for a negative one, 'o' for flat and '.' without exits.
func printHeatmap(output *Output, year int, days []analytics.HeatmapDay) {
	output.Bold("Exits in %d", year)
	var row strings.Builder
	month := time.Month(0)
	flush := func() {
		if row.Len() > 0 {
			output.Printf("  %s  %s\n", month.String()[:3], row.String())
			row.Reset()
		}
	}
	for _, d := range days {
		if d.Date.Month() != month {
			flush()
			month = d.Date.Month()
		}
		switch {
		case d.Trades == 0:
			row.WriteString(".")
		case d.AvgPLPercent > 0:
			row.WriteString(output.Green("+"))
		case d.AvgPLPercent < 0:
			row.WriteString(output.Red("-"))
		default:
			row.WriteString("o")
		}
	}
	flush()
}

// bar renders a proportional bar of value/unit characters, capped at 40.
func bar(value, unit float64) string {
	n := int(value / unit)
	if n < 0 {
		n = 0
	}
	if n > 40 {
		n = 40
	}
	return strings.Repeat("#", n)
}
