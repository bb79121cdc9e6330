package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"momentum-trader/internal/analysis/indicators"
	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/ledger"
	"momentum-trader/internal/models"
	"momentum-trader/internal/optimizer"
	"momentum-trader/internal/trading"
)

// addStrategyCommands adds backtest and optimizer commands.
func addStrategyCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newOptimizeCmd(app))
}

// backtestOutput is the JSON shape of the backtest command.
type backtestOutput struct {
	Symbol     string                  `json:"symbol"`
	Oscillator models.OscillatorParams `json:"oscillator"`
	Params     trading.BacktestParams  `json:"params"`
	Summary    trading.BacktestSummary `json:"summary"`
	Result     *trading.BacktestResult `json:"result"`
	AcceptedID string                  `json:"acceptedTradeId,omitempty"`
}

func newBacktestCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest <symbol>",
		Short: "Replay the oscillator strategy over daily price history",
		Long: `Replay the oscillator entry strategy over a symbol's daily price history.

Entries trigger when the daily oscillator is below the entry threshold and
turning up, optionally confirmed by a rising weekly oscillator. Exits are
take-profit, stop-loss or maximum holding days, checked in that order.
Unset flags fall back to the [backtest] and [oscillator] configuration.

With --accept, a trade still open at the end of the history is recorded in
the ledger as a real position.`,
		Example: `  trader backtest AAPL --file ./AAPL.csv
  trader backtest INFY --threshold -50 --take-profit 10 --stop-loss 4
  trader backtest TCS --accept --amount 50000 --currency INR`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			params := backtestParamsFromFlags(cmd, app.Config.BacktestParams())
			oscParams := oscillatorParamsFromFlags(cmd, app.Config.OscillatorParams())

			candles, err := app.loadHistory(ctx, cmd, symbol)
			if err != nil {
				return err
			}
			series, err := indicators.BuildSeries(symbol, candles, oscParams)
			if err != nil {
				return apperrors.Wrapf(err, "failed to compute oscillator for %s", symbol)
			}
			result, err := trading.Simulate(series, params)
			if err != nil {
				return err
			}
			summary := trading.Summarize(result)
			app.Logger.Debug().
				Str("symbol", symbol).
				Int("candles", len(candles)).
				Int("trades", summary.TotalTrades).
				Msg("Backtest completed")

			out := backtestOutput{
				Symbol:     symbol,
				Oscillator: oscParams,
				Params:     params,
				Summary:    summary,
				Result:     result,
			}

			if accept, _ := cmd.Flags().GetBool("accept"); accept {
				if result.ActiveTrade == nil {
					return fmt.Errorf("no open signal to accept for %s", symbol)
				}
				amount, _ := cmd.Flags().GetFloat64("amount")
				currency, _ := cmd.Flags().GetString("currency")
				l, err := app.Ledger(ctx)
				if err != nil {
					return err
				}
				in := ledger.InputFromSignal(symbol, *result.ActiveTrade, params, amount)
				in.CurrencyTag = currency
				in.Notes = fmt.Sprintf("Accepted signal (osc %s, weekly %s)",
					FormatOscillator(result.ActiveTrade.EntryOscillator),
					FormatOscillator(result.ActiveTrade.EntryWeeklyOscillator))
				id, err := l.Create(ctx, in)
				if err != nil {
					return err
				}
				out.AcceptedID = id
			}

			if output.IsJSON() {
				return output.JSON(out)
			}

			showTrades, _ := cmd.Flags().GetBool("trades")
			printBacktest(output, out, showTrades)
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "price history CSV (default: stored history)")
	cmd.Flags().Float64("threshold", 0, "entry threshold for the daily oscillator")
	cmd.Flags().Float64("take-profit", 0, "take-profit percentage")
	cmd.Flags().Float64("stop-loss", 0, "stop-loss percentage")
	cmd.Flags().Int("max-hold", 0, "maximum holding period in trading days")
	cmd.Flags().Bool("weekly", true, "require a rising weekly oscillator")
	cmd.Flags().Int("warmup", 0, "warm-up months before the first entry")
	cmd.Flags().Int("r", 0, "oscillator lookback period")
	cmd.Flags().Int("s", 0, "oscillator first smoothing period")
	cmd.Flags().Int("u", 0, "oscillator second smoothing period")
	cmd.Flags().Bool("trades", false, "list every simulated trade")
	cmd.Flags().Bool("accept", false, "record the open signal in the ledger")
	cmd.Flags().Float64("amount", 10000, "investment amount when accepting a signal")
	cmd.Flags().String("currency", "", "currency tag when accepting a signal")

	return cmd
}

// backtestParamsFromFlags overrides the configured parameters with the flags
// the user actually set.
func backtestParamsFromFlags(cmd *cobra.Command, params trading.BacktestParams) trading.BacktestParams {
	flags := cmd.Flags()
	if flags.Changed("threshold") {
		params.EntryThreshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("take-profit") {
		params.TakeProfitPercent, _ = flags.GetFloat64("take-profit")
	}
	if flags.Changed("stop-loss") {
		params.StopLossPercent, _ = flags.GetFloat64("stop-loss")
	}
	if flags.Changed("max-hold") {
		params.MaxHoldingDays, _ = flags.GetInt("max-hold")
	}
	if flags.Changed("weekly") {
		params.UseWeeklyFilter, _ = flags.GetBool("weekly")
	}
	if flags.Changed("warmup") {
		params.WarmupMonths, _ = flags.GetInt("warmup")
	}
	return params
}

func oscillatorParamsFromFlags(cmd *cobra.Command, params models.OscillatorParams) models.OscillatorParams {
	flags := cmd.Flags()
	if flags.Changed("r") {
		params.R, _ = flags.GetInt("r")
	}
	if flags.Changed("s") {
		params.S, _ = flags.GetInt("s")
	}
	if flags.Changed("u") {
		params.U, _ = flags.GetInt("u")
	}
	return params
}

func printBacktest(output *Output, out backtestOutput, showTrades bool) {
	s := out.Summary
	p := out.Params

	output.Bold("Backtest: %s", out.Symbol)
	output.Printf("  Oscillator:     SMI %d/%d/%d\n", out.Oscillator.R, out.Oscillator.S, out.Oscillator.U)
	output.Printf("  Entry:          osc < %.1f, turning up, weekly filter %v\n", p.EntryThreshold, p.UseWeeklyFilter)
	output.Printf("  Exits:          TP %.1f%%  SL %.1f%%  max %d days\n", p.TakeProfitPercent, p.StopLossPercent, p.MaxHoldingDays)
	output.Printf("  Entries from:   %s\n", FormatDate(s.WarmupEnd))
	output.Println()

	output.Bold("Summary")
	output.Printf("  Trades:         %d (%d won, %d lost)\n", s.TotalTrades, s.WinningTrades, s.LosingTrades)
	output.Printf("  Win Rate:       %.1f%%\n", s.WinRate)
	output.Printf("  Total Return:   %s\n", output.FormatPercent(s.TotalReturn))
	output.Printf("  Avg Return:     %s\n", output.FormatPercent(s.AvgReturn))
	output.Printf("  Avg Win/Loss:   %.2f%% / %.2f%%\n", s.AvgWin, s.AvgLoss)
	output.Printf("  Profit Factor:  %s\n", FormatRatio(s.ProfitFactor))
	output.Printf("  Longest Hold:   %d days\n", s.MaxHoldingDays)

	if showTrades && len(out.Result.CompletedTrades) > 0 {
		output.Println()
		table := NewTable(output, "ENTRY", "PRICE", "OSC", "EXIT", "PRICE", "REASON", "DAYS", "P/L")
		for _, t := range out.Result.CompletedTrades {
			table.AddRow(
				FormatDate(t.EntryDate),
				FormatPrice(t.EntryPrice),
				FormatOscillator(t.EntryOscillator),
				FormatOptionalDate(t.ExitDate),
				FormatPrice(t.ExitPrice),
				string(t.ExitReason),
				fmt.Sprintf("%d", t.HoldingDays),
				output.FormatPercent(t.PLPercent),
			)
		}
		table.Render()
	}

	if open := out.Result.ActiveTrade; open != nil {
		output.Println()
		output.Info("Open signal since %s at %s (%s, %d days)",
			FormatDate(open.EntryDate), FormatPrice(open.EntryPrice),
			FormatPercent(open.CurrentPLPercent), open.HoldingDays)
		if out.AcceptedID != "" {
			output.Success("Recorded in ledger as %s", shortID(out.AcceptedID))
		} else {
			output.Dim("Use --accept to record it in the ledger")
		}
	}
}

func newOptimizeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize <symbol>",
		Short: "Search the oscillator and strategy parameter grid",
		Long: `Run the backtest for every combination of the [optimizer.ranges] grid and
rank the results by total return x win rate x profit factor. Combinations
with fewer completed trades than --min-trades are not eligible.`,
		Example: `  trader optimize AAPL --file ./AAPL.csv --top 5
  trader optimize INFY --workers 4 --min-trades 8`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 0)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			candles, err := app.loadHistory(ctx, cmd, symbol)
			if err != nil {
				return err
			}

			cfg := app.Config.Optimizer
			workers := cfg.Workers
			if cmd.Flags().Changed("workers") {
				workers, _ = cmd.Flags().GetInt("workers")
			}
			minTrades := cfg.MinTrades
			if cmd.Flags().Changed("min-trades") {
				minTrades, _ = cmd.Flags().GetInt("min-trades")
			}
			weekly := app.Config.Backtest.UseWeeklyFilter
			if cmd.Flags().Changed("weekly") {
				weekly, _ = cmd.Flags().GetBool("weekly")
			}

			opt := optimizer.New(indicators.NewFeed(),
				optimizer.WithWorkers(workers),
				optimizer.WithMinTrades(minTrades),
				optimizer.WithMaxCombinations(cfg.MaxCombinations),
				optimizer.WithWeeklyFilter(weekly),
				optimizer.WithWarmupMonths(app.Config.Backtest.WarmupMonths),
				optimizer.WithLogger(app.Logger),
			)

			size, err := cfg.Ranges.Size()
			if err != nil {
				return err
			}
			if !output.IsJSON() {
				output.Info("Searching %d combinations for %s...", size, symbol)
			}
			report, err := opt.Run(ctx, symbol, candles, cfg.Ranges)
			if err != nil && !errors.Is(err, apperrors.ErrNoQualifyingResult) {
				return err
			}

			top, _ := cmd.Flags().GetInt("top")
			if output.IsJSON() {
				if top > 0 && len(report.Results) > top {
					trimmed := *report
					trimmed.Results = report.Results[:top]
					report = &trimmed
				}
				if jerr := output.JSON(report); jerr != nil {
					return jerr
				}
				return err
			}

			printOptimization(output, report, top)
			return err
		},
	}

	cmd.Flags().StringP("file", "f", "", "price history CSV (default: stored history)")
	cmd.Flags().Int("workers", 0, "parallel workers (default: one per CPU)")
	cmd.Flags().Int("min-trades", 0, "minimum completed trades for a result to qualify")
	cmd.Flags().Bool("weekly", true, "require a rising weekly oscillator")
	cmd.Flags().Int("top", 10, "number of ranked results to show")

	return cmd
}

func printOptimization(output *Output, report *optimizer.Report, top int) {
	output.Printf("  Combinations: %d  Qualified: %d  Failed: %d  Time: %s\n",
		report.Combinations, report.Qualified, report.Failed, FormatDuration(report.Duration))
	output.Println()

	if report.Best == nil {
		output.Warning("No combination produced at least %d trades", report.MinTrades)
		return
	}

	best := report.Best
	output.Bold("Best parameters")
	output.Printf("  Oscillator:     SMI %d/%d/%d\n", best.Oscillator.R, best.Oscillator.S, best.Oscillator.U)
	output.Printf("  Entry:          %.1f\n", best.Backtest.EntryThreshold)
	output.Printf("  Exits:          TP %.1f%%  SL %.1f%%  max %d days\n",
		best.Backtest.TakeProfitPercent, best.Backtest.StopLossPercent, best.Backtest.MaxHoldingDays)
	output.Printf("  Score:          %.2f\n", best.Score)
	output.Printf("  Trades:         %d  Win Rate %.1f%%  Return %s  PF %s\n",
		best.Summary.TotalTrades, best.Summary.WinRate,
		output.FormatPercent(best.Summary.TotalReturn), FormatRatio(best.Summary.ProfitFactor))
	output.Println()

	table := NewTable(output, "#", "R/S/U", "ENTRY", "TP", "SL", "HOLD", "TRADES", "WIN%", "RETURN", "PF", "SCORE")
	for i, r := range report.Results {
		if top > 0 && i >= top {
			break
		}
		if !r.Qualified {
			break
		}
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%d/%d/%d", r.Oscillator.R, r.Oscillator.S, r.Oscillator.U),
			fmt.Sprintf("%.1f", r.Backtest.EntryThreshold),
			fmt.Sprintf("%.1f", r.Backtest.TakeProfitPercent),
			fmt.Sprintf("%.1f", r.Backtest.StopLossPercent),
			fmt.Sprintf("%d", r.Backtest.MaxHoldingDays),
			fmt.Sprintf("%d", r.Summary.TotalTrades),
			fmt.Sprintf("%.1f", r.Summary.WinRate),
			output.FormatPercent(r.Summary.TotalReturn),
			FormatRatio(r.Summary.ProfitFactor),
			fmt.Sprintf("%.2f", r.Score),
		)
	}
	table.Render()
}
