package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"momentum-trader/internal/ledger"
	"momentum-trader/internal/models"
)

// addLedgerCommands adds trade ledger commands.
func addLedgerCommands(rootCmd *cobra.Command, app *App) {
	tradeCmd := &cobra.Command{
		Use:     "trade",
		Aliases: []string{"trades"},
		Short:   "Manage the trade ledger",
		Long: `Record real positions and track them until they exit.

Active trades close automatically when a refreshed or edited price reaches
the stop-loss, then the target, then the square-off date.`,
	}
	tradeCmd.AddCommand(newTradeAddCmd(app))
	tradeCmd.AddCommand(newTradeListCmd(app))
	tradeCmd.AddCommand(newTradeShowCmd(app))
	tradeCmd.AddCommand(newTradeEditCmd(app))
	tradeCmd.AddCommand(newTradeCloseCmd(app))
	tradeCmd.AddCommand(newTradeDeleteCmd(app))
	tradeCmd.AddCommand(newTradeClearHistoryCmd(app))
	rootCmd.AddCommand(tradeCmd)

	rootCmd.AddCommand(newRefreshCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newImportCmd(app))
}

func newTradeAddCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <symbol> <entry-price> <investment>",
		Short: "Record a new active trade",
		Example: `  trader trade add INFY 1500 50000 --sl-pct 5 --target 1650 --currency INR
  trader trade add AAPL 190.5 10000 --sl 180 --tp-pct 8 --square-off 2026-12-31`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			entryPrice, err := parseAmount("entry price", args[1])
			if err != nil {
				return err
			}
			investment, err := parseAmount("investment", args[2])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			in := ledger.CreateInput{
				Symbol:           args[0],
				EntryPrice:       entryPrice,
				InvestmentAmount: investment,
			}
			in.StockName, _ = flags.GetString("name")
			in.CurrencyTag, _ = flags.GetString("currency")
			in.StopLossPrice, _ = flags.GetFloat64("sl")
			in.StopLossPercent, _ = flags.GetFloat64("sl-pct")
			in.TargetPrice, _ = flags.GetFloat64("target")
			in.TakeProfitPercent, _ = flags.GetFloat64("tp-pct")
			in.EntryOscillator, _ = flags.GetFloat64("osc")
			in.EntryWeeklyOscillator, _ = flags.GetFloat64("weekly-osc")
			in.Notes, _ = flags.GetString("notes")
			if s, _ := flags.GetString("date"); s != "" {
				if in.EntryDate, err = parseDate(s); err != nil {
					return err
				}
			}
			if s, _ := flags.GetString("square-off"); s != "" {
				d, err := parseDate(s)
				if err != nil {
					return err
				}
				in.SquareOffDate = &d
			}

			l, err := app.Ledger(ctx)
			if err != nil {
				return err
			}
			id, err := l.Create(ctx, in)
			if err != nil {
				output.Error("Failed to record trade: %v", err)
				return err
			}
			trade, err := l.Get(id)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(trade)
			}
			output.Success("Trade recorded: %s", trade.ID)
			printTrade(output, trade)
			return nil
		},
	}

	cmd.Flags().String("name", "", "display name (default: symbol)")
	cmd.Flags().String("currency", "", "currency tag, e.g. INR or USD")
	cmd.Flags().String("date", "", "entry date YYYY-MM-DD (default: today)")
	cmd.Flags().Float64("sl", 0, "stop-loss price")
	cmd.Flags().Float64("sl-pct", 0, "stop-loss percentage below entry")
	cmd.Flags().Float64("target", 0, "target price")
	cmd.Flags().Float64("tp-pct", 0, "take-profit percentage above entry")
	cmd.Flags().String("square-off", "", "square-off date YYYY-MM-DD")
	cmd.Flags().Float64("osc", 0, "daily oscillator reading at entry")
	cmd.Flags().Float64("weekly-osc", 0, "weekly oscillator reading at entry")
	cmd.Flags().String("notes", "", "free-form notes")

	return cmd
}

func newTradeListCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			l, err := app.Ledger(ctx)
			if err != nil {
				return err
			}

			status, _ := cmd.Flags().GetString("status")
			var trades []models.LedgerTrade
			switch strings.ToLower(status) {
			case "active":
				trades = l.Active()
			case "closed":
				trades = l.Closed()
			case "", "all":
				trades = l.All()
			default:
				return fmt.Errorf("unknown status %q (use active, closed or all)", status)
			}

			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Dim("No trades")
				return nil
			}

			table := NewTable(output, "ID", "SYMBOL", "STATUS", "ENTRY", "PRICE", "CURRENT", "VALUE", "P/L", "DAYS", "EXIT")
			for _, t := range trades {
				current, pct, pnl := t.CurrentPrice, t.CurrentPLPercent, t.CurrentPLValue
				exit := "-"
				if !t.IsActive() {
					current, pct, pnl = t.ExitPrice, t.PLPercent, t.PLValue
					exit = string(t.ExitReason)
				}
				table.AddRow(
					shortID(t.ID),
					t.Symbol,
					string(t.Status),
					FormatDate(t.EntryDate),
					FormatPrice(t.EntryPrice),
					FormatPrice(current),
					FormatMoney(t.CurrentValue, t.CurrencyTag),
					fmt.Sprintf("%s %s", output.FormatPercent(pct), output.FormatPnL(pnl, t.CurrencyTag)),
					fmt.Sprintf("%d", t.HoldingDays),
					exit,
				)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("status", "all", "filter by status: active, closed or all")
	return cmd
}

func newTradeShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			l, id, err := app.resolveTrade(ctx, args[0])
			if err != nil {
				return err
			}
			trade, err := l.Get(id)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trade)
			}
			printTrade(output, trade)
			return nil
		},
	}
}

func newTradeEditCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Edit entry, stop, target, square-off date or notes",
		Long: `Edit an active trade. Changing the entry price recomputes the stop and
target percentages against the new entry while keeping absolute prices.
The trade closes immediately if the edit crosses an exit level.
Closed trades accept note edits only.`,
		Example: `  trader trade edit 3f2a9c1d --sl 1420 --target 1700
  trader trade edit 3f2a9c1d --clear-square-off --notes "holding through results"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			var patch ledger.Patch
			flags := cmd.Flags()
			if flags.Changed("entry") {
				v, _ := flags.GetFloat64("entry")
				patch.EntryPrice = &v
			}
			if flags.Changed("sl") {
				v, _ := flags.GetFloat64("sl")
				patch.StopLossPrice = &v
			}
			if flags.Changed("target") {
				v, _ := flags.GetFloat64("target")
				patch.TargetPrice = &v
			}
			if flags.Changed("square-off") {
				s, _ := flags.GetString("square-off")
				d, err := parseDate(s)
				if err != nil {
					return err
				}
				patch.SquareOffDate = &d
			}
			patch.ClearSquareOffDate, _ = flags.GetBool("clear-square-off")
			if flags.Changed("notes") {
				v, _ := flags.GetString("notes")
				patch.Notes = &v
			}

			l, id, err := app.resolveTrade(ctx, args[0])
			if err != nil {
				return err
			}
			trade, err := l.Edit(ctx, id, patch)
			if err != nil {
				output.Error("Edit failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(trade)
			}
			if trade.IsActive() {
				output.Success("Trade %s updated", shortID(trade.ID))
			} else {
				output.Warning("Trade %s is closed: %s", shortID(trade.ID), trade.ExitReason)
			}
			printTrade(output, trade)
			return nil
		},
	}

	cmd.Flags().Float64("entry", 0, "new entry price")
	cmd.Flags().Float64("sl", 0, "new stop-loss price")
	cmd.Flags().Float64("target", 0, "new target price")
	cmd.Flags().String("square-off", "", "new square-off date YYYY-MM-DD")
	cmd.Flags().Bool("clear-square-off", false, "remove the square-off date")
	cmd.Flags().String("notes", "", "replace the notes")

	return cmd
}

func newTradeCloseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "close <id> <exit-price>",
		Short:   "Close an active trade manually",
		Example: `  trader trade close 3f2a9c1d 1585 --reason "Results risk" --notes "booked early"`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			exitPrice, err := parseAmount("exit price", args[1])
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			notes, _ := cmd.Flags().GetString("notes")

			l, id, err := app.resolveTrade(ctx, args[0])
			if err != nil {
				return err
			}
			trade, err := l.Close(ctx, id, exitPrice, models.ExitReason(reason), notes)
			if err != nil {
				output.Error("Close failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(trade)
			}
			output.Success("Closed %s %s at %s: %s (%s)",
				shortID(trade.ID), trade.Symbol, FormatPrice(trade.ExitPrice),
				output.FormatPercent(trade.PLPercent), output.FormatPnL(trade.PLValue, trade.CurrencyTag))
			return nil
		},
	}
	cmd.Flags().String("reason", string(models.ExitManual), "exit reason")
	cmd.Flags().String("notes", "", "replace the notes")
	return cmd
}

func newTradeDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a trade permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			l, id, err := app.resolveTrade(ctx, args[0])
			if err != nil {
				return err
			}
			if err := l.Delete(ctx, id); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": id})
			}
			output.Success("Deleted trade %s", id)
			return nil
		},
	}
}

func newTradeClearHistoryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-history",
		Short: "Remove every closed trade, keeping active ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			l, err := app.Ledger(ctx)
			if err != nil {
				return err
			}
			removed, err := l.ClearHistory(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]int{"removed": removed})
			}
			output.Success("Removed %d closed trades", removed)
			return nil
		},
	}
}

func printTrade(output *Output, t models.LedgerTrade) {
	output.Bold("%s  %s", t.Symbol, t.StockName)
	output.Printf("  ID:          %s\n", t.ID)
	output.Printf("  Status:      %s\n", t.Status)
	output.Printf("  Entry:       %s on %s\n", FormatPrice(t.EntryPrice), FormatDate(t.EntryDate))
	output.Printf("  Investment:  %s (%.4f shares)\n", FormatMoney(t.InvestmentAmount, t.CurrencyTag), t.Shares)
	if t.StopLossPrice > 0 {
		output.Printf("  Stop Loss:   %s (-%.2f%%)\n", FormatPrice(t.StopLossPrice), t.StopLossPercent)
	}
	if t.TargetPrice > 0 {
		output.Printf("  Target:      %s (+%.2f%%)\n", FormatPrice(t.TargetPrice), t.TakeProfitPercent)
	}
	if t.SquareOffDate != nil {
		output.Printf("  Square-Off:  %s\n", FormatOptionalDate(t.SquareOffDate))
	}
	if t.EntryOscillator != 0 || t.EntryWeeklyOscillator != 0 {
		output.Printf("  Oscillator:  %.1f daily, %.1f weekly\n", t.EntryOscillator, t.EntryWeeklyOscillator)
	}
	if t.IsActive() {
		output.Printf("  Current:     %s  value %s\n", FormatPrice(t.CurrentPrice), FormatMoney(t.CurrentValue, t.CurrencyTag))
		output.Printf("  P/L:         %s  %s\n", output.FormatPercent(t.CurrentPLPercent), output.FormatPnL(t.CurrentPLValue, t.CurrencyTag))
	} else {
		output.Printf("  Exit:        %s on %s (%s)\n", FormatPrice(t.ExitPrice), FormatOptionalDate(t.ExitDate), t.ExitReason)
		output.Printf("  P/L:         %s  %s\n", output.FormatPercent(t.PLPercent), output.FormatPnL(t.PLValue, t.CurrencyTag))
	}
	output.Printf("  Held:        %d days\n", t.HoldingDays)
	if t.Notes != "" {
		output.Printf("  Notes:       %s\n", t.Notes)
	}
}

func parseAmount(name, s string) (float64, error) {
	var v float64
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &v); err != nil {
		return 0, fmt.Errorf("invalid %s: %s", name, s)
	}
	return v, nil
}
