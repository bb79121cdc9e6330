package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"momentum-trader/internal/ledger"
	"momentum-trader/internal/models"
)

// tradeRow is the flat CSV form of a ledger trade.
type tradeRow struct {
	ID               string `csv:"id"`
	Status           string `csv:"status"`
	Symbol           string `csv:"symbol"`
	StockName        string `csv:"stock_name"`
	Currency         string `csv:"currency"`
	EntryDate        string `csv:"entry_date"`
	EntryPrice       string `csv:"entry_price"`
	InvestmentAmount string `csv:"investment_amount"`
	Shares           string `csv:"shares"`
	StopLossPrice    string `csv:"stop_loss_price"`
	TargetPrice      string `csv:"target_price"`
	SquareOffDate    string `csv:"square_off_date"`
	CurrentPrice     string `csv:"current_price"`
	CurrentValue     string `csv:"current_value"`
	ExitDate         string `csv:"exit_date"`
	ExitPrice        string `csv:"exit_price"`
	ExitReason       string `csv:"exit_reason"`
	PLPercent        string `csv:"pl_percent"`
	PLValue          string `csv:"pl_value"`
	HoldingDays      int    `csv:"holding_days"`
	EntryOscillator  string `csv:"entry_oscillator"`
	WeeklyOscillator string `csv:"entry_weekly_oscillator"`
	Notes            string `csv:"notes"`
}

func newTradeRow(t models.LedgerTrade) *tradeRow {
	pct, value := t.CurrentPLPercent, t.CurrentPLValue
	if !t.IsActive() {
		pct, value = t.PLPercent, t.PLValue
	}
	return &tradeRow{
		ID:               t.ID,
		Status:           string(t.Status),
		Symbol:           t.Symbol,
		StockName:        t.StockName,
		Currency:         t.CurrencyTag,
		EntryDate:        t.EntryDate.Format(dateLayout),
		EntryPrice:       csvFloat(t.EntryPrice),
		InvestmentAmount: csvFloat(t.InvestmentAmount),
		Shares:           csvFloat(t.Shares),
		StopLossPrice:    csvFloat(t.StopLossPrice),
		TargetPrice:      csvFloat(t.TargetPrice),
		SquareOffDate:    csvDate(t.SquareOffDate),
		CurrentPrice:     csvFloat(t.CurrentPrice),
		CurrentValue:     csvFloat(t.CurrentValue),
		ExitDate:         csvDate(t.ExitDate),
		ExitPrice:        csvFloat(t.ExitPrice),
		ExitReason:       string(t.ExitReason),
		PLPercent:        csvFloat(pct),
		PLValue:          csvFloat(value),
		HoldingDays:      t.HoldingDays,
		EntryOscillator:  csvFloat(t.EntryOscillator),
		WeeklyOscillator: csvFloat(t.EntryWeeklyOscillator),
		Notes:            t.Notes,
	}
}

func csvFloat(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func csvDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

// WriteTradesCSV writes trades as CSV with a header row.
func WriteTradesCSV(w io.Writer, trades []models.LedgerTrade) error {
	rows := make([]*tradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, newTradeRow(t))
	}
	return gocsv.Marshal(rows, w)
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as JSON or CSV",
		Long: `Export the ledger. The JSON document carries metadata and every trade and
can be imported back with 'trader import'. CSV output is a flat report and
cannot be imported.`,
		Example: `  trader export --output trades.json
  trader export --csv --output trades.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			l, err := app.Ledger(ctx)
			if err != nil {
				return err
			}

			var w io.Writer = output.Writer()
			path, _ := cmd.Flags().GetString("output")
			if path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			asCSV, _ := cmd.Flags().GetBool("csv")
			if asCSV {
				err = WriteTradesCSV(w, l.All())
			} else {
				err = l.WriteExport(w)
			}
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if path != "" && !output.IsJSON() {
				output.Success("Exported %d trades to %s", len(l.All()), path)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "write to file instead of stdout")
	cmd.Flags().Bool("csv", false, "write CSV instead of the JSON document")
	return cmd
}

func newImportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import trades from an exported JSON document",
		Long: `Import trades from an exported JSON document.

Modes:
  merge    overwrite trades with a matching id, append the rest (default)
  add      append every trade under a new id
  replace  substitute the whole ledger; --keep-active keeps current active trades

The document is checked before anything changes. Invalid trades inside a
valid document are counted as errors and skipped.`,
		Example: `  trader import trades.json
  trader import backup.json --mode replace --keep-active`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, time.Minute)
			defer cancel()

			modeName, _ := cmd.Flags().GetString("mode")
			mode, err := ledger.ParseImportMode(modeName)
			if err != nil {
				return err
			}
			keepActive, _ := cmd.Flags().GetBool("keep-active")

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer f.Close()

			doc, err := ledger.ParseExport(f)
			if err != nil {
				return err
			}
			l, err := app.Ledger(ctx)
			if err != nil {
				return err
			}
			result, err := l.Import(ctx, doc, ledger.ImportOptions{Mode: mode, KeepActive: keepActive})
			if err != nil {
				output.Error("Import failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			for _, w := range result.Warnings {
				output.Warning("%s", w)
			}
			output.Success("Imported %d trades (%s): %d added, %d updated, %d skipped, %d errors",
				result.Total, mode, result.Added, result.Updated, result.Skipped, result.Errors)
			return nil
		},
	}
	cmd.Flags().String("mode", string(ledger.ImportMerge), "import mode: merge, add or replace")
	cmd.Flags().Bool("keep-active", false, "with --mode replace, keep the current active trades")
	return cmd
}
