package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"momentum-trader/internal/models"
)

// candleRow is one line of a daily price-history CSV
// (Date,Open,High,Low,Close,Volume). Fields are read as text so rows with
// "null" placeholders can be skipped instead of failing the file.
type candleRow struct {
	Date   string `csv:"Date"`
	Open   string `csv:"Open"`
	High   string `csv:"High"`
	Low    string `csv:"Low"`
	Close  string `csv:"Close"`
	Volume string `csv:"Volume"`
}

var candleDateLayouts = []string{dateLayout, "2006-01-02 15:04:05", time.RFC3339, "02-01-2006", "01/02/2006"}

// ReadCandles parses a price-history CSV, skipping incomplete rows, and returns
// the candles oldest first.
func ReadCandles(r io.Reader) ([]models.Candle, error) {
	var rows []*candleRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse price history: %w", err)
	}

	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, ok, err := row.candle()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		if ok {
			candles = append(candles, c)
		}
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

// LoadCandlesFile reads a price-history CSV file.
func LoadCandlesFile(path string) ([]models.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price history: %w", err)
	}
	defer f.Close()
	return ReadCandles(f)
}

func (r *candleRow) candle() (models.Candle, bool, error) {
	date, err := parseCandleDate(r.Date)
	if err != nil {
		return models.Candle{}, false, err
	}
	values := make([]float64, 4)
	for i, field := range []string{r.Open, r.High, r.Low, r.Close} {
		field = strings.TrimSpace(field)
		if field == "" || strings.EqualFold(field, "null") {
			return models.Candle{}, false, nil
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return models.Candle{}, false, fmt.Errorf("invalid price %q", field)
		}
		values[i] = v
	}
	if values[3] <= 0 {
		return models.Candle{}, false, nil
	}
	var volume int64
	if v := strings.TrimSpace(r.Volume); v != "" && !strings.EqualFold(v, "null") {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return models.Candle{}, false, fmt.Errorf("invalid volume %q", v)
		}
		volume = int64(f)
	}
	return models.Candle{
		Timestamp: date,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    volume,
	}, true, nil
}

func parseCandleDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range candleDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// loadHistory returns the candles for symbol from --file when set, otherwise
// from the stored price history.
func (a *App) loadHistory(ctx context.Context, cmd *cobra.Command, symbol string) ([]models.Candle, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		return LoadCandlesFile(path)
	}
	cs, err := a.Candles(ctx)
	if err != nil {
		return nil, err
	}
	candles, err := cs.GetCandles(ctx, symbol, time.Time{}, time.Now().AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no price history stored for %s; run 'trader data import %s <file.csv>' or pass --file", symbol, symbol)
	}
	return candles, nil
}

// addDataCommands adds price-history commands.
func addDataCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Manage stored price history",
	}
	cmd.AddCommand(newDataImportCmd(app))
	cmd.AddCommand(newDataListCmd(app))
	rootCmd.AddCommand(cmd)
}

func newDataImportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "import <symbol> <file.csv>",
		Short:   "Store daily price history from a CSV file",
		Example: `  trader data import AAPL ./AAPL.csv`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 2*time.Minute)
			defer cancel()

			symbol := strings.ToUpper(args[0])
			candles, err := LoadCandlesFile(args[1])
			if err != nil {
				return err
			}
			cs, err := app.Candles(ctx)
			if err != nil {
				return err
			}
			if err := cs.SaveCandles(ctx, symbol, candles); err != nil {
				return err
			}
			app.Logger.Info().Str("symbol", symbol).Int("candles", len(candles)).Msg("Price history stored")

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"symbol": symbol, "candles": len(candles)})
			}
			output.Success("Stored %d candles for %s", len(candles), symbol)
			if len(candles) > 0 {
				output.Dim("%s to %s", FormatDate(candles[0].Timestamp), FormatDate(candles[len(candles)-1].Timestamp))
			}
			return nil
		},
	}
}

func newDataListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List symbols with stored price history",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := commandContext(cmd, 30*time.Second)
			defer cancel()

			cs, err := app.Candles(ctx)
			if err != nil {
				return err
			}
			symbols, err := cs.ListSymbols(ctx)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(symbols)
			}
			if len(symbols) == 0 {
				output.Dim("No stored price history")
				return nil
			}
			for _, s := range symbols {
				output.Println(s)
			}
			return nil
		},
	}
}
