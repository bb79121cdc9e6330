package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"

	"momentum-trader/internal/ledger"
	"momentum-trader/internal/notify"
	"momentum-trader/internal/pricefeed"
	"momentum-trader/internal/stream"
)

func newRefreshCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Fetch latest prices for active trades and apply exit rules",
		Long: `Fetch the latest price of every symbol with an active trade, update the
trades and close those that reached their stop-loss, target or square-off
date. A symbol that fails keeps its last price and does not affect others.

Prices come from the configured price feed ([refresh].price_feed_url), or
from --price SYMBOL=PRICE quotes when no feed is configured.`,
		Example: `  trader refresh
  trader refresh --price INFY=1520 --price TCS=3990
  trader refresh --watch --every 15m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			feed, err := app.priceFeed(cmd)
			if err != nil {
				return err
			}

			watch, _ := cmd.Flags().GetBool("watch")
			if !watch {
				ctx, cancel := commandContext(cmd, 2*time.Minute)
				defer cancel()
				return runRefresh(ctx, app, output, feed)
			}

			interval := app.Config.RefreshInterval()
			if every, _ := cmd.Flags().GetString("every"); every != "" {
				if interval, err = str2duration.ParseDuration(every); err != nil {
					return fmt.Errorf("invalid --every %q: %w", every, err)
				}
			}
			if interval <= 0 {
				return fmt.Errorf("refresh interval must be positive")
			}
			return watchRefresh(cmd.Context(), app, output, feed, interval)
		},
	}

	cmd.Flags().StringArray("price", nil, "manual quote SYMBOL=PRICE (repeatable)")
	cmd.Flags().Bool("watch", false, "keep refreshing until interrupted")
	cmd.Flags().String("every", "", "watch interval, e.g. 15m or 1d (default: [refresh].interval)")

	return cmd
}

// priceFeed returns the quote source for a refresh: manual --price quotes
// when given, otherwise the configured HTTP feed.
func (a *App) priceFeed(cmd *cobra.Command) (pricefeed.Feed, error) {
	quotes, _ := cmd.Flags().GetStringArray("price")
	if len(quotes) > 0 {
		prices, err := parseQuotes(quotes)
		if err != nil {
			return nil, err
		}
		return pricefeed.NewStaticFeed(prices), nil
	}
	if a.Config.Refresh.PriceFeedURL == "" {
		return nil, fmt.Errorf("no price feed configured; set [refresh].price_feed_url or pass --price SYMBOL=PRICE")
	}
	return pricefeed.NewHTTPFeed(a.Config.PriceFeedConfig(), a.Logger)
}

func parseQuotes(quotes []string) (map[string]float64, error) {
	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		symbol, price, ok := strings.Cut(q, "=")
		if !ok {
			return nil, fmt.Errorf("invalid quote %q, expected SYMBOL=PRICE", q)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid price in quote %q", q)
		}
		prices[strings.ToUpper(strings.TrimSpace(symbol))] = v
	}
	return prices, nil
}

func runRefresh(ctx context.Context, app *App, output *Output, feed pricefeed.Feed) error {
	l, err := app.Ledger(ctx)
	if err != nil {
		return err
	}
	report, err := l.RefreshPrices(ctx, feed)
	if err != nil {
		output.Error("Refresh could not be saved: %v", err)
		return err
	}
	if output.IsJSON() {
		return output.JSON(report)
	}
	printRefresh(output, report)
	return nil
}

func watchRefresh(ctx context.Context, app *App, output *Output, feed pricefeed.Feed, interval time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	l, err := app.Ledger(ctx)
	if err != nil {
		return err
	}
	closed := app.Hub.Subscribe(stream.EventTradeClosed)
	defer app.Hub.Unsubscribe(closed)

	opts := app.Config.NotifyOptions()
	if !output.IsJSON() {
		opts.Terminal = output.Writer()
	}
	notifier := notify.New(opts, app.Logger)

	if !output.IsJSON() {
		output.Info("Refreshing every %s, press Ctrl+C to stop", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cycleCtx, cancel := context.WithTimeout(ctx, interval)
		report, err := l.RefreshPrices(cycleCtx, feed)
		cancel()
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil:
			app.Logger.Error().Err(err).Msg("Refresh cycle failed")
			if nerr := notifier.SendError(ctx, err, "refresh"); nerr != nil {
				app.Logger.Warn().Err(nerr).Msg("Notification failed")
			}
		case output.IsJSON():
			if err := output.JSON(report); err != nil {
				return err
			}
		default:
			output.Dim("%s", time.Now().Format("15:04:05"))
			printRefresh(output, report)
		}
		notifier.Drain(ctx, closed)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printRefresh(output *Output, report *ledger.RefreshReport) {
	if report.Symbols == 0 {
		output.Dim("No active trades to refresh")
		return
	}
	output.Printf("Refreshed %d of %d symbols, %d trades updated in %s\n",
		len(report.Updated), report.Symbols, report.TradesUpdated, FormatDuration(report.Duration))

	if len(report.Errors) > 0 {
		symbols := make([]string, 0, len(report.Errors))
		for s := range report.Errors {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)
		for _, s := range symbols {
			output.Warning("  %s: %s", s, report.Errors[s])
		}
	}
	for _, c := range report.AutoClosed {
		output.Success("  %s %s closed at %s: %s (%s)",
			c.Symbol, shortID(c.TradeID), FormatPrice(c.ExitPrice), c.Reason, FormatPercent(c.PLPercent))
	}
}
