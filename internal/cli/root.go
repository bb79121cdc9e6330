// Package cli provides the command-line interface for the momentum trader.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"momentum-trader/internal/analytics"
	"momentum-trader/internal/config"
	"momentum-trader/internal/ledger"
	"momentum-trader/internal/logging"
	"momentum-trader/internal/security"
	"momentum-trader/internal/store"
	"momentum-trader/internal/stream"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2026-09-30"
)

// App holds the application dependencies. The store and ledger are opened
// on first use so commands working on CSV files never touch the database.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Hub    *stream.Hub

	store  store.LedgerStore
	ledger *ledger.Ledger
	cache  *analytics.Cache
}

// Ledger returns the loaded ledger, opening the configured store on first use.
func (a *App) Ledger(ctx context.Context) (*ledger.Ledger, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	l := ledger.New(st,
		ledger.WithHub(a.Hub),
		ledger.WithLogger(a.Logger),
		ledger.WithRefreshConcurrency(a.Config.Refresh.Concurrency),
	)
	if err := l.Load(ctx); err != nil {
		return nil, err
	}
	a.ledger = l
	a.cache = analytics.NewCache(l, a.Config.Analytics.RiskFreeRate)
	return l, nil
}

// Analytics returns the report cache over the ledger.
func (a *App) Analytics(ctx context.Context) (*analytics.Cache, error) {
	if _, err := a.Ledger(ctx); err != nil {
		return nil, err
	}
	return a.cache, nil
}

// Candles returns the price history cache of the configured store.
func (a *App) Candles(ctx context.Context) (store.CandleStore, error) {
	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	cs, ok := st.(store.CandleStore)
	if !ok {
		return nil, fmt.Errorf("storage backend %q does not keep price history", a.Config.Ledger.Storage)
	}
	return cs, nil
}

func (a *App) openStore(ctx context.Context) (store.LedgerStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := store.Open(ctx, a.Config.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", a.Config.Ledger.Storage, err)
	}
	a.Logger.Debug().Str("backend", a.Config.Ledger.Storage).Msg("Store opened")
	a.store = st
	return st, nil
}

// Close releases the store and the event hub. It is safe to call twice.
func (a *App) Close() error {
	if a.Hub != nil {
		a.Hub.Close()
		a.Hub = nil
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	a.ledger = nil
	a.cache = nil
	return err
}

// resolveTrade finds a trade by full id or unique id prefix.
func (a *App) resolveTrade(ctx context.Context, ref string) (*ledger.Ledger, string, error) {
	l, err := a.Ledger(ctx)
	if err != nil {
		return nil, "", err
	}
	if _, err := l.Get(ref); err == nil {
		return l, ref, nil
	}
	var match string
	for _, t := range l.All() {
		if strings.HasPrefix(t.ID, ref) {
			if match != "" {
				return nil, "", fmt.Errorf("trade id prefix %q is ambiguous", ref)
			}
			match = t.ID
		}
	}
	if match == "" {
		_, err := l.Get(ref)
		return nil, "", err
	}
	return l, match, nil
}

// Execute builds the command tree, runs it with args and releases resources.
// Configuration is loaded from the --config directory.
func Execute(ctx context.Context, args []string) error {
	app := &App{Logger: zerolog.Nop()}
	rootCmd := newRootCmd(app)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	if cerr := app.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// NewRootCmd creates the root command for the CLI over an already loaded
// configuration.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	return newRootCmd(&App{Config: cfg, Logger: logger})
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Momentum Trader - oscillator backtesting and trade journal CLI",
		Long: `Momentum Trader backtests a momentum-oscillator entry strategy over daily
price history, searches its parameter space, and keeps a ledger of real
positions with automatic exit tracking and performance analytics.

Use 'trader <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(cfg.Logging)
			}
			if app.Hub == nil {
				app.Hub = stream.NewHub()
			}

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/momentum-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addStrategyCommands(rootCmd, app)
	addLedgerCommands(rootCmd, app)
	addAnalyticsCommands(rootCmd, app)
	addDataCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Momentum Trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redactedConfig(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.Config.Dir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Backtest")
	output.Printf("  Entry Threshold:  %.1f\n", cfg.Backtest.EntryThreshold)
	output.Printf("  Take Profit:      %.1f%%\n", cfg.Backtest.TakeProfitPercent)
	output.Printf("  Stop Loss:        %.1f%%\n", cfg.Backtest.StopLossPercent)
	output.Printf("  Max Holding Days: %d\n", cfg.Backtest.MaxHoldingDays)
	output.Printf("  Weekly Filter:    %v\n", cfg.Backtest.UseWeeklyFilter)
	output.Printf("  Warm-up Months:   %d\n", cfg.Backtest.WarmupMonths)
	output.Println()

	output.Bold("Oscillator")
	output.Printf("  Periods (r/s/u):  %d/%d/%d\n", cfg.Oscillator.R, cfg.Oscillator.S, cfg.Oscillator.U)
	output.Println()

	output.Bold("Optimizer")
	output.Printf("  Workers:          %d\n", cfg.Optimizer.Workers)
	output.Printf("  Min Trades:       %d\n", cfg.Optimizer.MinTrades)
	if size, err := cfg.Optimizer.Ranges.Size(); err == nil {
		output.Printf("  Grid Size:        %d\n", size)
	} else {
		output.Printf("  Grid Size:        invalid (%v)\n", err)
	}
	output.Println()

	output.Bold("Ledger")
	output.Printf("  Storage:          %s\n", cfg.Ledger.Storage)
	if cfg.Ledger.Storage == store.BackendPostgres {
		output.Printf("  Postgres:         %s\n", security.MaskField("postgres_url", cfg.Ledger.PostgresURL))
	} else {
		output.Printf("  Database:         %s\n", cfg.Ledger.DBPath)
	}
	output.Println()

	output.Bold("Refresh")
	output.Printf("  Interval:         %s\n", cfg.Refresh.Interval)
	output.Printf("  Price Feed:       %s\n", orDash(security.MaskSecrets(cfg.Refresh.PriceFeedURL)))
	if cfg.Refresh.PriceFeedKey != "" {
		output.Printf("  Feed Key:         %s\n", security.MaskField("price_feed_key", cfg.Refresh.PriceFeedKey))
	}
	output.Printf("  Max Attempts:     %d\n", cfg.Refresh.MaxAttempts)
	output.Printf("  Concurrency:      %d\n", cfg.Refresh.Concurrency)
	output.Println()

	output.Bold("Analytics")
	output.Printf("  Risk-Free Rate:   %.2f%%\n", cfg.Analytics.RiskFreeRate)
	output.Println()

	output.Bold("Notify")
	output.Printf("  Level:            %s\n", cfg.Notify.Level)
	output.Printf("  Webhook:          %s\n", orDash(security.MaskField("webhook_url", cfg.Notify.WebhookURL)))
	output.Printf("  Bell:             %v\n", cfg.Notify.Bell)
}

// redactedConfig returns a copy of cfg with credentials masked.
func redactedConfig(cfg *config.Config) config.Config {
	c := *cfg
	c.Ledger.PostgresURL = security.MaskField("postgres_url", c.Ledger.PostgresURL)
	c.Refresh.PriceFeedURL = security.MaskSecrets(c.Refresh.PriceFeedURL)
	c.Refresh.PriceFeedKey = security.MaskField("price_feed_key", c.Refresh.PriceFeedKey)
	c.Notify.WebhookURL = security.MaskField("webhook_url", c.Notify.WebhookURL)
	return c
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// commandContext returns the command's context bounded by timeout.
func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
