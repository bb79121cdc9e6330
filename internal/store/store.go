// Package store provides ledger persistence backends.
package store

import (
	"context"
	"time"

	"momentum-trader/internal/models"
)

// LedgerStore persists the trade ledger as a whole. Save replaces the stored
// collection atomically: either every trade is written or none is.
type LedgerStore interface {
	Load(ctx context.Context) ([]models.LedgerTrade, error)
	Save(ctx context.Context, trades []models.LedgerTrade) error
	Close() error
}

// CandleStore caches daily price history for the backtest and optimizer.
type CandleStore interface {
	SaveCandles(ctx context.Context, symbol string, candles []models.Candle) error
	GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// Backend names accepted by Open.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var (
	_ LedgerStore = (*SQLiteStore)(nil)
	_ CandleStore = (*SQLiteStore)(nil)
	_ LedgerStore = (*PostgresStore)(nil)
	_ CandleStore = (*PostgresStore)(nil)
	_ LedgerStore = (*MemoryStore)(nil)
	_ CandleStore = (*MemoryStore)(nil)
)
