package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"momentum-trader/internal/models"
)

func sampleTrades() []models.LedgerTrade {
	entry := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	exit := entry.AddDate(0, 0, 12)
	return []models.LedgerTrade{
		{
			ID: "b", Status: models.StatusActive, Symbol: "AAPL", StockName: "Apple",
			CurrencyTag: "USD", EntryDate: entry, EntryPrice: 100, InvestmentAmount: 1000,
			Shares: 10, StopLossPrice: 95, TargetPrice: 110, CurrentPrice: 104, CurrentValue: 1040,
			CurrentPLPercent: 4, CurrentPLValue: 40, LastUpdated: entry,
		},
		{
			ID: "a", Status: models.StatusClosed, Symbol: "RELIANCE.NS", StockName: "Reliance",
			CurrencyTag: "INR", EntryDate: entry, EntryPrice: 2500, InvestmentAmount: 50000,
			Shares: 20, CurrentPrice: 2400, ExitDate: &exit, ExitPrice: 2400,
			ExitReason: models.ExitStopLossHit, PLPercent: -4, PLValue: -2000, LastUpdated: exit,
		},
	}
}

func TestSQLiteStore_LedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Fatalf("expected empty ledger, got %d trades", len(loaded))
	}

	trades := sampleTrades()
	if err := s.Save(ctx, trades); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(loaded, trades) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, trades)
	}

	// A second save replaces, not appends.
	if err := s.Save(ctx, trades[:1]); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, _ = s.Load(ctx)
	if len(loaded) != 1 || loaded[0].ID != "b" {
		t.Errorf("expected only trade b after replace, got %+v", loaded)
	}
}

func TestSQLiteStore_Candles(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "candles.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var candles []models.Candle
	for i := 0; i < 5; i++ {
		candles = append(candles, models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      100, High: 105, Low: 95, Close: 100 + float64(i), Volume: 1000,
		})
	}
	if err := s.SaveCandles(ctx, "TCS", candles); err != nil {
		t.Fatalf("SaveCandles failed: %v", err)
	}
	// Upsert of an existing day must not duplicate it.
	candles[0].Close = 99
	if err := s.SaveCandles(ctx, "TCS", candles[:1]); err != nil {
		t.Fatalf("SaveCandles failed: %v", err)
	}

	got, err := s.GetCandles(ctx, "TCS", start, start.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 candles in range, got %d", len(got))
	}
	if got[0].Close != 99 || !got[0].Timestamp.Equal(start) {
		t.Errorf("unexpected first candle %+v", got[0])
	}

	symbols, err := s.ListSymbols(ctx)
	if err != nil || len(symbols) != 1 || symbols[0] != "TCS" {
		t.Errorf("ListSymbols() = %v, %v", symbols, err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	trades := sampleTrades()
	if err := m.Save(ctx, trades); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	trades[0].Notes = "mutated after save"

	loaded, err := m.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded[0].Notes != "" {
		t.Error("store must not alias caller slices")
	}

	m.FailSave = errors.New("disk full")
	if err := m.Save(ctx, nil); err == nil {
		t.Error("expected injected failure")
	}
	if m.Saves() != 1 {
		t.Errorf("expected 1 successful save, got %d", m.Saves())
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Backend: "redis"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := Open(ctx, Options{Backend: BackendSQLite}); err == nil {
		t.Error("expected error for missing sqlite path")
	}
	s, err := Open(ctx, Options{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("Open memory failed: %v", err)
	}
	s.Close()
}

// Property: saving any ledger to SQLite and loading it back yields the same
// trades in the same order.
func TestProperty_LedgerRoundTripConsistency(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "property.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("save then load preserves the ledger", prop.ForAll(
		func(prices []float64, closedMask []bool) bool {
			entry := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
			trades := make([]models.LedgerTrade, len(prices))
			for i, p := range prices {
				trades[i] = models.LedgerTrade{
					ID:               fmt.Sprintf("t-%03d", i),
					Status:           models.StatusActive,
					Symbol:           "SYM",
					EntryDate:        entry.AddDate(0, 0, i),
					EntryPrice:       p,
					InvestmentAmount: p * 10,
					Shares:           10,
					CurrentPrice:     p,
					CurrentValue:     p * 10,
				}
				if i < len(closedMask) && closedMask[i] {
					exit := entry.AddDate(0, 1, i)
					trades[i].Status = models.StatusClosed
					trades[i].ExitDate = &exit
					trades[i].ExitPrice = p * 1.1
					trades[i].ExitReason = models.ExitTargetHit
				}
			}

			if err := s.Save(ctx, trades); err != nil {
				t.Logf("Save failed: %v", err)
				return false
			}
			loaded, err := s.Load(ctx)
			if err != nil {
				t.Logf("Load failed: %v", err)
				return false
			}
			return reflect.DeepEqual(loaded, trades)
		},
		gen.SliceOfN(20, gen.Float64Range(1, 5000)),
		gen.SliceOfN(20, gen.Bool()),
	))

	properties.TestingRun(t)
}
