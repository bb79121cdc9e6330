package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"momentum-trader/internal/models"
)

// MemoryStore keeps the ledger and candles in process memory. Saved trades are
// deep-copied so later mutations by the caller do not leak into the store.
type MemoryStore struct {
	mu      sync.RWMutex
	trades  []byte
	candles map[string][]models.Candle

	// FailSave, when set, is returned by Save without storing anything.
	FailSave error
	saves    int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{candles: make(map[string][]models.Candle)}
}

// Load implements LedgerStore.
func (m *MemoryStore) Load(ctx context.Context) ([]models.LedgerTrade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trades := make([]models.LedgerTrade, 0)
	if len(m.trades) == 0 {
		return trades, nil
	}
	if err := json.Unmarshal(m.trades, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// Save implements LedgerStore.
func (m *MemoryStore) Save(ctx context.Context, trades []models.LedgerTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSave != nil {
		return m.FailSave
	}
	data, err := json.Marshal(trades)
	if err != nil {
		return err
	}
	m.trades = data
	m.saves++
	return nil
}

// Saves returns the number of successful saves.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// Close implements LedgerStore.
func (m *MemoryStore) Close() error {
	return nil
}

// SaveCandles implements CandleStore.
func (m *MemoryStore) SaveCandles(ctx context.Context, symbol string, candles []models.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byTime := make(map[int64]models.Candle)
	for _, c := range m.candles[symbol] {
		byTime[c.Timestamp.Unix()] = c
	}
	for _, c := range candles {
		byTime[c.Timestamp.Unix()] = c
	}
	merged := make([]models.Candle, 0, len(byTime))
	for _, c := range byTime {
		merged = append(merged, c)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.Before(merged[j].Timestamp) })
	m.candles[symbol] = merged
	return nil
}

// GetCandles implements CandleStore.
func (m *MemoryStore) GetCandles(ctx context.Context, symbol string, from, to time.Time) ([]models.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Candle
	for _, c := range m.candles[symbol] {
		if !c.Timestamp.Before(from) && !c.Timestamp.After(to) {
			out = append(out, c)
		}
	}
	return out, nil
}

// ListSymbols implements CandleStore.
func (m *MemoryStore) ListSymbols(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	symbols := make([]string, 0, len(m.candles))
	for s := range m.candles {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}
