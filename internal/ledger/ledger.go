// Package ledger tracks real open and closed positions, evaluates their exits
// on price refresh, and persists the whole ledger atomically per mutation.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/logging"
	"momentum-trader/internal/models"
	"momentum-trader/internal/store"
	"momentum-trader/internal/stream"
)

// DefaultRefreshConcurrency bounds concurrent price fetches per refresh.
const DefaultRefreshConcurrency = 8

// Ledger is the authoritative collection of trades. The active and closed
// views are always derived from the single trades slice.
type Ledger struct {
	mu      sync.RWMutex
	trades  []models.LedgerTrade
	version uint64

	store  store.LedgerStore
	hub    *stream.Hub
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string

	refreshConcurrency int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHub publishes ledger events to hub.
func WithHub(hub *stream.Hub) Option {
	return func(l *Ledger) { l.hub = hub }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the trade id generator.
func WithIDGenerator(newID func() string) Option {
	return func(l *Ledger) { l.newID = newID }
}

// WithRefreshConcurrency bounds concurrent price fetches.
func WithRefreshConcurrency(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.refreshConcurrency = n
		}
	}
}

// New creates an empty ledger backed by st. Call Load to read persisted trades.
func New(st store.LedgerStore, opts ...Option) *Ledger {
	l := &Ledger{
		trades:             make([]models.LedgerTrade, 0),
		store:              st,
		logger:             zerolog.Nop(),
		now:                time.Now,
		newID:              uuid.NewString,
		refreshConcurrency: DefaultRefreshConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the in-memory ledger with the persisted one.
func (l *Ledger) Load(ctx context.Context) error {
	trades, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("%w: load ledger: %v", apperrors.ErrPersistence, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for i := range trades {
		recompute(&trades[i], now)
	}
	l.trades = trades
	normalize(l.trades)
	l.version++

	l.logger.Debug().Int("trades", len(trades)).Msg("Ledger loaded")
	return nil
}

// Version returns the mutation counter. It changes on every successful mutation.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// Get returns a copy of the trade with the given id.
func (l *Ledger) Get(id string) (models.LedgerTrade, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := l.indexOf(id)
	if i < 0 {
		return models.LedgerTrade{}, apperrors.NewTradeError(id, "get", apperrors.ErrTradeNotFound)
	}
	return cloneTrade(l.trades[i]), nil
}

// All returns every trade, active first (newest entry first) then closed
// (newest exit first).
func (l *Ledger) All() []models.LedgerTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneTrades(l.trades)
}

// Active returns the active trades, newest entry first.
func (l *Ledger) Active() []models.LedgerTrade {
	return l.filter(true)
}

// Closed returns the closed trades, newest exit first.
func (l *Ledger) Closed() []models.LedgerTrade {
	return l.filter(false)
}

func (l *Ledger) filter(active bool) []models.LedgerTrade {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.LedgerTrade, 0, len(l.trades))
	for _, t := range l.trades {
		if t.IsActive() == active {
			out = append(out, cloneTrade(t))
		}
	}
	return out
}

func (l *Ledger) indexOf(id string) int {
	for i := range l.trades {
		if l.trades[i].ID == id {
			return i
		}
	}
	return -1
}

// commit persists the current trades and bumps the version. On failure the
// trades are restored to prev and the version is left unchanged.
// Caller must hold the write lock.
func (l *Ledger) commit(ctx context.Context, prev []models.LedgerTrade, op string) error {
	normalize(l.trades)
	if err := l.store.Save(ctx, l.trades); err != nil {
		l.trades = prev
		ol := logging.WithOperation(l.logger, op)
		ol.Error().Err(err).Msg("Failed to persist ledger, change rolled back")
		return fmt.Errorf("%w: %s: %v", apperrors.ErrPersistence, op, err)
	}
	l.version++
	return nil
}

func (l *Ledger) publish(event stream.LedgerEvent) {
	event.Version = l.version
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now()
	}
	l.hub.Publish(event)
}

// normalize orders trades: active by entry date descending, then closed by exit
// date descending. Ties keep their relative order.
func normalize(trades []models.LedgerTrade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if a.IsActive() != b.IsActive() {
			return a.IsActive()
		}
		if a.IsActive() {
			return a.EntryDate.After(b.EntryDate)
		}
		return a.ExitTime().After(b.ExitTime())
	})
}

func cloneTrade(t models.LedgerTrade) models.LedgerTrade {
	if t.SquareOffDate != nil {
		d := *t.SquareOffDate
		t.SquareOffDate = &d
	}
	if t.ExitDate != nil {
		d := *t.ExitDate
		t.ExitDate = &d
	}
	return t
}

func cloneTrades(trades []models.LedgerTrade) []models.LedgerTrade {
	out := make([]models.LedgerTrade, len(trades))
	for i, t := range trades {
		out[i] = cloneTrade(t)
	}
	return out
}

var errNonPositivePrice = fmt.Errorf("%w: price feed returned a non-positive price", apperrors.ErrPriceUnavailable)
