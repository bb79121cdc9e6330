package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/logging"
	"momentum-trader/internal/models"
	"momentum-trader/internal/stream"
)

// PriceFetcher returns the latest traded price of a symbol. Implementations
// own their retry and timeout policy.
type PriceFetcher interface {
	FetchLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// AutoClose describes a trade closed by the exit rules during a refresh.
type AutoClose struct {
	TradeID   string            `json:"tradeId"`
	Symbol    string            `json:"symbol"`
	Reason    models.ExitReason `json:"reason"`
	ExitPrice float64           `json:"exitPrice"`
	PLPercent float64           `json:"plPercent"`
}

// RefreshReport summarizes one refresh cycle.
type RefreshReport struct {
	Symbols       int               `json:"symbols"`
	Updated       []string          `json:"updated"`
	Errors        map[string]string `json:"errors"`
	TradesUpdated int               `json:"tradesUpdated"`
	AutoClosed    []AutoClose       `json:"autoClosed"`
	Duration      time.Duration     `json:"duration"`
}

type quote struct {
	symbol string
	price  float64
	err    error
}

// RefreshPrices fetches the latest price for every distinct symbol among the
// active trades, concurrently and independently. Once every fetch has settled
// the successful prices are applied, exit rules are evaluated and the ledger is
// persisted once. A failed symbol keeps its last known price. Trades deleted
// or closed while the fetches were in flight are left alone.
func (l *Ledger) RefreshPrices(ctx context.Context, fetcher PriceFetcher) (*RefreshReport, error) {
	started := time.Now()
	symbols := l.activeSymbols()
	report := &RefreshReport{
		Symbols:    len(symbols),
		Updated:    make([]string, 0, len(symbols)),
		Errors:     make(map[string]string),
		AutoClosed: make([]AutoClose, 0),
	}
	if len(symbols) == 0 {
		return report, nil
	}

	p := pool.NewWithResults[quote]().WithMaxGoroutines(l.refreshConcurrency)
	for _, symbol := range symbols {
		symbol := symbol
		p.Go(func() quote {
			price, err := fetcher.FetchLatestPrice(ctx, symbol)
			return quote{symbol: symbol, price: price, err: err}
		})
	}
	quotes := p.Wait()

	prices := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		if q.err == nil && !positive(q.price) {
			q.err = errNonPositivePrice
		}
		if q.err != nil {
			q.err = apperrors.NewDataError("price", q.symbol, "refresh failed", q.err)
			report.Errors[q.symbol] = q.err.Error()
			sl := logging.WithSymbol(l.logger, q.symbol)
			sl.Warn().Err(q.err).Msg("Price refresh failed")
			continue
		}
		prices[q.symbol] = q.price
		report.Updated = append(report.Updated, q.symbol)
	}
	sort.Strings(report.Updated)

	err := l.applyPrices(ctx, prices, report)
	report.Duration = time.Since(started)
	logging.LogRefresh(l.logger, report.Symbols, len(report.Updated), len(report.Errors), len(report.AutoClosed), report.Duration)
	return report, err
}

func (l *Ledger) activeSymbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]bool)
	var symbols []string
	for _, t := range l.trades {
		if t.IsActive() && !seen[t.Symbol] {
			seen[t.Symbol] = true
			symbols = append(symbols, t.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

func (l *Ledger) applyPrices(ctx context.Context, prices map[string]float64, report *RefreshReport) error {
	if len(prices) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := cloneTrades(l.trades)
	now := l.now()
	var closed []AutoClose
	for i := range l.trades {
		trade := &l.trades[i]
		price, ok := prices[trade.Symbol]
		if !ok || !trade.IsActive() {
			continue
		}
		trade.CurrentPrice = price
		trade.LastUpdated = now
		recompute(trade, now)
		report.TradesUpdated++

		if reason, fired := evaluateLive(trade, now); fired {
			closed = append(closed, AutoClose{
				TradeID:   trade.ID,
				Symbol:    trade.Symbol,
				Reason:    reason,
				ExitPrice: trade.ExitPrice,
				PLPercent: trade.PLPercent,
			})
		}
	}
	if report.TradesUpdated == 0 {
		return nil
	}

	if err := l.commit(ctx, prev, "refresh"); err != nil {
		report.TradesUpdated = 0
		return err
	}
	report.AutoClosed = append(report.AutoClosed, closed...)

	for _, c := range closed {
		logging.LogTradeEvent(l.logger, "auto-closed", c.TradeID, c.Symbol, c.ExitPrice)
		l.publish(stream.LedgerEvent{Type: stream.EventTradeClosed, TradeID: c.TradeID, Symbol: c.Symbol, Reason: string(c.Reason)})
	}
	l.publish(stream.LedgerEvent{Type: stream.EventPricesRefreshed, Count: report.TradesUpdated})
	return nil
}
