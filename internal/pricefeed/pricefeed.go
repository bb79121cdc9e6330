// Package pricefeed fetches the latest traded price of a symbol for the
// ledger's refresh cycle.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "momentum-trader/internal/errors"
)

// Feed returns the latest traded price of a symbol.
type Feed interface {
	FetchLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// ErrorKind classifies a failed fetch.
type ErrorKind int

const (
	// KindTransient covers network failures and server errors; retried.
	KindTransient ErrorKind = iota
	// KindRateLimited is a 429 from the quote service; retried after backoff.
	KindRateLimited
	// KindStructural covers unknown symbols and malformed responses; never retried.
	KindStructural
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindRateLimited:
		return "rate_limited"
	case KindStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// FetchError is a classified price fetch failure. It matches
// apperrors.ErrPriceUnavailable, and apperrors.ErrRateLimited when rate limited.
type FetchError struct {
	Symbol     string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("price fetch %s [%s, status %d]: %v", e.Symbol, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("price fetch %s [%s]: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Kind == KindRateLimited {
		return []error{e.Err, apperrors.ErrRateLimited, apperrors.ErrPriceUnavailable}
	}
	return []error{e.Err, apperrors.ErrPriceUnavailable}
}

// Retryable reports whether another attempt could succeed.
func (e *FetchError) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindRateLimited
}

// IsRetryable reports whether err is a transient or rate-limited fetch error.
func IsRetryable(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Retryable()
}

// ErrUnknownSymbol is returned by StaticFeed for symbols it has no price for.
var ErrUnknownSymbol = errors.New("unknown symbol")

// StaticFeed serves prices from memory, for offline use and tests.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStaticFeed creates a feed preloaded with prices.
func NewStaticFeed(prices map[string]float64) *StaticFeed {
	f := &StaticFeed{prices: make(map[string]float64, len(prices))}
	for symbol, price := range prices {
		f.prices[strings.ToUpper(symbol)] = price
	}
	return f
}

// Set updates the price of a symbol.
func (f *StaticFeed) Set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[strings.ToUpper(symbol)] = price
}

// FetchLatestPrice implements Feed.
func (f *StaticFeed) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &FetchError{Symbol: symbol, Kind: KindTransient, Err: err}
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	price, ok := f.prices[strings.ToUpper(symbol)]
	if !ok {
		return 0, &FetchError{Symbol: symbol, Kind: KindStructural, Err: ErrUnknownSymbol}
	}
	return price, nil
}
