package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/resilience"
)

func testConfig(baseURL string) HTTPConfig {
	cfg := DefaultHTTPConfig(baseURL)
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 100, SuccessThreshold: 1, Timeout: time.Hour}
	cfg.RequestsPerSecond = 0
	return cfg
}

func newTestFeed(t *testing.T, handler http.HandlerFunc) (*HTTPFeed, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	feed, err := NewHTTPFeed(testConfig(srv.URL), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHTTPFeed failed: %v", err)
	}
	return feed, &calls
}

func TestHTTPFeed_FetchLatestPrice(t *testing.T) {
	feed, calls := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" || r.URL.Query().Get("symbol") != "AAPL" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(Quote{Symbol: "AAPL", Price: 187.25})
	})

	price, err := feed.FetchLatestPrice(context.Background(), " aapl ")
	if err != nil {
		t.Fatalf("FetchLatestPrice failed: %v", err)
	}
	if price != 187.25 {
		t.Errorf("expected 187.25, got %f", price)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("expected 1 request, got %d", atomic.LoadInt32(calls))
	}
}

func TestHTTPFeed_RetriesRateLimit(t *testing.T) {
	var n int32
	feed, calls := newTestFeed(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&n, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_ = json.NewEncoder(w).Encode(Quote{Symbol: "MSFT", Price: 410})
	})

	price, err := feed.FetchLatestPrice(context.Background(), "MSFT")
	if err != nil || price != 410 {
		t.Fatalf("FetchLatestPrice() = %f, %v", price, err)
	}
	if atomic.LoadInt32(calls) != 2 {
		t.Errorf("expected 2 requests, got %d", atomic.LoadInt32(calls))
	}
}

func TestHTTPFeed_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		kind      ErrorKind
		requests  int32
		rateLimit bool
	}{
		{"server error is retried", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}, KindTransient, 3, false},
		{"persistent rate limit", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}, KindRateLimited, 3, true},
		{"unknown symbol is not retried", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}, KindStructural, 1, false},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}, KindStructural, 1, false},
		{"zero price", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(Quote{Symbol: "X", Price: 0})
		}, KindStructural, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed, calls := newTestFeed(t, tt.handler)

			_, err := feed.FetchLatestPrice(context.Background(), "X")
			var fe *FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FetchError, got %v", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, fe.Kind)
			}
			if atomic.LoadInt32(calls) != tt.requests {
				t.Errorf("expected %d requests, got %d", tt.requests, *calls)
			}
			if !errors.Is(err, apperrors.ErrPriceUnavailable) {
				t.Error("fetch errors must match ErrPriceUnavailable")
			}
			if errors.Is(err, apperrors.ErrRateLimited) != tt.rateLimit {
				t.Errorf("ErrRateLimited match = %v, want %v", !tt.rateLimit, tt.rateLimit)
			}
		})
	}
}

func TestHTTPFeed_CircuitOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Breaker.FailureThreshold = 2
	feed, err := NewHTTPFeed(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewHTTPFeed failed: %v", err)
	}

	_, err = feed.FetchLatestPrice(context.Background(), "X")
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected the third attempt to hit an open circuit, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 requests before the circuit opened, got %d", calls)
	}
	if stats := feed.BreakerStats(); stats.State != resilience.CircuitOpen {
		t.Errorf("expected open breaker, got %s", stats.State)
	}
}

func TestHTTPFeed_RequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPFeed(HTTPConfig{}, zerolog.Nop()); err == nil {
		t.Error("expected an error without a base URL")
	}
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed(map[string]float64{"aapl": 100})
	feed.Set("msft", 200)

	if p, err := feed.FetchLatestPrice(context.Background(), "AAPL"); err != nil || p != 100 {
		t.Errorf("AAPL = %f, %v", p, err)
	}
	if p, err := feed.FetchLatestPrice(context.Background(), "MSFT"); err != nil || p != 200 {
		t.Errorf("MSFT = %f, %v", p, err)
	}
	_, err := feed.FetchLatestPrice(context.Background(), "NOPE")
	if !errors.Is(err, ErrUnknownSymbol) || IsRetryable(err) {
		t.Errorf("expected a structural unknown-symbol error, got %v", err)
	}
}
