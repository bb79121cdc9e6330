package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"momentum-trader/internal/logging"
	"momentum-trader/internal/performance"
	"momentum-trader/internal/resilience"
	"momentum-trader/internal/security"
	"momentum-trader/pkg/utils"
)

// HTTPConfig configures the HTTP quote client.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   utils.RetryConfig
	Breaker resilience.CircuitBreakerConfig

	// RequestsPerSecond throttles outgoing requests; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// DefaultHTTPConfig returns defaults for baseURL.
func DefaultHTTPConfig(baseURL string) HTTPConfig {
	return HTTPConfig{
		BaseURL:           strings.TrimRight(baseURL, "/"),
		Timeout:           10 * time.Second,
		Retry:             utils.DefaultRetryConfig(),
		Breaker:           resilience.DefaultCircuitBreakerConfig(),
		RequestsPerSecond: 5,
		Burst:             5,
	}
}

// Quote is the JSON body returned by GET {base}/quote?symbol=SYM.
type Quote struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// HTTPFeed fetches quotes from an HTTP JSON service with retry, throttling and
// a circuit breaker.
type HTTPFeed struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *resilience.CircuitBreaker
	limiter *performance.RateLimiter
	logger  zerolog.Logger
}

// NewHTTPFeed creates an HTTP feed.
func NewHTTPFeed(cfg HTTPConfig, logger zerolog.Logger) (*HTTPFeed, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("price feed base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid price feed URL: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cfg.Retry.Retryable = IsRetryable
	// Unknown symbols say nothing about the health of the service.
	cfg.Breaker.IsFailure = IsRetryable

	f := &HTTPFeed{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 15 * time.Second}).DialContext,
				MaxIdleConns:        20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
		breaker: resilience.NewCircuitBreaker("price-feed", cfg.Breaker),
		logger:  logger.With().Str("component", "pricefeed").Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		f.limiter = performance.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	return f, nil
}

// BreakerStats exposes the circuit breaker statistics.
func (f *HTTPFeed) BreakerStats() resilience.CircuitBreakerStats {
	return f.breaker.Stats()
}

// FetchLatestPrice implements Feed.
func (f *HTTPFeed) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return utils.RetryWithResult(ctx, f.cfg.Retry, func() (float64, error) {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return 0, &FetchError{Symbol: symbol, Kind: KindTransient, Err: err}
			}
		}
		price, err := resilience.ExecuteWithResult(f.breaker, ctx, func(ctx context.Context) (float64, error) {
			return f.fetchOnce(ctx, symbol)
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			// Structural so the retry loop gives up until the breaker recovers.
			return 0, &FetchError{Symbol: symbol, Kind: KindStructural, Err: err}
		}
		return price, err
	})
}

func (f *HTTPFeed) fetchOnce(ctx context.Context, symbol string) (float64, error) {
	endpoint := f.cfg.BaseURL + "/quote?" + url.Values{"symbol": {symbol}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, &FetchError{Symbol: symbol, Kind: KindStructural, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		logging.LogAPICall(f.logger, http.MethodGet, "/quote", time.Since(start), err)
		return 0, &FetchError{Symbol: symbol, Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		fe := &FetchError{
			Symbol:     symbol,
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", security.MaskSecrets(strings.TrimSpace(string(body)))),
		}
		logging.LogAPICall(f.logger, http.MethodGet, "/quote", time.Since(start), fe)
		return 0, fe
	}

	var q Quote
	if err := json.NewDecoder(resp.Body).Decode(&q); err != nil {
		return 0, &FetchError{Symbol: symbol, Kind: KindStructural, Err: fmt.Errorf("decode quote: %w", err)}
	}
	if q.Price <= 0 {
		return 0, &FetchError{Symbol: symbol, Kind: KindStructural, Err: fmt.Errorf("non-positive price %v", q.Price)}
	}
	logging.LogAPICall(f.logger, http.MethodGet, "/quote", time.Since(start), nil)
	return q.Price, nil
}

func classifyStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= 500, code == http.StatusRequestTimeout:
		return KindTransient
	default:
		return KindStructural
	}
}
