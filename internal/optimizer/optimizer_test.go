package optimizer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/models"
	"momentum-trader/internal/trading"
)

// fakeFeed dips the oscillator every ten days and improves it the day after,
// ignoring the requested periods. Triples with R == failR fail.
type fakeFeed struct {
	mu    sync.Mutex
	calls map[models.OscillatorParams]int
	failR int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{calls: make(map[models.OscillatorParams]int)}
}

func (f *fakeFeed) Compute(candles []models.Candle, params models.OscillatorParams) ([]float64, []models.WeeklyPeriod, error) {
	f.mu.Lock()
	f.calls[params]++
	f.mu.Unlock()

	if params.R == f.failR {
		return nil, nil, errors.New("not enough data")
	}
	daily := make([]float64, len(candles))
	for i := range daily {
		switch i % 10 {
		case 0:
			daily[i] = -80
		case 1:
			daily[i] = -60
		}
	}
	return daily, nil, nil
}

// risingCandles climbs 2% a day so every entry reaches a 4% target.
func risingCandles(n int) []models.Candle {
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, n)
	price := 100.0
	for i := range candles {
		candles[i] = models.Candle{Timestamp: start.AddDate(0, 0, i), Open: price, High: price, Low: price, Close: price}
		price *= 1.02
	}
	return candles
}

func testRanges() Ranges {
	return Ranges{
		R:                 Range{Min: 5, Max: 7, Step: 2},
		S:                 Fixed(3),
		U:                 Fixed(3),
		EntryThreshold:    Range{Min: -70, Max: -50, Step: 20},
		TakeProfitPercent: Range{Min: 4, Max: 6, Step: 2},
		StopLossPercent:   Fixed(5),
		MaxHoldingDays:    Fixed(20),
	}
}

func TestRange_Values(t *testing.T) {
	tests := []struct {
		name  string
		rng   Range
		want  []float64
		valid bool
	}{
		{"half steps", Range{Min: 1, Max: 2, Step: 0.5}, []float64{1, 1.5, 2}, true},
		{"decimal steps", Range{Min: 0.1, Max: 0.3, Step: 0.1}, []float64{0.1, 0.2, 0.3}, true},
		{"step overshoots max", Range{Min: 0, Max: 5, Step: 2}, []float64{0, 2, 4}, true},
		{"single value", Range{Min: 3, Max: 3}, []float64{3}, true},
		{"inverted", Range{Min: 5, Max: 1, Step: 1}, nil, false},
		{"zero step", Range{Min: 1, Max: 5}, nil, false},
		{"NaN bound", Range{Min: math.NaN(), Max: 5, Step: 1}, nil, false},
		{"too many values", Range{Min: -1e30, Max: 0, Step: 1}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.rng.Values("field")
			if !tt.valid {
				if !errors.Is(err, apperrors.ErrInputValidation) {
					t.Errorf("expected ErrInputValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Values failed: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Values() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Values()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if _, err := (Range{Min: 1, Max: 2, Step: 0.5}).Ints("r", 1); err == nil {
		t.Error("expected fractional integer range to fail")
	}
	if _, err := (Range{Min: 0, Max: 2, Step: 1}).Ints("r", 1); err == nil {
		t.Error("expected range below minimum to fail")
	}
	if n, err := testRanges().Size(); err != nil || n != 8 {
		t.Errorf("Size() = %d, %v; want 8", n, err)
	}
}

func TestRanges_OversizedGridIsRejected(t *testing.T) {
	wide := Range{Min: 1, Max: 400000, Step: 1}
	rg := Ranges{R: wide, S: wide, U: wide, EntryThreshold: wide, TakeProfitPercent: wide, StopLossPercent: wide, MaxHoldingDays: wide}

	n, err := rg.Size()
	if err != nil {
		t.Fatalf("Size failed: %v", err)
	}
	if n != math.MaxInt {
		t.Errorf("Size() = %d, want saturation at math.MaxInt", n)
	}

	o := New(newFakeFeed(), WithWorkers(1))
	candles := []models.Candle{{Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1}}
	if _, err := o.Run(context.Background(), "SYM", candles, rg); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("expected ErrInputValidation, got %v", err)
	}
}

func TestScore(t *testing.T) {
	summary := trading.BacktestSummary{TotalReturn: 10, WinRate: 50, ProfitFactor: 2}
	if got := Score(summary); got != 10 {
		t.Errorf("Score() = %v, want 10", got)
	}
	summary.ProfitFactor = models.Ratio(math.Inf(1))
	if got := Score(summary); got != 500 {
		t.Errorf("Score() with unbounded profit factor = %v, want 500", got)
	}
	if got := Score(trading.BacktestSummary{}); got != 0 {
		t.Errorf("Score() of empty summary = %v, want 0", got)
	}
}

func TestRun_SelectsBestQualifiedCombination(t *testing.T) {
	feed := newFakeFeed()
	opt := New(feed, WithWorkers(4), WithWarmupMonths(1), WithWeeklyFilter(false))

	report, err := opt.Run(context.Background(), "TEST", risingCandles(300), testRanges())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Combinations != 8 || len(report.Results) != 8 {
		t.Fatalf("expected 8 results, got %d/%d", report.Combinations, len(report.Results))
	}
	// Threshold -70 never triggers on a -60 reading.
	if report.Qualified != 4 {
		t.Errorf("expected 4 qualified results, got %d", report.Qualified)
	}
	for params, n := range feed.calls {
		if n != 1 {
			t.Errorf("oscillator %+v computed %d times, want once", params, n)
		}
	}
	if len(feed.calls) != 2 {
		t.Errorf("expected 2 oscillator computations, got %d", len(feed.calls))
	}

	best := report.Best
	if best == nil {
		t.Fatal("expected a best result")
	}
	if best.Backtest.EntryThreshold != -50 {
		t.Errorf("expected best threshold -50, got %v", best.Backtest.EntryThreshold)
	}
	if best.Summary.TotalTrades < DefaultMinTrades {
		t.Errorf("best result has only %d trades", best.Summary.TotalTrades)
	}
	for i := 1; i < len(report.Results); i++ {
		prev, cur := report.Results[i-1], report.Results[i]
		if prev.Qualified == cur.Qualified && prev.Score < cur.Score {
			t.Errorf("results not sorted by score at %d", i)
		}
		if !prev.Qualified && cur.Qualified {
			t.Errorf("unqualified result ranked above qualified at %d", i)
		}
	}
}

func TestRun_FeedFailuresAreCounted(t *testing.T) {
	feed := newFakeFeed()
	feed.failR = 7
	opt := New(feed, WithWorkers(2), WithWarmupMonths(1), WithWeeklyFilter(false))

	report, err := opt.Run(context.Background(), "TEST", risingCandles(300), testRanges())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Failed != 4 {
		t.Errorf("expected 4 failed combinations, got %d", report.Failed)
	}
	if report.Best == nil || report.Best.Oscillator.R != 5 {
		t.Errorf("expected best result from the working oscillator, got %+v", report.Best)
	}
}

func TestRun_NoQualifyingResult(t *testing.T) {
	opt := New(newFakeFeed(), WithMinTrades(1000), WithWarmupMonths(1), WithWeeklyFilter(false))

	report, err := opt.Run(context.Background(), "TEST", risingCandles(300), testRanges())
	if !errors.Is(err, apperrors.ErrNoQualifyingResult) {
		t.Fatalf("expected ErrNoQualifyingResult, got %v", err)
	}
	if report == nil || report.Best != nil || len(report.Results) != 8 {
		t.Errorf("expected full grid without a best result, got %+v", report)
	}
}

func TestRun_InputValidation(t *testing.T) {
	opt := New(newFakeFeed(), WithMaxCombinations(4))

	if _, err := opt.Run(context.Background(), "TEST", nil, testRanges()); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("expected ErrInputValidation for empty candles, got %v", err)
	}
	if _, err := opt.Run(context.Background(), "TEST", risingCandles(50), testRanges()); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("expected ErrInputValidation for oversized grid, got %v", err)
	}
	bad := testRanges()
	bad.S = Range{Min: 0, Max: 0}
	if _, err := opt.Run(context.Background(), "TEST", risingCandles(50), bad); !errors.Is(err, apperrors.ErrInputValidation) {
		t.Errorf("expected ErrInputValidation for zero smoothing, got %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newFakeFeed(), WithWorkers(1)).Run(ctx, "TEST", risingCandles(300), DefaultRanges())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
