// Package optimizer runs an exhaustive parameter search over oscillator
// periods and strategy thresholds, replaying the backtest for every
// combination and ranking the results.
package optimizer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/models"
	"momentum-trader/internal/performance"
	"momentum-trader/internal/trading"
)

const (
	// DefaultMinTrades rejects results with too few completed trades.
	DefaultMinTrades = 5
	// DefaultMaxCombinations bounds the grid size of a single run.
	DefaultMaxCombinations = 500000
	// ProfitFactorCap replaces an unbounded profit factor when scoring.
	ProfitFactorCap = 100.0
)

// OscillatorFeed computes the daily oscillator and weekly periods for a
// candle series.
type OscillatorFeed interface {
	Compute(candles []models.Candle, params models.OscillatorParams) ([]float64, []models.WeeklyPeriod, error)
}

// Combination is one point of the search grid.
type Combination struct {
	Oscillator models.OscillatorParams `json:"oscillator"`
	Backtest   trading.BacktestParams  `json:"backtest"`
}

// Result is the outcome of one combination.
type Result struct {
	Combination
	Summary   trading.BacktestSummary `json:"summary"`
	Score     float64                 `json:"score"`
	Qualified bool                    `json:"qualified"`
	Error     string                  `json:"error,omitempty"`
	index     int
}

// Report is the outcome of a full search. Results are ordered best first.
type Report struct {
	Symbol       string        `json:"symbol"`
	Best         *Result       `json:"best,omitempty"`
	Results      []Result      `json:"results"`
	Combinations int           `json:"combinations"`
	Qualified    int           `json:"qualified"`
	Failed       int           `json:"failed"`
	MinTrades    int           `json:"minTrades"`
	Duration     time.Duration `json:"duration"`
}

// Optimizer searches the parameter grid.
type Optimizer struct {
	feed            OscillatorFeed
	workers         int
	minTrades       int
	maxCombinations int
	useWeeklyFilter bool
	warmupMonths    int
	logger          zerolog.Logger
}

// Option configures an Optimizer.
type Option func(*Optimizer)

// WithWorkers sets the worker count; zero means one per CPU.
func WithWorkers(n int) Option {
	return func(o *Optimizer) { o.workers = n }
}

// WithMinTrades sets the minimum completed-trade floor.
func WithMinTrades(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.minTrades = n
		}
	}
}

// WithMaxCombinations bounds the grid size.
func WithMaxCombinations(n int) Option {
	return func(o *Optimizer) {
		if n > 0 {
			o.maxCombinations = n
		}
	}
}

// WithWeeklyFilter toggles the weekly confirmation for every run.
func WithWeeklyFilter(enabled bool) Option {
	return func(o *Optimizer) { o.useWeeklyFilter = enabled }
}

// WithWarmupMonths overrides the warm-up used by every run.
func WithWarmupMonths(months int) Option {
	return func(o *Optimizer) { o.warmupMonths = months }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Optimizer) { o.logger = logger }
}

// New creates an optimizer over feed.
func New(feed OscillatorFeed, opts ...Option) *Optimizer {
	o := &Optimizer{
		feed:            feed,
		minTrades:       DefaultMinTrades,
		maxCombinations: DefaultMaxCombinations,
		useWeeklyFilter: true,
		warmupMonths:    trading.DefaultWarmupMonths,
		logger:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Score rates a summary as totalReturn * winRate/100 * profitFactor, with an
// unbounded profit factor capped at ProfitFactorCap.
func Score(summary trading.BacktestSummary) float64 {
	pf := float64(summary.ProfitFactor)
	if math.IsInf(pf, 1) || pf > ProfitFactorCap {
		pf = ProfitFactorCap
	}
	score := summary.TotalReturn * (summary.WinRate / 100) * pf
	if !finite(score) {
		return 0
	}
	return score
}

// oscillatorRun is the shared oscillator output for one (r, s, u) triple.
type oscillatorRun struct {
	params  models.OscillatorParams
	daily   []float64
	periods []models.WeeklyPeriod
	err     error
}

// Run evaluates every combination against the candles. When no combination
// reaches the trade floor the report is still returned, together with an
// error wrapping ErrNoQualifyingResult.
func (o *Optimizer) Run(ctx context.Context, symbol string, candles []models.Candle, ranges Ranges) (*Report, error) {
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimization aborted: %w", err)
	}
	if len(candles) == 0 {
		return nil, apperrors.NewValidationError("candles", 0, "no price history")
	}
	g, err := expand(ranges)
	if err != nil {
		return nil, apperrors.Wrap(err, "invalid ranges")
	}
	if g.Size() > o.maxCombinations {
		return nil, apperrors.NewValidationError("ranges", g.Size(), fmt.Sprintf("grid exceeds %d combinations", o.maxCombinations))
	}

	logger := o.logger.With().Str("symbol", symbol).Int("combinations", g.Size()).Logger()
	logger.Info().Msg("Starting optimization")

	base := models.SeriesFromCandles(symbol, candles)

	pool := performance.NewWorkerPool(o.workers)
	pool.Start()

	// Each oscillator triple is computed once and shared by its strategy runs.
	oscillators := make([]oscillatorRun, 0, g.oscillatorCount())
	for _, r := range g.r {
		for _, s := range g.s {
			for _, u := range g.u {
				oscillators = append(oscillators, oscillatorRun{params: models.OscillatorParams{R: r, S: s, U: u}})
			}
		}
	}
	if err := o.dispatch(ctx, pool, len(oscillators), func(i int) {
		run := &oscillators[i]
		run.daily, run.periods, run.err = o.feed.Compute(candles, run.params)
	}); err != nil {
		pool.Stop()
		return nil, err
	}

	results := make([]Result, g.Size())
	strategies := g.strategyCount()
	if err := o.dispatch(ctx, pool, len(results), func(i int) {
		osc := &oscillators[i/strategies]
		results[i] = o.evaluate(base, osc, g.strategy(i%strategies))
		results[i].index = i
	}); err != nil {
		pool.Stop()
		return nil, err
	}
	pool.Drain()

	report := &Report{
		Symbol:       symbol,
		Results:      results,
		Combinations: len(results),
		MinTrades:    o.minTrades,
	}
	for i := range results {
		switch {
		case results[i].Error != "":
			report.Failed++
		case results[i].Qualified:
			report.Qualified++
		}
	}

	sortResults(report.Results)
	if len(report.Results) > 0 && report.Results[0].Qualified {
		best := report.Results[0]
		report.Best = &best
	}
	report.Duration = time.Since(start)

	logger.Info().
		Int("qualified", report.Qualified).
		Int("failed", report.Failed).
		Dur("duration", report.Duration).
		Msg("Optimization complete")

	if report.Best == nil {
		return report, fmt.Errorf("%w: no combination produced %d or more trades", apperrors.ErrNoQualifyingResult, o.minTrades)
	}
	return report, nil
}

// dispatch runs task(0..n-1) on the pool and waits for all of them.
func (o *Optimizer) dispatch(ctx context.Context, pool *performance.WorkerPool, n int, task func(i int)) error {
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		i := i
		if err := pool.SubmitContext(ctx, func() {
			task(i)
			done <- struct{}{}
		}); err != nil {
			return fmt.Errorf("optimization aborted: %w", err)
		}
	}
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("optimization aborted: %w", ctx.Err())
		}
	}
	return nil
}

// strategy is the threshold part of one combination.
type strategy struct {
	threshold  float64
	takeProfit float64
	stopLoss   float64
	holding    int
}

// strategy decodes the i-th threshold combination, holding days varying fastest.
func (g *grid) strategy(i int) strategy {
	var st strategy
	nh, ns, nt := len(g.maxHoldingDays), len(g.stopLosses), len(g.takeProfits)
	st.holding = g.maxHoldingDays[i%nh]
	i /= nh
	st.stopLoss = g.stopLosses[i%ns]
	i /= ns
	st.takeProfit = g.takeProfits[i%nt]
	i /= nt
	st.threshold = g.thresholds[i]
	return st
}

func (o *Optimizer) evaluate(base models.PriceSeries, osc *oscillatorRun, st strategy) Result {
	result := Result{
		Combination: Combination{
			Oscillator: osc.params,
			Backtest: trading.BacktestParams{
				EntryThreshold:    st.threshold,
				TakeProfitPercent: st.takeProfit,
				StopLossPercent:   st.stopLoss,
				MaxHoldingDays:    st.holding,
				UseWeeklyFilter:   o.useWeeklyFilter,
				WarmupMonths:      o.warmupMonths,
			},
		},
	}
	if osc.err != nil {
		result.Error = osc.err.Error()
		return result
	}

	series := base
	series.DailyOscillator = osc.daily
	series.WeeklyPeriods = osc.periods

	backtest, err := trading.Simulate(series, result.Backtest)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Summary = trading.Summarize(backtest)
	result.Score = Score(result.Summary)
	result.Qualified = result.Summary.TotalTrades >= o.minTrades
	return result
}

// sortResults orders qualified results first, then by descending score, and
// keeps grid order among ties.
func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Qualified != b.Qualified {
			return a.Qualified
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.index < b.index
	})
}
