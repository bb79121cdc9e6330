package trading

import (
	"fmt"
	"math"
	"time"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/models"
)

// backtestState holds the mutable state of a single replay.
type backtestState struct {
	open              *models.SimulatedTrade
	everOpened        bool
	previousCompleted bool
}

// canEnter reports whether the one-position rule allows a new entry.
func (s *backtestState) canEnter() bool {
	return s.open == nil && (!s.everOpened || s.previousCompleted)
}

// Simulate replays the series and returns the completed simulated trades plus
// at most one still-open trade. Invalid input aborts the run before any trade
// is produced.
func Simulate(series models.PriceSeries, params BacktestParams) (*BacktestResult, error) {
	if err := validateSeries(series); err != nil {
		return nil, apperrors.Wrap(err, "invalid series")
	}
	if err := validateParams(params); err != nil {
		return nil, apperrors.Wrap(err, "invalid parameters")
	}

	result := &BacktestResult{
		CompletedTrades: make([]models.SimulatedTrade, 0),
		WarmupEnd:       WarmupBoundary(series.Dates[0], params.WarmupMonths),
	}

	state := &backtestState{}
	weekly := newWeeklyLookup(series.WeeklyPeriods)

	for i := 1; i < series.Len(); i++ {
		price := series.Prices[i]

		if state.open != nil {
			trade := state.open
			trade.HoldingDays = i - trade.EntryIndex
			trade.CurrentPrice = price
			trade.CurrentPLPercent = percentChange(trade.EntryPrice, price)

			checks := BacktestChecks(trade.CurrentPLPercent, trade.HoldingDays, params)
			if reason, ok := EvaluateExit(checks, BacktestExitRules); ok {
				exitDate := series.Dates[i]
				trade.ExitIndex = i
				trade.ExitDate = &exitDate
				trade.ExitPrice = price
				trade.ExitReason = reason
				trade.PLPercent = trade.CurrentPLPercent

				result.CompletedTrades = append(result.CompletedTrades, *trade)
				state.open = nil
				state.previousCompleted = true
			}
			continue
		}

		if !state.canEnter() {
			continue
		}
		if series.Dates[i].Before(result.WarmupEnd) {
			continue
		}

		osc := series.DailyOscillator[i]
		if !(osc < params.EntryThreshold && osc > series.DailyOscillator[i-1]) {
			continue
		}

		weeklyValue, weeklyOK := weekly.confirms(i)
		if params.UseWeeklyFilter && !weeklyOK {
			continue
		}

		state.open = &models.SimulatedTrade{
			EntryIndex:            i,
			EntryDate:             series.Dates[i],
			EntryPrice:            price,
			EntryOscillator:       osc,
			EntryWeeklyOscillator: weeklyValue,
			CurrentPrice:          price,
		}
		state.everOpened = true
		state.previousCompleted = false
	}

	if state.open != nil {
		active := *state.open
		result.ActiveTrade = &active
	}

	return result, nil
}

// weeklyLookup resolves the weekly period containing a daily index. Periods are
// ordered, so a forward replay only ever advances the cursor.
type weeklyLookup struct {
	periods []models.WeeklyPeriod
	cursor  int
}

func newWeeklyLookup(periods []models.WeeklyPeriod) *weeklyLookup {
	return &weeklyLookup{periods: periods}
}

// confirms returns the weekly value for the period containing i and whether it
// exceeds the preceding period's value. With no preceding period, or no period
// covering i, the filter passes.
func (w *weeklyLookup) confirms(i int) (float64, bool) {
	for w.cursor < len(w.periods) && w.periods[w.cursor].EndIndex < i {
		w.cursor++
	}
	if w.cursor >= len(w.periods) || !w.periods[w.cursor].Contains(i) {
		return 0, true
	}
	current := w.periods[w.cursor]
	if w.cursor == 0 {
		return current.Value, true
	}
	previous := w.periods[w.cursor-1]
	return current.Value, current.Value > previous.Value
}

// validateSeries validates the replay inputs.
func validateSeries(s models.PriceSeries) error {
	n := len(s.Dates)
	if n == 0 {
		return apperrors.NewValidationError("dates", 0, "series is empty")
	}
	if len(s.Prices) != n {
		return apperrors.NewValidationError("prices", len(s.Prices), fmt.Sprintf("length must match dates (%d)", n))
	}
	if len(s.DailyOscillator) != n {
		return apperrors.NewValidationError("dailyOscillator", len(s.DailyOscillator), fmt.Sprintf("length must match dates (%d)", n))
	}
	for i := 1; i < n; i++ {
		if s.Dates[i].Before(s.Dates[i-1]) {
			return apperrors.NewValidationError("dates", i, "dates must be in ascending order")
		}
	}
	for i, p := range s.Prices {
		if !isFinite(p) || p <= 0 {
			return apperrors.NewValidationError("prices", i, "price must be a positive finite number")
		}
	}
	prevEnd := -1
	for i, p := range s.WeeklyPeriods {
		if p.StartIndex < 0 || p.EndIndex >= n || p.StartIndex > p.EndIndex {
			return apperrors.NewValidationError("weeklyPeriods", i, "period indexes out of range")
		}
		if p.StartIndex <= prevEnd {
			return apperrors.NewValidationError("weeklyPeriods", i, "periods must be ordered and non-overlapping")
		}
		prevEnd = p.EndIndex
	}
	return nil
}

// validateParams validates the strategy parameters.
func validateParams(p BacktestParams) error {
	if !isFinite(p.EntryThreshold) {
		return apperrors.NewValidationError("entryThreshold", p.EntryThreshold, "must be finite")
	}
	if !isFinite(p.TakeProfitPercent) || p.TakeProfitPercent <= 0 {
		return apperrors.NewValidationError("takeProfitPercent", p.TakeProfitPercent, "must be a positive finite number")
	}
	if !isFinite(p.StopLossPercent) || p.StopLossPercent <= 0 {
		return apperrors.NewValidationError("stopLossPercent", p.StopLossPercent, "must be a positive finite number")
	}
	if p.MaxHoldingDays <= 0 {
		return apperrors.NewValidationError("maxHoldingDays", p.MaxHoldingDays, "must be positive")
	}
	if p.WarmupMonths < 0 {
		return apperrors.NewValidationError("warmupMonths", p.WarmupMonths, "must not be negative")
	}
	return nil
}

// Summarize calculates aggregate metrics over the completed trades of a replay.
func Summarize(result *BacktestResult) BacktestSummary {
	summary := BacktestSummary{
		TotalTrades:  len(result.CompletedTrades),
		HasOpenTrade: result.ActiveTrade != nil,
		WarmupEnd:    result.WarmupEnd,
	}
	if summary.TotalTrades == 0 {
		return summary
	}

	var grossProfit, grossLoss float64
	for _, trade := range result.CompletedTrades {
		summary.TotalReturn += trade.PLPercent
		if trade.PLPercent > 0 {
			summary.WinningTrades++
			grossProfit += trade.PLPercent
		} else {
			summary.LosingTrades++
			grossLoss += math.Abs(trade.PLPercent)
		}
		if trade.HoldingDays > summary.MaxHoldingDays {
			summary.MaxHoldingDays = trade.HoldingDays
		}
	}

	summary.WinRate = float64(summary.WinningTrades) / float64(summary.TotalTrades) * 100
	summary.AvgReturn = summary.TotalReturn / float64(summary.TotalTrades)
	if summary.WinningTrades > 0 {
		summary.AvgWin = grossProfit / float64(summary.WinningTrades)
	}
	if summary.LosingTrades > 0 {
		summary.AvgLoss = grossLoss / float64(summary.LosingTrades)
	}
	summary.ProfitFactor = ProfitFactor(grossProfit, grossLoss)

	return summary
}

// ProfitFactor divides gross profit by gross loss. It is +Inf when there is
// profit but no loss, and zero when both are zero.
func ProfitFactor(grossProfit, grossLoss float64) models.Ratio {
	switch {
	case grossLoss > 0:
		return models.Ratio(grossProfit / grossLoss)
	case grossProfit > 0:
		return models.Ratio(math.Inf(1))
	default:
		return 0
	}
}

func percentChange(from, to float64) float64 {
	return (to - from) / from * 100
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// WarmupBoundary returns the first date on which entries are allowed.
func WarmupBoundary(first time.Time, months int) time.Time {
	if months == 0 {
		months = DefaultWarmupMonths
	}
	return first.AddDate(0, months, 0)
}
