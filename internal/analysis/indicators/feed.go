package indicators

import (
	"fmt"
	"time"

	"momentum-trader/internal/models"
)

// Feed computes daily and weekly oscillator data from candles.
type Feed struct{}

// NewFeed creates the default oscillator feed.
func NewFeed() *Feed {
	return &Feed{}
}

// Compute returns the daily SMI and the weekly periods for the candles.
func (f *Feed) Compute(candles []models.Candle, params models.OscillatorParams) ([]float64, []models.WeeklyPeriod, error) {
	n := len(candles)
	dates := make([]time.Time, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		dates[i] = c.Timestamp
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}

	daily, err := NewSMI(params).Calculate(highs, lows, closes)
	if err != nil {
		return nil, nil, fmt.Errorf("daily oscillator: %w", err)
	}
	weekly, err := CalculateWeekly(dates, highs, lows, closes, params)
	if err != nil {
		return nil, nil, fmt.Errorf("weekly oscillator: %w", err)
	}
	return daily, weekly.Periods, nil
}

// BuildSeries assembles a backtest-ready price series from candles.
func BuildSeries(symbol string, candles []models.Candle, params models.OscillatorParams) (models.PriceSeries, error) {
	return NewFeed().Series(symbol, candles, params)
}

// Series assembles a backtest-ready price series from candles.
func (f *Feed) Series(symbol string, candles []models.Candle, params models.OscillatorParams) (models.PriceSeries, error) {
	series := models.SeriesFromCandles(symbol, candles)
	daily, periods, err := f.Compute(candles, params)
	if err != nil {
		return models.PriceSeries{}, err
	}
	series.DailyOscillator = daily
	series.WeeklyPeriods = periods
	return series, nil
}
