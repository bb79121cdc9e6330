// Package models provides domain models for the trading application.
package models

import (
	"encoding/json"
	"math"
	"time"
)

// Candle represents OHLCV data for one trading day.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// WeeklyPeriod is one weekly aggregation bucket over a daily series.
// StartIndex and EndIndex are inclusive indexes into the daily sequences.
type WeeklyPeriod struct {
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
	Value      float64 `json:"oscillatorValue"`
}

// Contains reports whether the daily index i falls inside the period.
func (p WeeklyPeriod) Contains(i int) bool {
	return i >= p.StartIndex && i <= p.EndIndex
}

// OscillatorParams are the momentum oscillator periods: R is the high/low
// lookback, S and U are the first and second EMA smoothing lengths.
type OscillatorParams struct {
	R int `json:"r"`
	S int `json:"s"`
	U int `json:"u"`
}

// DefaultOscillatorParams returns the commonly used 10/3/3 settings.
func DefaultOscillatorParams() OscillatorParams {
	return OscillatorParams{R: 10, S: 3, U: 3}
}

// PriceSeries holds the parallel daily sequences replayed by the backtest engine.
// Dates, Prices and DailyOscillator share length and ordering; WeeklyPeriods are
// contiguous, non-overlapping and ordered by time.
type PriceSeries struct {
	Symbol          string
	Dates           []time.Time
	Prices          []float64
	DailyOscillator []float64
	WeeklyPeriods   []WeeklyPeriod
}

// Len returns the number of daily observations.
func (s PriceSeries) Len() int {
	return len(s.Dates)
}

// SeriesFromCandles builds a price series (closes only) from candles.
// Oscillator data must be attached separately.
func SeriesFromCandles(symbol string, candles []Candle) PriceSeries {
	s := PriceSeries{
		Symbol: symbol,
		Dates:  make([]time.Time, len(candles)),
		Prices: make([]float64, len(candles)),
	}
	for i, c := range candles {
		s.Dates[i] = c.Timestamp
		s.Prices[i] = c.Close
	}
	return s
}

// Ratio is a float that may be unbounded. Infinite values encode as the JSON
// string "Infinity" since JSON numbers cannot carry them.
type Ratio float64

// IsUnbounded reports whether the ratio is +Inf.
func (r Ratio) IsUnbounded() bool {
	return math.IsInf(float64(r), 1)
}

// MarshalJSON implements json.Marshaler.
func (r Ratio) MarshalJSON() ([]byte, error) {
	if r.IsUnbounded() {
		return []byte(`"Infinity"`), nil
	}
	if math.IsNaN(float64(r)) || math.IsInf(float64(r), -1) {
		return []byte("0"), nil
	}
	return json.Marshal(float64(r))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == `"Infinity"` {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
