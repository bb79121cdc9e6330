// Package indicators computes the momentum oscillator that drives entry
// signals: the Stochastic Momentum Index over daily and weekly bars.
package indicators

import (
	"fmt"
	"math"

	"momentum-trader/internal/models"
)

// SMI calculates the Stochastic Momentum Index. For each bar the distance of
// the close from the midpoint of the r-bar high/low range is double smoothed
// with EMAs of length s then u, as is the range itself; the index is
// 100 * smoothedDistance / (smoothedRange / 2), bounded to [-100, 100].
type SMI struct {
	params models.OscillatorParams
}

// NewSMI creates a new SMI indicator.
func NewSMI(params models.OscillatorParams) *SMI {
	return &SMI{params: params}
}

func (m *SMI) Name() string {
	return fmt.Sprintf("SMI_%d_%d_%d", m.params.R, m.params.S, m.params.U)
}

// Period returns the number of bars before the first defined value.
func (m *SMI) Period() int {
	return m.params.R + m.params.S + m.params.U - 2
}

// Calculate returns one value per bar; bars inside the warm-up are NaN.
func (m *SMI) Calculate(highs, lows, closes []float64) ([]float64, error) {
	r, s, u := m.params.R, m.params.S, m.params.U
	if r <= 0 || s <= 0 || u <= 0 {
		return nil, ErrInvalidPeriod
	}
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return nil, ErrLengthMismatch
	}
	if n < m.Period() {
		return nil, ErrInsufficientData
	}

	// Distance and range are defined from bar r-1 onwards.
	width := n - r + 1
	distance := make([]float64, width)
	span := make([]float64, width)
	for i := r - 1; i < n; i++ {
		hh := highest(highs[i-r+1 : i+1])
		ll := lowest(lows[i-r+1 : i+1])
		distance[i-r+1] = closes[i] - (hh+ll)/2
		span[i-r+1] = hh - ll
	}

	rel := doubleSmooth(distance, s, u)
	rng := doubleSmooth(span, s, u)

	result := nanSeries(n)
	offset := r - 1 + s - 1 + u - 1
	for k := range rel {
		v := 0.0
		if rng[k] > 0 {
			v = 100 * rel[k] / (rng[k] / 2)
		}
		result[offset+k] = math.Max(-100, math.Min(100, v))
	}
	return result, nil
}

// doubleSmooth applies EMA(s) then EMA(u) and returns only the defined tail.
func doubleSmooth(values []float64, s, u int) []float64 {
	first := CalculateEMA(values, s)
	if first == nil {
		return nil
	}
	second := CalculateEMA(first[s-1:], u)
	if second == nil {
		return nil
	}
	return second[u-1:]
}

// CalculateCandles is a convenience wrapper over candle data.
func (m *SMI) CalculateCandles(candles []models.Candle) ([]float64, error) {
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return m.Calculate(highs, lows, closes)
}
