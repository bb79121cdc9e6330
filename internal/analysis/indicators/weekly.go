package indicators

import (
	"errors"
	"math"
	"time"

	"momentum-trader/internal/models"
)

// WeeklyOscillator is the weekly-aggregated oscillator over a daily series.
type WeeklyOscillator struct {
	// Daily carries each week's value on every day of that week.
	Daily []float64
	// Periods lists the weeks with a defined value, in time order.
	Periods []models.WeeklyPeriod
}

type weekBucket struct {
	start, end int
	high, low  float64
	close      float64
}

// groupWeeks splits ascending daily dates into ISO-week buckets.
func groupWeeks(dates []time.Time, highs, lows, closes []float64) []weekBucket {
	var buckets []weekBucket
	lastYear, lastWeek := -1, -1
	for i, d := range dates {
		year, week := d.ISOWeek()
		if year != lastYear || week != lastWeek {
			buckets = append(buckets, weekBucket{start: i, end: i, high: highs[i], low: lows[i], close: closes[i]})
			lastYear, lastWeek = year, week
			continue
		}
		b := &buckets[len(buckets)-1]
		b.end = i
		b.high = math.Max(b.high, highs[i])
		b.low = math.Min(b.low, lows[i])
		b.close = closes[i]
	}
	return buckets
}

// CalculateWeekly aggregates the daily bars into ISO weeks, computes the SMI
// over the weekly bars and maps each week back onto its daily index range.
// Weeks still inside the oscillator warm-up are left out of Periods and are
// NaN in Daily; too few weeks yields no periods at all.
func CalculateWeekly(dates []time.Time, highs, lows, closes []float64, params models.OscillatorParams) (*WeeklyOscillator, error) {
	n := len(dates)
	if len(highs) != n || len(lows) != n || len(closes) != n {
		return nil, ErrLengthMismatch
	}

	buckets := groupWeeks(dates, highs, lows, closes)
	wh := make([]float64, len(buckets))
	wl := make([]float64, len(buckets))
	wc := make([]float64, len(buckets))
	for i, b := range buckets {
		wh[i], wl[i], wc[i] = b.high, b.low, b.close
	}

	out := &WeeklyOscillator{Daily: nanSeries(n)}
	values, err := NewSMI(params).Calculate(wh, wl, wc)
	if errors.Is(err, ErrInsufficientData) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}

	for i, b := range buckets {
		v := values[i]
		if math.IsNaN(v) {
			continue
		}
		out.Periods = append(out.Periods, models.WeeklyPeriod{StartIndex: b.start, EndIndex: b.end, Value: v})
		for j := b.start; j <= b.end; j++ {
			out.Daily[j] = v
		}
	}
	return out, nil
}
