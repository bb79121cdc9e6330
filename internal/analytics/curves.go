package analytics

import (
	"time"

	"momentum-trader/internal/models"
)

// EquityPoint is one point of the cumulative P/L curve.
type EquityPoint struct {
	Date          time.Time `json:"date"`
	EquityValue   float64   `json:"equityValue"`
	EquityPercent float64   `json:"equityPercent"`
	// Current marks the trailing point that includes unrealized P/L.
	Current bool `json:"current,omitempty"`
}

// DrawdownPoint is the percentage below the running equity peak at a date.
type DrawdownPoint struct {
	Date            time.Time `json:"date"`
	DrawdownPercent float64   `json:"drawdownPercent"`
}

// EquityCurve accumulates realized P/L over closed trades in exit order,
// seeded with zero at the first trade's entry date. EquityPercent is the
// running sum of trade P/L percentages. With active trades given, a final
// point dated asOf adds their unrealized P/L.
func EquityCurve(closed, active []models.LedgerTrade, asOf time.Time) []EquityPoint {
	sorted := byExitDate(closed)
	points := make([]EquityPoint, 0, len(sorted)+2)

	switch {
	case len(sorted) > 0:
		points = append(points, EquityPoint{Date: sorted[0].EntryDate})
	case len(active) > 0:
		first := active[0].EntryDate
		for _, t := range active[1:] {
			if t.EntryDate.Before(first) {
				first = t.EntryDate
			}
		}
		points = append(points, EquityPoint{Date: first})
	default:
		return points
	}

	var value, pct float64
	for _, t := range sorted {
		value += t.PLValue
		pct += t.PLPercent
		points = append(points, EquityPoint{Date: t.ExitTime(), EquityValue: value, EquityPercent: pct})
	}

	if len(active) > 0 {
		for _, t := range active {
			value += t.CurrentPLValue
			pct += t.CurrentPLPercent
		}
		points = append(points, EquityPoint{Date: asOf, EquityValue: value, EquityPercent: pct, Current: true})
	}
	return points
}

// DrawdownCurve re-expresses an equity curve as percentage below peak.
// Points before equity first turns positive report zero.
func DrawdownCurve(equity []EquityPoint) []DrawdownPoint {
	points := make([]DrawdownPoint, len(equity))
	var peak float64
	for i, p := range equity {
		if p.EquityValue > peak {
			peak = p.EquityValue
		}
		points[i] = DrawdownPoint{Date: p.Date}
		if peak > 0 {
			points[i].DrawdownPercent = (peak - p.EquityValue) / peak * 100
		}
	}
	return points
}
