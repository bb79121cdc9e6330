package analytics

import (
	"math"
	"sort"
	"time"

	"momentum-trader/internal/models"
)

// Histogram bounds: P/L percentages are bucketed into fixed 5% bins from
// -50% to +50%; values outside are clamped into the edge bins.
const (
	HistogramMin   = -50.0
	HistogramMax   = 50.0
	HistogramWidth = 5.0
)

// HistogramBin counts trades whose P/L falls in [Lower, Upper).
type HistogramBin struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Count int     `json:"count"`
}

// PLHistogram buckets closed trades by P/L percentage.
func PLHistogram(closed []models.LedgerTrade) []HistogramBin {
	n := int((HistogramMax - HistogramMin) / HistogramWidth)
	bins := make([]HistogramBin, n)
	for i := range bins {
		bins[i].Lower = HistogramMin + float64(i)*HistogramWidth
		bins[i].Upper = bins[i].Lower + HistogramWidth
	}
	for _, t := range closed {
		i := int(math.Floor((t.PLPercent - HistogramMin) / HistogramWidth))
		if i < 0 {
			i = 0
		}
		if i >= n {
			i = n - 1
		}
		bins[i].Count++
	}
	return bins
}

// HoldingBucket aggregates trades by holding period.
type HoldingBucket struct {
	Label        string  `json:"label"`
	MinDays      int     `json:"minDays"`
	MaxDays      int     `json:"maxDays,omitempty"` // zero means unbounded
	Count        int     `json:"count"`
	AvgPLPercent float64 `json:"avgPLPercent"`
	WinRate      float64 `json:"winRate"`
}

// HoldingPeriods splits closed trades into short (up to 7 days), medium
// (8 to 21) and long (22 and more) holds.
func HoldingPeriods(closed []models.LedgerTrade) []HoldingBucket {
	buckets := []HoldingBucket{
		{Label: "short", MinDays: 0, MaxDays: 7},
		{Label: "medium", MinDays: 8, MaxDays: 21},
		{Label: "long", MinDays: 22},
	}
	sums := make([]float64, len(buckets))
	wins := make([]int, len(buckets))

	for _, t := range closed {
		i := 2
		switch {
		case t.HoldingDays <= 7:
			i = 0
		case t.HoldingDays <= 21:
			i = 1
		}
		buckets[i].Count++
		sums[i] += t.PLPercent
		if t.IsWin() {
			wins[i]++
		}
	}
	for i := range buckets {
		if buckets[i].Count > 0 {
			buckets[i].AvgPLPercent = sums[i] / float64(buckets[i].Count)
			buckets[i].WinRate = float64(wins[i]) / float64(buckets[i].Count) * 100
		}
	}
	return buckets
}

// MonthlyPerformance aggregates trades closed in one calendar month.
type MonthlyPerformance struct {
	Month        string  `json:"month"` // YYYY-MM
	Trades       int     `json:"trades"`
	Wins         int     `json:"wins"`
	WinRate      float64 `json:"winRate"`
	TotalPLValue float64 `json:"totalPLValue"`
	AvgPLPercent float64 `json:"avgPLPercent"`
}

// Monthly groups closed trades by exit month, oldest first.
func Monthly(closed []models.LedgerTrade) []MonthlyPerformance {
	byMonth := make(map[string]*MonthlyPerformance)
	sums := make(map[string]float64)
	for _, t := range closed {
		key := t.ExitTime().Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = &MonthlyPerformance{Month: key}
			byMonth[key] = m
		}
		m.Trades++
		m.TotalPLValue += t.PLValue
		sums[key] += t.PLPercent
		if t.IsWin() {
			m.Wins++
		}
	}

	out := make([]MonthlyPerformance, 0, len(byMonth))
	for key, m := range byMonth {
		m.WinRate = float64(m.Wins) / float64(m.Trades) * 100
		m.AvgPLPercent = sums[key] / float64(m.Trades)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

// Breakdown aggregates trades sharing one key (exit reason or currency).
type Breakdown struct {
	Key          string  `json:"key"`
	Trades       int     `json:"trades"`
	Percent      float64 `json:"percent"`
	WinRate      float64 `json:"winRate"`
	AvgPLPercent float64 `json:"avgPLPercent"`
	TotalPLValue float64 `json:"totalPLValue"`
	Invested     float64 `json:"invested"`
}

// ExitReasons groups closed trades by exit reason, most frequent first.
func ExitReasons(closed []models.LedgerTrade) []Breakdown {
	out := breakdown(closed, func(t models.LedgerTrade) string { return string(t.ExitReason) })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Trades != out[j].Trades {
			return out[i].Trades > out[j].Trades
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// UnknownCurrency labels trades without a currency tag.
const UnknownCurrency = "N/A"

// ByCurrency groups closed trades by market currency tag, alphabetically.
func ByCurrency(closed []models.LedgerTrade) []Breakdown {
	out := breakdown(closed, func(t models.LedgerTrade) string {
		if t.CurrencyTag == "" {
			return UnknownCurrency
		}
		return t.CurrencyTag
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func breakdown(trades []models.LedgerTrade, key func(models.LedgerTrade) string) []Breakdown {
	groups := make(map[string]*Breakdown)
	sums := make(map[string]float64)
	wins := make(map[string]int)
	for _, t := range trades {
		k := key(t)
		b, ok := groups[k]
		if !ok {
			b = &Breakdown{Key: k}
			groups[k] = b
		}
		b.Trades++
		b.TotalPLValue += t.PLValue
		b.Invested += t.InvestmentAmount
		sums[k] += t.PLPercent
		if t.IsWin() {
			wins[k]++
		}
	}

	out := make([]Breakdown, 0, len(groups))
	for k, b := range groups {
		b.Percent = float64(b.Trades) / float64(len(trades)) * 100
		b.WinRate = float64(wins[k]) / float64(b.Trades) * 100
		b.AvgPLPercent = sums[k] / float64(b.Trades)
		out = append(out, *b)
	}
	return out
}

// SizePoint pairs a trade's size with its return.
type SizePoint struct {
	TradeID          string  `json:"tradeId"`
	Symbol           string  `json:"symbol"`
	InvestmentAmount float64 `json:"investmentAmount"`
	PLPercent        float64 `json:"plPercent"`
}

// SizeVsReturn returns one point per closed trade.
func SizeVsReturn(closed []models.LedgerTrade) []SizePoint {
	points := make([]SizePoint, len(closed))
	for i, t := range closed {
		points[i] = SizePoint{
			TradeID:          t.ID,
			Symbol:           t.Symbol,
			InvestmentAmount: t.InvestmentAmount,
			PLPercent:        t.PLPercent,
		}
	}
	return points
}

// HeatmapDay is the average P/L of trades exiting on one day.
type HeatmapDay struct {
	Date         time.Time `json:"date"`
	Trades       int       `json:"trades"`
	AvgPLPercent float64   `json:"avgPLPercent"`
}

// CalendarHeatmap returns one entry per day of year, with zero placeholders
// for days without exits. Dates are taken in UTC.
func CalendarHeatmap(closed []models.LedgerTrade, year int) []HeatmapDay {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	days := int(end.Sub(start).Hours() / 24)

	out := make([]HeatmapDay, days)
	sums := make([]float64, days)
	for i := range out {
		out[i].Date = start.AddDate(0, 0, i)
	}
	for _, t := range closed {
		exit := t.ExitTime().UTC()
		if exit.Year() != year {
			continue
		}
		i := exit.YearDay() - 1
		out[i].Trades++
		sums[i] += t.PLPercent
	}
	for i := range out {
		if out[i].Trades > 0 {
			out[i].AvgPLPercent = sums[i] / float64(out[i].Trades)
		}
	}
	return out
}
