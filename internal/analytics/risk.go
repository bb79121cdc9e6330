package analytics

import (
	"math"
	"time"

	"momentum-trader/internal/models"
)

// SharpeRatio annualizes the mean excess daily return of closed trades. Each
// trade's return is converted to the daily compounding rate that produces it
// over its holding period; riskFreeRate is an annual percentage. The result is
// zero whenever it would not be a finite number.
func SharpeRatio(closed []models.LedgerTrade, riskFreeRate float64) float64 {
	if len(closed) == 0 {
		return 0
	}

	daily := make([]float64, len(closed))
	var mean float64
	for i, t := range closed {
		days := t.HoldingDays
		if days < 1 {
			days = 1
		}
		daily[i] = dailyRate(t.PLPercent, float64(days))
		mean += daily[i]
	}
	mean /= float64(len(daily))

	var variance float64
	for _, r := range daily {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(daily)))

	rfDaily := dailyRate(riskFreeRate, 365)
	return finiteOrZero((mean - rfDaily) / stdDev * math.Sqrt(252))
}

// dailyRate converts a percentage return over days into a daily compounding
// percentage rate.
func dailyRate(pct, days float64) float64 {
	return (math.Pow(1+pct/100, 1/days) - 1) * 100
}

// Drawdown describes the deepest fall of realized equity below a prior peak.
type Drawdown struct {
	MaxPercent float64   `json:"maxPercent"`
	PeakDate   time.Time `json:"peakDate,omitempty"`
	TroughDate time.Time `json:"troughDate,omitempty"`
	Days       int       `json:"days"`
}

// MaxDrawdown walks cumulative realized P/L value in exit order. Drawdown is
// measured only once equity has a positive peak.
func MaxDrawdown(closed []models.LedgerTrade) Drawdown {
	var dd Drawdown
	var equity, peak float64
	var peakDate time.Time

	for _, t := range byExitDate(closed) {
		equity += t.PLValue
		if equity > peak {
			peak = equity
			peakDate = t.ExitTime()
			continue
		}
		if peak <= 0 {
			continue
		}
		if pct := (peak - equity) / peak * 100; pct > dd.MaxPercent {
			dd.MaxPercent = pct
			dd.PeakDate = peakDate
			dd.TroughDate = t.ExitTime()
		}
	}
	if dd.MaxPercent > 0 {
		dd.Days = int(dd.TroughDate.Sub(dd.PeakDate).Hours() / 24)
	}
	return dd
}

// Expectancy is the expected P/L percentage per trade:
// winRate * avgWin - (1 - winRate) * avgLoss.
func Expectancy(closed []models.LedgerTrade) float64 {
	if len(closed) == 0 {
		return 0
	}
	var wins, losses int
	var sumWin, sumLoss float64
	for _, t := range closed {
		if t.IsWin() {
			wins++
			sumWin += t.PLPercent
		} else {
			losses++
			sumLoss += math.Abs(t.PLPercent)
		}
	}
	var avgWin, avgLoss float64
	if wins > 0 {
		avgWin = sumWin / float64(wins)
	}
	if losses > 0 {
		avgLoss = sumLoss / float64(losses)
	}
	winRate := float64(wins) / float64(len(closed))
	return winRate*avgWin - (1-winRate)*avgLoss
}

// StreakKind classifies a run of consecutive trades.
type StreakKind string

const (
	StreakNone StreakKind = ""
	StreakWin  StreakKind = "win"
	StreakLoss StreakKind = "loss"
)

// Streaks summarizes consecutive wins and losses in exit order.
type Streaks struct {
	CurrentKind   StreakKind `json:"currentKind"`
	CurrentLength int        `json:"currentLength"`
	LongestWin    int        `json:"longestWin"`
	LongestLoss   int        `json:"longestLoss"`
	AvgWinStreak  float64    `json:"avgWinStreak"`
	AvgLossStreak float64    `json:"avgLossStreak"`
}

// ComputeStreaks makes one pass over trades sorted by exit date. A trade with
// positive P/L is a win; anything else is a loss.
func ComputeStreaks(closed []models.LedgerTrade) Streaks {
	var s Streaks
	var winRuns, lossRuns []int

	flush := func() {
		switch s.CurrentKind {
		case StreakWin:
			winRuns = append(winRuns, s.CurrentLength)
		case StreakLoss:
			lossRuns = append(lossRuns, s.CurrentLength)
		}
	}

	for _, t := range byExitDate(closed) {
		kind := StreakLoss
		if t.IsWin() {
			kind = StreakWin
		}
		if kind == s.CurrentKind {
			s.CurrentLength++
		} else {
			flush()
			s.CurrentKind = kind
			s.CurrentLength = 1
		}
		if kind == StreakWin && s.CurrentLength > s.LongestWin {
			s.LongestWin = s.CurrentLength
		}
		if kind == StreakLoss && s.CurrentLength > s.LongestLoss {
			s.LongestLoss = s.CurrentLength
		}
	}
	flush()

	s.AvgWinStreak = mean(winRuns)
	s.AvgLossStreak = mean(lossRuns)
	return s
}

func mean(xs []int) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum int
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}
