// Package analytics derives performance metrics and chart-ready aggregates
// from ledger trades. Every function is a pure read over the trades passed in.
package analytics

import (
	"math"
	"sort"

	"momentum-trader/internal/models"
	"momentum-trader/internal/trading"
)

// DefaultRiskFreeRate is the annual risk-free rate, in percent, used by the
// Sharpe ratio.
const DefaultRiskFreeRate = 2.0

// Stats holds the core ledger statistics.
type Stats struct {
	TotalTrades   int `json:"totalTrades"`
	ActiveTrades  int `json:"activeTrades"`
	ClosedTrades  int `json:"closedTrades"`
	WinningTrades int `json:"winningTrades"`
	LosingTrades  int `json:"losingTrades"`

	// Closed trades.
	WinRate           float64      `json:"winRate"`
	AvgPLPercent      float64      `json:"avgPLPercent"`
	AvgWinPercent     float64      `json:"avgWinPercent"`
	AvgLossPercent    float64      `json:"avgLossPercent"`
	BestTradePercent  float64      `json:"bestTradePercent"`
	WorstTradePercent float64      `json:"worstTradePercent"`
	RealizedPLValue   float64      `json:"realizedPLValue"`
	ProfitFactor      models.Ratio `json:"profitFactor"`

	// Active trades.
	TotalInvested float64 `json:"totalInvested"`
	OpenPLValue   float64 `json:"openPLValue"`
	OpenPLPercent float64 `json:"openPLPercent"`
}

// ComputeStats calculates the core statistics over closed and active trades.
func ComputeStats(closed, active []models.LedgerTrade) Stats {
	s := Stats{
		ActiveTrades: len(active),
		ClosedTrades: len(closed),
		TotalTrades:  len(active) + len(closed),
	}

	var entryValue, currentValue float64
	for _, t := range active {
		s.TotalInvested += t.InvestmentAmount
		entryValue += t.Shares * t.EntryPrice
		currentValue += t.CurrentValue
	}
	s.OpenPLValue = currentValue - entryValue
	if entryValue > 0 {
		s.OpenPLPercent = s.OpenPLValue / entryValue * 100
	}

	if len(closed) == 0 {
		return s
	}

	var sumPL, sumWin, sumLoss, grossProfit, grossLoss float64
	s.BestTradePercent = math.Inf(-1)
	s.WorstTradePercent = math.Inf(1)
	for _, t := range closed {
		sumPL += t.PLPercent
		s.RealizedPLValue += t.PLValue
		if t.IsWin() {
			s.WinningTrades++
			sumWin += t.PLPercent
		} else {
			s.LosingTrades++
			sumLoss += math.Abs(t.PLPercent)
		}
		if t.PLValue > 0 {
			grossProfit += t.PLValue
		} else {
			grossLoss += math.Abs(t.PLValue)
		}
		s.BestTradePercent = math.Max(s.BestTradePercent, t.PLPercent)
		s.WorstTradePercent = math.Min(s.WorstTradePercent, t.PLPercent)
	}

	n := float64(len(closed))
	s.WinRate = float64(s.WinningTrades) / n * 100
	s.AvgPLPercent = sumPL / n
	if s.WinningTrades > 0 {
		s.AvgWinPercent = sumWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLossPercent = sumLoss / float64(s.LosingTrades)
	}
	s.ProfitFactor = trading.ProfitFactor(grossProfit, grossLoss)
	return s
}

// byExitDate returns a copy of trades sorted by exit date, oldest first.
func byExitDate(trades []models.LedgerTrade) []models.LedgerTrade {
	sorted := make([]models.LedgerTrade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime().Before(sorted[j].ExitTime())
	})
	return sorted
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
