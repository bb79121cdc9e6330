// Package trading provides the signal-driven backtest engine and the exit
// evaluation shared with the live trade ledger.
package trading

import (
	"time"

	"momentum-trader/internal/models"
)

// DefaultWarmupMonths is the number of months at the start of a series during
// which no entry is permitted.
const DefaultWarmupMonths = 6

// BacktestParams holds the strategy parameters for one replay.
type BacktestParams struct {
	EntryThreshold    float64 `json:"entryThreshold"`
	TakeProfitPercent float64 `json:"takeProfitPercent"`
	StopLossPercent   float64 `json:"stopLossPercent"`
	MaxHoldingDays    int     `json:"maxHoldingDays"`
	UseWeeklyFilter   bool    `json:"useWeeklyFilter"`
	// WarmupMonths defaults to DefaultWarmupMonths when zero.
	WarmupMonths int `json:"warmupMonths,omitempty"`
}

// DefaultBacktestParams returns the default strategy parameters.
func DefaultBacktestParams() BacktestParams {
	return BacktestParams{
		EntryThreshold:    -40,
		TakeProfitPercent: 8,
		StopLossPercent:   5,
		MaxHoldingDays:    30,
		UseWeeklyFilter:   true,
		WarmupMonths:      DefaultWarmupMonths,
	}
}

// BacktestResult is the outcome of one replay.
type BacktestResult struct {
	CompletedTrades []models.SimulatedTrade `json:"completedTrades"`
	ActiveTrade     *models.SimulatedTrade  `json:"activeTrade,omitempty"`
	// WarmupEnd is the first date on which an entry was allowed.
	WarmupEnd time.Time `json:"warmupEnd"`
}

// BacktestSummary aggregates the completed trades of a replay.
type BacktestSummary struct {
	TotalTrades    int          `json:"totalTrades"`
	WinningTrades  int          `json:"winningTrades"`
	LosingTrades   int          `json:"losingTrades"`
	WinRate        float64      `json:"winRate"`
	TotalReturn    float64      `json:"totalReturn"`
	AvgReturn      float64      `json:"avgReturn"`
	AvgWin         float64      `json:"avgWin"`
	AvgLoss        float64      `json:"avgLoss"`
	ProfitFactor   models.Ratio `json:"profitFactor"`
	MaxHoldingDays int          `json:"maxHoldingDays"`
	HasOpenTrade   bool         `json:"hasOpenTrade"`
	WarmupEnd      time.Time    `json:"warmupEnd"`
}

// Validate reports whether the parameters can drive a replay.
func (p BacktestParams) Validate() error {
	return validateParams(p)
}
