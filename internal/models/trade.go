package models

import "time"

// ExitReason describes why a position was closed.
type ExitReason string

// Backtest exit reasons.
const (
	ExitTakeProfit ExitReason = "Take Profit"
	ExitStopLoss   ExitReason = "Stop Loss"
	ExitTimeExit   ExitReason = "Time Exit"
)

// Live ledger exit reasons.
const (
	ExitStopLossHit   ExitReason = "Stop Loss Hit"
	ExitTargetHit     ExitReason = "Target Hit"
	ExitSquareOffDate ExitReason = "Square-Off Date"
	ExitManual        ExitReason = "Manual Close"
)

// SimulatedTrade is a hypothetical position produced by replaying history.
// A trade with an empty ExitReason is the open trade left at the end of a replay.
type SimulatedTrade struct {
	EntryIndex            int        `json:"entryIndex"`
	EntryDate             time.Time  `json:"entryDate"`
	EntryPrice            float64    `json:"entryPrice"`
	EntryOscillator       float64    `json:"entryOscillator"`
	EntryWeeklyOscillator float64    `json:"entryWeeklyOscillator"`
	ExitIndex             int        `json:"exitIndex,omitempty"`
	ExitDate              *time.Time `json:"exitDate,omitempty"`
	ExitPrice             float64    `json:"exitPrice,omitempty"`
	ExitReason            ExitReason `json:"exitReason,omitempty"`
	PLPercent             float64    `json:"plPercent"`
	CurrentPrice          float64    `json:"currentPrice"`
	CurrentPLPercent      float64    `json:"currentPlPercent"`
	// HoldingDays counts trading-day steps since entry.
	HoldingDays int `json:"holdingDays"`
}

// IsOpen reports whether the simulated trade was never exited.
func (t SimulatedTrade) IsOpen() bool {
	return t.ExitReason == ""
}

// TradeStatus is the lifecycle state of a ledger trade.
type TradeStatus string

const (
	StatusActive TradeStatus = "active"
	StatusClosed TradeStatus = "closed"
)

// LedgerTrade is a real, persisted position tracked by the trade ledger.
// Shares is fixed at creation. CurrentValue, CurrentPL*, PL* and HoldingDays are
// derived fields and are recomputed by the ledger, never set independently.
type LedgerTrade struct {
	ID                    string      `json:"id"`
	Status                TradeStatus `json:"status"`
	Symbol                string      `json:"symbol"`
	StockName             string      `json:"stockName"`
	CurrencyTag           string      `json:"currency"`
	EntryDate             time.Time   `json:"entryDate"`
	EntryPrice            float64     `json:"entryPrice"`
	EntryOscillator       float64     `json:"entryOscillator,omitempty"`
	EntryWeeklyOscillator float64     `json:"entryWeeklyOscillator,omitempty"`
	InvestmentAmount      float64     `json:"investmentAmount"`
	Shares                float64     `json:"shares"`
	StopLossPrice         float64     `json:"stopLossPrice,omitempty"`
	TargetPrice           float64     `json:"targetPrice,omitempty"`
	StopLossPercent       float64     `json:"stopLossPercent,omitempty"`
	TakeProfitPercent     float64     `json:"takeProfitPercent,omitempty"`
	SquareOffDate         *time.Time  `json:"squareOffDate,omitempty"`
	Notes                 string      `json:"notes,omitempty"`

	CurrentPrice     float64 `json:"currentPrice"`
	CurrentValue     float64 `json:"currentValue"`
	CurrentPLPercent float64 `json:"currentPLPercent,omitempty"`
	CurrentPLValue   float64 `json:"currentPLValue,omitempty"`
	// HoldingDays counts whole calendar days since entry (to now, or to exit once closed).
	HoldingDays int `json:"holdingDays"`

	ExitDate   *time.Time `json:"exitDate,omitempty"`
	ExitPrice  float64    `json:"exitPrice,omitempty"`
	ExitReason ExitReason `json:"exitReason,omitempty"`
	PLPercent  float64    `json:"plPercent,omitempty"`
	PLValue    float64    `json:"plValue,omitempty"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// IsActive reports whether the trade is still open.
func (t LedgerTrade) IsActive() bool {
	return t.Status == StatusActive
}

// IsWin reports whether a closed trade made money.
func (t LedgerTrade) IsWin() bool {
	return t.PLPercent > 0
}

// ExitTime returns the exit date, or the zero time for active trades.
func (t LedgerTrade) ExitTime() time.Time {
	if t.ExitDate == nil {
		return time.Time{}
	}
	return *t.ExitDate
}
