package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/logging"
	"momentum-trader/internal/models"
	"momentum-trader/internal/stream"
	"momentum-trader/internal/trading"
)

// CreateInput holds the user-supplied fields of a new trade. Stop and target
// may be given as absolute prices or as percentages of the entry price; an
// absolute price wins when both are set.
type CreateInput struct {
	Symbol                string     `json:"symbol"`
	StockName             string     `json:"stockName"`
	CurrencyTag           string     `json:"currency"`
	EntryDate             time.Time  `json:"entryDate"`
	EntryPrice            float64    `json:"entryPrice"`
	InvestmentAmount      float64    `json:"investmentAmount"`
	EntryOscillator       float64    `json:"entryOscillator"`
	EntryWeeklyOscillator float64    `json:"entryWeeklyOscillator"`
	StopLossPrice         float64    `json:"stopLossPrice"`
	TargetPrice           float64    `json:"targetPrice"`
	StopLossPercent       float64    `json:"stopLossPercent"`
	TakeProfitPercent     float64    `json:"takeProfitPercent"`
	SquareOffDate         *time.Time `json:"squareOffDate,omitempty"`
	Notes                 string     `json:"notes"`
}

// Validate validates the create input.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Symbol) == "" {
		return apperrors.NewValidationError("symbol", in.Symbol, "symbol is required")
	}
	if !positive(in.EntryPrice) {
		return apperrors.NewValidationError("entryPrice", in.EntryPrice, "must be greater than zero")
	}
	if !positive(in.InvestmentAmount) {
		return apperrors.NewValidationError("investmentAmount", in.InvestmentAmount, "must be greater than zero")
	}
	if in.StopLossPrice < 0 || in.TargetPrice < 0 || in.StopLossPercent < 0 || in.TakeProfitPercent < 0 {
		return apperrors.NewValidationError("stop/target", nil, "must not be negative")
	}
	return nil
}

// InputFromSignal builds the create input for accepting an open simulated
// trade as a real position. Stop and target come from the strategy
// percentages and the square-off date lies maxHoldingDays calendar days after
// entry.
func InputFromSignal(symbol string, signal models.SimulatedTrade, params trading.BacktestParams, investment float64) CreateInput {
	in := CreateInput{
		Symbol:                symbol,
		EntryDate:             signal.EntryDate,
		EntryPrice:            signal.EntryPrice,
		InvestmentAmount:      investment,
		EntryOscillator:       signal.EntryOscillator,
		EntryWeeklyOscillator: signal.EntryWeeklyOscillator,
		StopLossPercent:       params.StopLossPercent,
		TakeProfitPercent:     params.TakeProfitPercent,
	}
	if params.MaxHoldingDays > 0 {
		squareOff := dateOnly(signal.EntryDate).AddDate(0, 0, params.MaxHoldingDays)
		in.SquareOffDate = &squareOff
	}
	return in
}

// Create validates and appends a new active trade, persists the ledger and
// returns the new trade id. When the save fails the trade is not kept and the
// returned id is empty.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	trade := models.LedgerTrade{
		ID:                    l.newID(),
		Status:                models.StatusActive,
		Symbol:                strings.ToUpper(strings.TrimSpace(in.Symbol)),
		StockName:             in.StockName,
		CurrencyTag:           in.CurrencyTag,
		EntryDate:             in.EntryDate,
		EntryPrice:            in.EntryPrice,
		EntryOscillator:       in.EntryOscillator,
		EntryWeeklyOscillator: in.EntryWeeklyOscillator,
		InvestmentAmount:      in.InvestmentAmount,
		Shares:                sharesFor(in.InvestmentAmount, in.EntryPrice),
		SquareOffDate:         in.SquareOffDate,
		Notes:                 in.Notes,
		CurrentPrice:          in.EntryPrice,
		LastUpdated:           now,
	}
	if trade.EntryDate.IsZero() {
		trade.EntryDate = now
	}
	if trade.StockName == "" {
		trade.StockName = trade.Symbol
	}

	var stopMove float64
	trade.StopLossPrice, stopMove = resolveLevel(in.EntryPrice, in.StopLossPrice, -in.StopLossPercent)
	if stopMove != 0 {
		trade.StopLossPercent = -stopMove
	}
	trade.TargetPrice, trade.TakeProfitPercent = resolveLevel(in.EntryPrice, in.TargetPrice, in.TakeProfitPercent)
	recompute(&trade, now)

	prev := cloneTrades(l.trades)
	l.trades = append(l.trades, trade)
	if err := l.commit(ctx, prev, "create"); err != nil {
		return "", err
	}

	logging.LogTradeEvent(l.logger, "created", trade.ID, trade.Symbol, trade.EntryPrice)
	l.publish(stream.LedgerEvent{Type: stream.EventTradeCreated, TradeID: trade.ID, Symbol: trade.Symbol})
	return trade.ID, nil
}

// resolveLevel returns an absolute price and its signed percentage distance from
// entry. An absolute price takes precedence; zero means "not set".
func resolveLevel(entry, price, pct float64) (float64, float64) {
	switch {
	case price > 0:
		return price, plPercent(entry, price)
	case pct != 0:
		return priceAtPercent(entry, pct), pct
	default:
		return 0, 0
	}
}

// Patch lists the editable fields of a trade. Nil fields are left unchanged.
type Patch struct {
	EntryPrice         *float64   `json:"entryPrice,omitempty"`
	StopLossPrice      *float64   `json:"stopLossPrice,omitempty"`
	TargetPrice        *float64   `json:"targetPrice,omitempty"`
	SquareOffDate      *time.Time `json:"squareOffDate,omitempty"`
	ClearSquareOffDate bool       `json:"clearSquareOffDate,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
}

func (p Patch) onlyNotes() bool {
	return p.EntryPrice == nil && p.StopLossPrice == nil && p.TargetPrice == nil &&
		p.SquareOffDate == nil && !p.ClearSquareOffDate
}

func (p Patch) validate() error {
	if p.EntryPrice != nil && !positive(*p.EntryPrice) {
		return apperrors.NewValidationError("entryPrice", *p.EntryPrice, "must be greater than zero")
	}
	if p.StopLossPrice != nil && (*p.StopLossPrice < 0 || math.IsNaN(*p.StopLossPrice)) {
		return apperrors.NewValidationError("stopLossPrice", *p.StopLossPrice, "must not be negative")
	}
	if p.TargetPrice != nil && (*p.TargetPrice < 0 || math.IsNaN(*p.TargetPrice)) {
		return apperrors.NewValidationError("targetPrice", *p.TargetPrice, "must not be negative")
	}
	return nil
}

// Edit applies a patch to a trade. Changing the entry price keeps the absolute
// stop and target prices and recomputes their percentages; shares never
// change. The exit rules are re-evaluated afterwards, so an edit may close
// the trade. Closed trades accept notes only.
func (l *Ledger) Edit(ctx context.Context, id string, patch Patch) (models.LedgerTrade, error) {
	if err := patch.validate(); err != nil {
		return models.LedgerTrade{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return models.LedgerTrade{}, apperrors.NewTradeError(id, "edit", apperrors.ErrTradeNotFound)
	}
	if !l.trades[i].IsActive() && !patch.onlyNotes() {
		return models.LedgerTrade{}, apperrors.NewTradeError(id, "edit", apperrors.ErrTradeClosed)
	}

	prev := cloneTrades(l.trades)
	now := l.now()
	trade := &l.trades[i]

	if patch.EntryPrice != nil {
		trade.EntryPrice = *patch.EntryPrice
	}
	if patch.StopLossPrice != nil {
		trade.StopLossPrice = *patch.StopLossPrice
	}
	if patch.TargetPrice != nil {
		trade.TargetPrice = *patch.TargetPrice
	}
	if patch.SquareOffDate != nil {
		d := *patch.SquareOffDate
		trade.SquareOffDate = &d
	}
	if patch.ClearSquareOffDate {
		trade.SquareOffDate = nil
	}
	if patch.Notes != nil {
		trade.Notes = *patch.Notes
	}

	if trade.IsActive() {
		trade.StopLossPercent = 0
		if trade.StopLossPrice > 0 {
			trade.StopLossPercent = -plPercent(trade.EntryPrice, trade.StopLossPrice)
		}
		trade.TakeProfitPercent = 0
		if trade.TargetPrice > 0 {
			trade.TakeProfitPercent = plPercent(trade.EntryPrice, trade.TargetPrice)
		}
	}
	trade.LastUpdated = now
	recompute(trade, now)
	reason, closed := evaluateLive(trade, now)
	updated := cloneTrade(*trade)

	if err := l.commit(ctx, prev, "edit"); err != nil {
		return models.LedgerTrade{}, err
	}

	logging.LogTradeEvent(l.logger, "edited", id, updated.Symbol, updated.CurrentPrice)
	l.publish(stream.LedgerEvent{Type: stream.EventTradeUpdated, TradeID: id, Symbol: updated.Symbol})
	if closed {
		l.publish(stream.LedgerEvent{Type: stream.EventTradeClosed, TradeID: id, Symbol: updated.Symbol, Reason: string(reason)})
	}
	return updated, nil
}

// Close manually closes an active trade at exitPrice. An empty reason records
// a manual close; non-empty notes replace the trade's notes.
func (l *Ledger) Close(ctx context.Context, id string, exitPrice float64, reason models.ExitReason, notes string) (models.LedgerTrade, error) {
	if !positive(exitPrice) {
		return models.LedgerTrade{}, apperrors.NewValidationError("exitPrice", exitPrice, "must be greater than zero")
	}
	if reason == "" {
		reason = models.ExitManual
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return models.LedgerTrade{}, apperrors.NewTradeError(id, "close", apperrors.ErrTradeNotFound)
	}
	if !l.trades[i].IsActive() {
		return models.LedgerTrade{}, apperrors.NewTradeError(id, "close", apperrors.ErrTradeClosed)
	}

	prev := cloneTrades(l.trades)
	trade := &l.trades[i]
	if notes != "" {
		trade.Notes = notes
	}
	closeTrade(trade, exitPrice, reason, l.now())
	closed := cloneTrade(*trade)

	if err := l.commit(ctx, prev, "close"); err != nil {
		return models.LedgerTrade{}, err
	}

	logging.LogTradeEvent(l.logger, "closed", id, closed.Symbol, exitPrice)
	l.publish(stream.LedgerEvent{Type: stream.EventTradeClosed, TradeID: id, Symbol: closed.Symbol, Reason: string(reason)})
	return closed, nil
}

// Delete removes a trade of any status.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.indexOf(id)
	if i < 0 {
		return apperrors.NewTradeError(id, "delete", apperrors.ErrTradeNotFound)
	}

	prev := cloneTrades(l.trades)
	symbol := l.trades[i].Symbol
	l.trades = append(l.trades[:i:i], l.trades[i+1:]...)
	if err := l.commit(ctx, prev, "delete"); err != nil {
		return err
	}

	logging.LogTradeEvent(l.logger, "deleted", id, symbol, 0)
	l.publish(stream.LedgerEvent{Type: stream.EventTradeDeleted, TradeID: id, Symbol: symbol})
	return nil
}

// ClearHistory removes every closed trade and returns how many were dropped.
func (l *Ledger) ClearHistory(ctx context.Context) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := cloneTrades(l.trades)
	kept := make([]models.LedgerTrade, 0, len(l.trades))
	for _, t := range l.trades {
		if t.IsActive() {
			kept = append(kept, t)
		}
	}
	removed := len(l.trades) - len(kept)
	if removed == 0 {
		return 0, nil
	}

	l.trades = kept
	if err := l.commit(ctx, prev, "clear-history"); err != nil {
		return 0, err
	}

	l.logger.Info().Int("removed", removed).Msg("Trade history cleared")
	l.publish(stream.LedgerEvent{Type: stream.EventHistoryCleared, Count: removed})
	return removed, nil
}

// recompute refreshes the derived fields of a trade from its prices.
func recompute(t *models.LedgerTrade, now time.Time) {
	if t.IsActive() {
		t.CurrentValue = valueAt(t.Shares, t.CurrentPrice)
		t.CurrentPLValue = plValue(t.Shares, t.EntryPrice, t.CurrentPrice)
		t.CurrentPLPercent = plPercent(t.EntryPrice, t.CurrentPrice)
		t.HoldingDays = calendarDays(t.EntryDate, now)
		return
	}
	t.CurrentPrice = t.ExitPrice
	t.CurrentValue = valueAt(t.Shares, t.ExitPrice)
	t.CurrentPLValue = 0
	t.CurrentPLPercent = 0
	t.PLValue = plValue(t.Shares, t.EntryPrice, t.ExitPrice)
	t.PLPercent = plPercent(t.EntryPrice, t.ExitPrice)
	t.HoldingDays = calendarDays(t.EntryDate, t.ExitTime())
}

// closeTrade moves an active trade to closed at exitPrice.
func closeTrade(t *models.LedgerTrade, exitPrice float64, reason models.ExitReason, now time.Time) {
	exitDate := now
	t.Status = models.StatusClosed
	t.ExitDate = &exitDate
	t.ExitPrice = exitPrice
	t.ExitReason = reason
	t.LastUpdated = now
	recompute(t, now)
}

// LiveChecks builds the exit tests for an active trade from its absolute stop
// and target prices and its square-off date.
func LiveChecks(t models.LedgerTrade, now time.Time) trading.ExitChecks {
	return trading.ExitChecks{
		Stop:   t.StopLossPrice > 0 && t.CurrentPrice <= t.StopLossPrice,
		Profit: t.TargetPrice > 0 && t.CurrentPrice >= t.TargetPrice,
		Time:   t.SquareOffDate != nil && !dateOnly(now).Before(dateOnly(*t.SquareOffDate)),
	}
}

// evaluateLive closes the trade at its current price if an exit rule fires.
func evaluateLive(t *models.LedgerTrade, now time.Time) (models.ExitReason, bool) {
	if !t.IsActive() {
		return "", false
	}
	reason, ok := trading.EvaluateExit(LiveChecks(*t, now), trading.LiveExitRules)
	if !ok {
		return "", false
	}
	closeTrade(t, t.CurrentPrice, reason, now)
	return reason, true
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1)
}
