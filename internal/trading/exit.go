package trading

import "momentum-trader/internal/models"

// ExitCondition identifies one of the three exit tests shared by the backtest
// engine and the live ledger.
type ExitCondition int

const (
	ConditionProfit ExitCondition = iota
	ConditionStop
	ConditionTime
)

func (c ExitCondition) String() string {
	switch c {
	case ConditionProfit:
		return "profit"
	case ConditionStop:
		return "stop"
	case ConditionTime:
		return "time"
	default:
		return "unknown"
	}
}

// ExitChecks holds the outcome of each exit test for one position at one instant.
type ExitChecks struct {
	Profit bool
	Stop   bool
	Time   bool
}

func (c ExitChecks) satisfied(cond ExitCondition) bool {
	switch cond {
	case ConditionProfit:
		return c.Profit
	case ConditionStop:
		return c.Stop
	case ConditionTime:
		return c.Time
	}
	return false
}

// ExitRules is a condition set with a declared priority order and the reason
// reported for each condition.
type ExitRules struct {
	Priority []ExitCondition
	Reasons  map[ExitCondition]models.ExitReason
}

// BacktestExitRules evaluates take-profit, then stop-loss, then time exit.
var BacktestExitRules = ExitRules{
	Priority: []ExitCondition{ConditionProfit, ConditionStop, ConditionTime},
	Reasons: map[ExitCondition]models.ExitReason{
		ConditionProfit: models.ExitTakeProfit,
		ConditionStop:   models.ExitStopLoss,
		ConditionTime:   models.ExitTimeExit,
	},
}

// LiveExitRules evaluates stop-loss, then target, then square-off date.
// The order differs from BacktestExitRules on purpose; both are kept until the
// intended behaviour is confirmed.
var LiveExitRules = ExitRules{
	Priority: []ExitCondition{ConditionStop, ConditionProfit, ConditionTime},
	Reasons: map[ExitCondition]models.ExitReason{
		ConditionStop:   models.ExitStopLossHit,
		ConditionProfit: models.ExitTargetHit,
		ConditionTime:   models.ExitSquareOffDate,
	},
}

// EvaluateExit returns the reason of the first satisfied condition in priority
// order. Only one condition ever fires.
func EvaluateExit(checks ExitChecks, rules ExitRules) (models.ExitReason, bool) {
	for _, cond := range rules.Priority {
		if checks.satisfied(cond) {
			return rules.Reasons[cond], true
		}
	}
	return "", false
}

// BacktestChecks builds the exit tests for a simulated position from its
// percentage thresholds and trading-day holding count.
func BacktestChecks(plPercent float64, holdingDays int, params BacktestParams) ExitChecks {
	return ExitChecks{
		Profit: plPercent >= params.TakeProfitPercent,
		Stop:   plPercent <= -params.StopLossPercent,
		Time:   holdingDays >= params.MaxHoldingDays,
	}
}
