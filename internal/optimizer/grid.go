package optimizer

import (
	"fmt"
	"math"

	apperrors "momentum-trader/internal/errors"
)

// Range is an inclusive numeric range walked in fixed steps.
type Range struct {
	Min  float64 `json:"min" mapstructure:"min"`
	Max  float64 `json:"max" mapstructure:"max"`
	Step float64 `json:"step" mapstructure:"step"`
}

// Fixed returns a single-value range.
func Fixed(v float64) Range {
	return Range{Min: v, Max: v, Step: 1}
}

// Values expands the range. A range with Min == Max yields one value
// regardless of Step.
func (r Range) Values(field string) ([]float64, error) {
	if !finite(r.Min) || !finite(r.Max) || !finite(r.Step) {
		return nil, apperrors.NewValidationError(field, r, "range bounds must be finite")
	}
	if r.Min > r.Max {
		return nil, apperrors.NewValidationError(field, r, "min must not exceed max")
	}
	if r.Min == r.Max {
		return []float64{r.Min}, nil
	}
	if r.Step <= 0 {
		return nil, apperrors.NewValidationError(field, r, "step must be positive")
	}

	n := math.Floor((r.Max-r.Min)/r.Step+1e-9) + 1
	if !finite(n) || n > DefaultMaxCombinations {
		return nil, apperrors.NewValidationError(field, r, fmt.Sprintf("range expands to more than %d values", DefaultMaxCombinations))
	}
	values := make([]float64, int(n))
	for k := range values {
		values[k] = round6(r.Min + float64(k)*r.Step)
	}
	return values, nil
}

// Ints expands the range into whole numbers, rejecting fractional bounds.
func (r Range) Ints(field string, min int) ([]int, error) {
	values, err := r.Values(field)
	if err != nil {
		return nil, err
	}
	ints := make([]int, len(values))
	for i, v := range values {
		if v != math.Trunc(v) {
			return nil, apperrors.NewValidationError(field, v, "must be a whole number")
		}
		if int(v) < min {
			return nil, apperrors.NewValidationError(field, v, fmt.Sprintf("must be at least %d", min))
		}
		ints[i] = int(v)
	}
	return ints, nil
}

// Ranges holds the search space of one optimization run.
type Ranges struct {
	R                 Range `json:"r" mapstructure:"r"`
	S                 Range `json:"s" mapstructure:"s"`
	U                 Range `json:"u" mapstructure:"u"`
	EntryThreshold    Range `json:"entryThreshold" mapstructure:"entry_threshold"`
	TakeProfitPercent Range `json:"takeProfitPercent" mapstructure:"take_profit_percent"`
	StopLossPercent   Range `json:"stopLossPercent" mapstructure:"stop_loss_percent"`
	MaxHoldingDays    Range `json:"maxHoldingDays" mapstructure:"max_holding_days"`
}

// DefaultRanges returns a modest grid around the default strategy.
func DefaultRanges() Ranges {
	return Ranges{
		R:                 Range{Min: 8, Max: 14, Step: 2},
		S:                 Range{Min: 3, Max: 5, Step: 1},
		U:                 Range{Min: 3, Max: 5, Step: 1},
		EntryThreshold:    Range{Min: -60, Max: -30, Step: 10},
		TakeProfitPercent: Range{Min: 4, Max: 12, Step: 2},
		StopLossPercent:   Range{Min: 3, Max: 7, Step: 2},
		MaxHoldingDays:    Range{Min: 10, Max: 40, Step: 10},
	}
}

// grid is the expanded search space.
type grid struct {
	r, s, u        []int
	thresholds     []float64
	takeProfits    []float64
	stopLosses     []float64
	maxHoldingDays []int
}

func (g *grid) oscillatorCount() int {
	return product(len(g.r), len(g.s), len(g.u))
}

func (g *grid) strategyCount() int {
	return product(len(g.thresholds), len(g.takeProfits), len(g.stopLosses), len(g.maxHoldingDays))
}

// Size returns the total number of combinations, saturating at math.MaxInt.
func (g *grid) Size() int {
	return product(g.oscillatorCount(), g.strategyCount())
}

// product multiplies non-negative counts, saturating at math.MaxInt.
func product(counts ...int) int {
	total := 1
	for _, c := range counts {
		if c != 0 && total > math.MaxInt/c {
			return math.MaxInt
		}
		total *= c
	}
	return total
}

func expand(rg Ranges) (*grid, error) {
	g := &grid{}
	var err error
	if g.r, err = rg.R.Ints("r", 1); err != nil {
		return nil, err
	}
	if g.s, err = rg.S.Ints("s", 1); err != nil {
		return nil, err
	}
	if g.u, err = rg.U.Ints("u", 1); err != nil {
		return nil, err
	}
	if g.thresholds, err = rg.EntryThreshold.Values("entryThreshold"); err != nil {
		return nil, err
	}
	if g.takeProfits, err = rg.TakeProfitPercent.Values("takeProfitPercent"); err != nil {
		return nil, err
	}
	if g.stopLosses, err = rg.StopLossPercent.Values("stopLossPercent"); err != nil {
		return nil, err
	}
	if g.maxHoldingDays, err = rg.MaxHoldingDays.Ints("maxHoldingDays", 1); err != nil {
		return nil, err
	}
	return g, nil
}

// Size returns the number of combinations the ranges expand to.
func (rg Ranges) Size() (int, error) {
	g, err := expand(rg)
	if err != nil {
		return 0, err
	}
	return g.Size(), nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func round6(f float64) float64 {
	return math.Round(f*1e6) / 1e6
}
