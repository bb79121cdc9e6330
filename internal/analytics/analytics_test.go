package analytics

import (
	"math"
	"testing"
	"time"

	"momentum-trader/internal/models"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// closedTrade builds a closed trade of 10 shares entered at 100.
func closedTrade(id string, exitDay int, plPercent float64, holdingDays int) models.LedgerTrade {
	entry := base.AddDate(0, 0, exitDay-holdingDays)
	exit := base.AddDate(0, 0, exitDay)
	exitPrice := 100 + plPercent
	return models.LedgerTrade{
		ID:               id,
		Status:           models.StatusClosed,
		Symbol:           "SYM" + id,
		CurrencyTag:      "USD",
		EntryDate:        entry,
		EntryPrice:       100,
		InvestmentAmount: 1000,
		Shares:           10,
		ExitDate:         &exit,
		ExitPrice:        exitPrice,
		ExitReason:       models.ExitTargetHit,
		PLPercent:        plPercent,
		PLValue:          10 * plPercent,
		HoldingDays:      holdingDays,
	}
}

func streakSample() []models.LedgerTrade {
	// Deliberately out of exit order.
	return []models.LedgerTrade{
		closedTrade("5", 50, 4, 5),
		closedTrade("1", 10, 3, 5),
		closedTrade("3", 30, -1, 12),
		closedTrade("2", 20, 2, 9),
		closedTrade("4", 40, -2, 30),
	}
}

func TestComputeStreaks_Example(t *testing.T) {
	s := ComputeStreaks(streakSample())
	if s.LongestWin != 2 || s.LongestLoss != 2 {
		t.Errorf("expected longest win/loss 2/2, got %d/%d", s.LongestWin, s.LongestLoss)
	}
	if s.CurrentKind != StreakWin || s.CurrentLength != 1 {
		t.Errorf("expected current streak win x1, got %s x%d", s.CurrentKind, s.CurrentLength)
	}
	if s.AvgWinStreak != 1.5 || s.AvgLossStreak != 2 {
		t.Errorf("expected average streaks 1.5/2, got %f/%f", s.AvgWinStreak, s.AvgLossStreak)
	}
}

func TestEmptyDefaults(t *testing.T) {
	if v := SharpeRatio(nil, DefaultRiskFreeRate); v != 0 {
		t.Errorf("SharpeRatio(empty) = %f", v)
	}
	if dd := MaxDrawdown(nil); dd.MaxPercent != 0 || dd.Days != 0 {
		t.Errorf("MaxDrawdown(empty) = %+v", dd)
	}
	if e := Expectancy(nil); e != 0 {
		t.Errorf("Expectancy(empty) = %f", e)
	}
	stats := ComputeStats(nil, nil)
	if stats.WinRate != 0 || stats.ProfitFactor != 0 || stats.OpenPLPercent != 0 {
		t.Errorf("ComputeStats(empty) = %+v", stats)
	}
	if s := ComputeStreaks(nil); s.CurrentKind != StreakNone || s.AvgWinStreak != 0 {
		t.Errorf("ComputeStreaks(empty) = %+v", s)
	}
	if curve := EquityCurve(nil, nil, base); len(curve) != 0 {
		t.Errorf("expected empty equity curve, got %d points", len(curve))
	}
	r := Build(nil, nil, DefaultRiskFreeRate, base)
	for _, v := range []float64{r.SharpeRatio, r.Expectancy, r.Drawdown.MaxPercent} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("non-finite default in empty report: %+v", r)
		}
	}
}

func TestComputeStats(t *testing.T) {
	active := []models.LedgerTrade{
		{Status: models.StatusActive, InvestmentAmount: 1000, Shares: 10, EntryPrice: 100, CurrentValue: 1100},
		{Status: models.StatusActive, InvestmentAmount: 500, Shares: 5, EntryPrice: 100, CurrentValue: 450},
	}
	s := ComputeStats(streakSample(), active)

	if s.TotalTrades != 7 || s.ClosedTrades != 5 || s.ActiveTrades != 2 {
		t.Errorf("unexpected counts %+v", s)
	}
	if s.WinRate != 60 {
		t.Errorf("expected win rate 60, got %f", s.WinRate)
	}
	if math.Abs(s.AvgPLPercent-1.2) > 1e-9 {
		t.Errorf("expected avg P/L 1.2, got %f", s.AvgPLPercent)
	}
	if math.Abs(float64(s.ProfitFactor)-3) > 1e-9 {
		t.Errorf("expected profit factor 3, got %f", s.ProfitFactor)
	}
	if s.TotalInvested != 1500 || s.OpenPLValue != 50 {
		t.Errorf("unexpected open position stats %+v", s)
	}
	if math.Abs(s.OpenPLPercent-50.0/1500*100) > 1e-9 {
		t.Errorf("unexpected open P/L percent %f", s.OpenPLPercent)
	}
	if s.BestTradePercent != 4 || s.WorstTradePercent != -2 {
		t.Errorf("unexpected best/worst %f/%f", s.BestTradePercent, s.WorstTradePercent)
	}

	onlyWins := ComputeStats([]models.LedgerTrade{closedTrade("w", 1, 5, 1)}, nil)
	if !onlyWins.ProfitFactor.IsUnbounded() {
		t.Errorf("expected unbounded profit factor, got %v", onlyWins.ProfitFactor)
	}
}

func TestSharpeRatio(t *testing.T) {
	trades := []models.LedgerTrade{
		closedTrade("a", 10, 10, 10),
		closedTrade("b", 20, -5, 5),
		closedTrade("c", 30, 4, 0), // floored to one day
	}

	rates := []float64{
		(math.Pow(1.10, 1.0/10) - 1) * 100,
		(math.Pow(0.95, 1.0/5) - 1) * 100,
		4,
	}
	mean := (rates[0] + rates[1] + rates[2]) / 3
	var variance float64
	for _, r := range rates {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / 3)
	rf := (math.Pow(1.02, 1.0/365) - 1) * 100
	want := (mean - rf) / std * math.Sqrt(252)

	if got := SharpeRatio(trades, 2); math.Abs(got-want) > 1e-9 {
		t.Errorf("SharpeRatio() = %f, want %f", got, want)
	}

	same := []models.LedgerTrade{closedTrade("a", 1, 3, 3), closedTrade("b", 2, 3, 3)}
	if got := SharpeRatio(same, 2); got != 0 {
		t.Errorf("zero variance must report 0, got %f", got)
	}
}

func TestMaxDrawdown(t *testing.T) {
	trades := []models.LedgerTrade{
		closedTrade("1", 10, 10, 5),  // equity 100, peak
		closedTrade("2", 15, -4, 5),  // 60
		closedTrade("3", 20, -3, 5),  // 30, trough: 70%
		closedTrade("4", 25, 20, 5),  // 230, new peak
		closedTrade("5", 30, -10, 5), // 130: 43%
	}
	dd := MaxDrawdown(trades)
	if math.Abs(dd.MaxPercent-70) > 1e-9 {
		t.Errorf("expected 70%% drawdown, got %f", dd.MaxPercent)
	}
	if !dd.PeakDate.Equal(base.AddDate(0, 0, 10)) || !dd.TroughDate.Equal(base.AddDate(0, 0, 20)) {
		t.Errorf("unexpected drawdown span %v -> %v", dd.PeakDate, dd.TroughDate)
	}
	if dd.Days != 10 {
		t.Errorf("expected 10 day drawdown, got %d", dd.Days)
	}

	// No positive peak yet: no drawdown is measured.
	losing := []models.LedgerTrade{closedTrade("1", 1, -5, 1), closedTrade("2", 2, -5, 1)}
	if dd := MaxDrawdown(losing); dd.MaxPercent != 0 {
		t.Errorf("expected no drawdown without a positive peak, got %f", dd.MaxPercent)
	}
}

func TestExpectancy(t *testing.T) {
	// Wins 4, 3, 2 (avg 3); losses 1, 2 (avg 1.5); win rate 0.6.
	want := 0.6*3 - 0.4*1.5
	if got := Expectancy(streakSample()); math.Abs(got-want) > 1e-9 {
		t.Errorf("Expectancy() = %f, want %f", got, want)
	}
}

func TestEquityAndDrawdownCurves(t *testing.T) {
	closed := []models.LedgerTrade{
		closedTrade("2", 20, -5, 5),
		closedTrade("1", 10, 10, 5),
	}
	active := []models.LedgerTrade{
		{Status: models.StatusActive, CurrentPLValue: 25, CurrentPLPercent: 2.5},
	}
	asOf := base.AddDate(0, 0, 30)

	curve := EquityCurve(closed, active, asOf)
	if len(curve) != 4 {
		t.Fatalf("expected seed + 2 trades + current, got %d points", len(curve))
	}
	if !curve[0].Date.Equal(base.AddDate(0, 0, 5)) || curve[0].EquityValue != 0 {
		t.Errorf("unexpected seed point %+v", curve[0])
	}
	if curve[1].EquityValue != 100 || curve[2].EquityValue != 50 {
		t.Errorf("unexpected realized equity %+v", curve)
	}
	if curve[2].EquityPercent != 5 {
		t.Errorf("expected cumulative percent 5, got %f", curve[2].EquityPercent)
	}
	last := curve[3]
	if !last.Current || last.EquityValue != 75 || !last.Date.Equal(asOf) {
		t.Errorf("unexpected current point %+v", last)
	}

	dd := DrawdownCurve(curve)
	want := []float64{0, 0, 50, 25}
	for i, p := range dd {
		if math.Abs(p.DrawdownPercent-want[i]) > 1e-9 {
			t.Errorf("drawdown[%d] = %f, want %f", i, p.DrawdownPercent, want[i])
		}
	}
}

func TestPLHistogram_Clamps(t *testing.T) {
	trades := []models.LedgerTrade{
		closedTrade("a", 1, -80, 1),
		closedTrade("b", 2, -50, 1),
		closedTrade("c", 3, 0, 1),
		closedTrade("d", 4, 4.99, 1),
		closedTrade("e", 5, 50, 1),
		closedTrade("f", 6, 300, 1),
	}
	bins := PLHistogram(trades)
	if len(bins) != 20 {
		t.Fatalf("expected 20 bins, got %d", len(bins))
	}
	if bins[0].Lower != -50 || bins[19].Upper != 50 {
		t.Errorf("unexpected bin range %v..%v", bins[0].Lower, bins[19].Upper)
	}
	if bins[0].Count != 2 || bins[10].Count != 2 || bins[19].Count != 2 {
		t.Errorf("unexpected counts first=%d zero=%d last=%d", bins[0].Count, bins[10].Count, bins[19].Count)
	}
}

func TestHoldingPeriods(t *testing.T) {
	buckets := HoldingPeriods(streakSample())
	// Holding days: 5, 5, 12, 9, 30.
	if buckets[0].Count != 2 || buckets[1].Count != 2 || buckets[2].Count != 1 {
		t.Fatalf("unexpected bucket counts %+v", buckets)
	}
	if buckets[0].AvgPLPercent != 3.5 || buckets[0].WinRate != 100 {
		t.Errorf("unexpected short bucket %+v", buckets[0])
	}
	if buckets[1].WinRate != 50 || buckets[2].AvgPLPercent != -2 {
		t.Errorf("unexpected medium/long buckets %+v", buckets[1:])
	}
}

func TestGroupings(t *testing.T) {
	trades := streakSample()
	trades[0].ExitReason = models.ExitStopLossHit
	trades[1].CurrencyTag = "INR"
	trades[2].CurrencyTag = ""

	monthly := Monthly(trades)
	if len(monthly) != 2 || monthly[0].Month != "2024-01" || monthly[0].Trades != 3 || monthly[1].Trades != 2 {
		t.Errorf("unexpected monthly grouping %+v", monthly)
	}

	reasons := ExitReasons(trades)
	if reasons[0].Key != string(models.ExitTargetHit) || reasons[0].Trades != 4 || reasons[0].Percent != 80 {
		t.Errorf("unexpected exit reasons %+v", reasons)
	}

	currencies := ByCurrency(trades)
	keys := []string{}
	for _, c := range currencies {
		keys = append(keys, c.Key)
	}
	if len(keys) != 3 || keys[0] != "INR" || keys[1] != UnknownCurrency || keys[2] != "USD" {
		t.Errorf("unexpected currency keys %v", keys)
	}

	if sizes := SizeVsReturn(trades); len(sizes) != 5 || sizes[0].InvestmentAmount != 1000 {
		t.Errorf("unexpected size points %+v", sizes)
	}
}

func TestCalendarHeatmap(t *testing.T) {
	trades := []models.LedgerTrade{
		closedTrade("a", 10, 4, 1),
		closedTrade("b", 10, -2, 1),
		closedTrade("c", 400, 9, 1), // next year
	}
	days := CalendarHeatmap(trades, 2024)
	if len(days) != 366 {
		t.Fatalf("expected 366 days in 2024, got %d", len(days))
	}
	if days[10].Trades != 2 || days[10].AvgPLPercent != 1 {
		t.Errorf("unexpected heatmap day %+v", days[10])
	}
	if days[11].Trades != 0 || days[11].AvgPLPercent != 0 {
		t.Errorf("expected zero placeholder, got %+v", days[11])
	}
	if len(CalendarHeatmap(nil, 2023)) != 365 {
		t.Error("expected 365 days in 2023")
	}
}

type fakeSource struct {
	version uint64
	closed  []models.LedgerTrade
}

func (f *fakeSource) Version() uint64              { return f.version }
func (f *fakeSource) Closed() []models.LedgerTrade { return f.closed }
func (f *fakeSource) Active() []models.LedgerTrade { return nil }

func TestCache_InvalidatesOnVersion(t *testing.T) {
	src := &fakeSource{version: 1, closed: streakSample()}
	cache := NewCache(src, DefaultRiskFreeRate)

	first := cache.Report()
	if cache.Report() != first || cache.Builds() != 1 {
		t.Error("report must be reused while the version is unchanged")
	}

	src.closed = src.closed[:1]
	src.version++
	second := cache.Report()
	if second == first || cache.Builds() != 2 {
		t.Error("report must be rebuilt after a version change")
	}
	if second.Stats.ClosedTrades != 1 || second.Version != 2 {
		t.Errorf("unexpected rebuilt report %+v", second.Stats)
	}
	if days := cache.Heatmap(2024); days[10].Trades != 0 || cache.Builds() != 2 {
		t.Error("heatmap should come from the cached snapshot")
	}
}
