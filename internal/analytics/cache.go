package analytics

import (
	"sync"
	"time"

	"momentum-trader/internal/models"
)

// Source is a versioned trade collection. Version must change whenever the
// trades change.
type Source interface {
	Version() uint64
	Closed() []models.LedgerTrade
	Active() []models.LedgerTrade
}

// Report bundles every derived metric for one ledger version.
type Report struct {
	Version       uint64               `json:"version"`
	GeneratedAt   time.Time            `json:"generatedAt"`
	Stats         Stats                `json:"stats"`
	SharpeRatio   float64              `json:"sharpeRatio"`
	Drawdown      Drawdown             `json:"drawdown"`
	Expectancy    float64              `json:"expectancy"`
	Streaks       Streaks              `json:"streaks"`
	Holding       []HoldingBucket      `json:"holding"`
	Equity        []EquityPoint        `json:"equity"`
	DrawdownCurve []DrawdownPoint      `json:"drawdownCurve"`
	Histogram     []HistogramBin       `json:"histogram"`
	Monthly       []MonthlyPerformance `json:"monthly"`
	ExitReasons   []Breakdown          `json:"exitReasons"`
	Currencies    []Breakdown          `json:"currencies"`
	Sizes         []SizePoint          `json:"sizes"`
}

// Build computes a full report.
func Build(closed, active []models.LedgerTrade, riskFreeRate float64, asOf time.Time) *Report {
	equity := EquityCurve(closed, active, asOf)
	return &Report{
		GeneratedAt:   asOf,
		Stats:         ComputeStats(closed, active),
		SharpeRatio:   SharpeRatio(closed, riskFreeRate),
		Drawdown:      MaxDrawdown(closed),
		Expectancy:    Expectancy(closed),
		Streaks:       ComputeStreaks(closed),
		Holding:       HoldingPeriods(closed),
		Equity:        equity,
		DrawdownCurve: DrawdownCurve(equity),
		Histogram:     PLHistogram(closed),
		Monthly:       Monthly(closed),
		ExitReasons:   ExitReasons(closed),
		Currencies:    ByCurrency(closed),
		Sizes:         SizeVsReturn(closed),
	}
}

// Cache memoizes the report of a Source until its version changes.
type Cache struct {
	mu           sync.Mutex
	source       Source
	riskFreeRate float64
	now          func() time.Time

	report *Report
	closed []models.LedgerTrade
	builds int
}

// NewCache creates a cache over source.
func NewCache(source Source, riskFreeRate float64) *Cache {
	return &Cache{source: source, riskFreeRate: riskFreeRate, now: time.Now}
}

// Report returns the report for the source's current version, rebuilding it
// only when the version has moved.
func (c *Cache) Report() *Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return c.report
}

// Heatmap returns the calendar heatmap for year from the cached closed trades.
func (c *Cache) Heatmap(year int) []HeatmapDay {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refresh()
	return CalendarHeatmap(c.closed, year)
}

// Builds returns how many times the report has been rebuilt.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

func (c *Cache) refresh() {
	version := c.source.Version()
	if c.report != nil && c.report.Version == version {
		return
	}
	c.closed = c.source.Closed()
	c.report = Build(c.closed, c.source.Active(), c.riskFreeRate, c.now())
	c.report.Version = version
	c.builds++
}
