package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// sharesFor returns investment / entryPrice.
func sharesFor(investment, entryPrice float64) float64 {
	return decimal.NewFromFloat(investment).
		Div(decimal.NewFromFloat(entryPrice)).
		InexactFloat64()
}

// valueAt returns shares * price.
func valueAt(shares, price float64) float64 {
	return decimal.NewFromFloat(shares).
		Mul(decimal.NewFromFloat(price)).
		InexactFloat64()
}

// plValue returns shares * (price - entryPrice).
func plValue(shares, entryPrice, price float64) float64 {
	diff := decimal.NewFromFloat(price).Sub(decimal.NewFromFloat(entryPrice))
	return decimal.NewFromFloat(shares).Mul(diff).InexactFloat64()
}

// plPercent returns the percentage move from entryPrice to price.
func plPercent(entryPrice, price float64) float64 {
	return (price - entryPrice) / entryPrice * 100
}

// priceAtPercent returns entryPrice moved by pct percent.
func priceAtPercent(entryPrice, pct float64) float64 {
	return entryPrice * (1 + pct/100)
}

// calendarDays counts whole calendar days from one date to another, ignoring
// the time of day. It never returns a negative count.
func calendarDays(from, to time.Time) int {
	days := int(dateOnly(to).Sub(dateOnly(from)).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
