package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"momentum-trader/internal/models"
	"momentum-trader/pkg/utils"
)

// dateLayout is the date format accepted and printed by every command.
const dateLayout = "2006-01-02"

// FormatMoney formats an amount in the given currency.
func FormatMoney(amount float64, currency string) string {
	return utils.FormatCurrency(amount, currency)
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	return utils.FormatPercent(value)
}

// FormatPnL formats P/L with sign.
func FormatPnL(pnl float64, currency string) string {
	return utils.FormatPnL(pnl, currency)
}

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if price >= 10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatRatio formats a ratio, printing an unbounded one as "inf".
func FormatRatio(r models.Ratio) string {
	if r.IsUnbounded() {
		return "inf"
	}
	return fmt.Sprintf("%.2f", float64(r))
}

// FormatOscillator formats an oscillator reading, or "-" when undefined.
func FormatOscillator(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.1f", v)
}

// FormatDate formats a date.
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(dateLayout)
}

// FormatOptionalDate formats a date pointer, or "-" when unset.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatDate(*t)
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// shortID returns the first eight characters of a trade id for tables.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// parseDate parses a YYYY-MM-DD date in UTC.
func parseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}
