// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
)

// currencySymbols maps ISO currency tags to display symbols.
var currencySymbols = map[string]string{
	"INR": "₹",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// CurrencySymbol returns the display symbol for a currency tag. Unknown tags
// are returned upper-cased with a trailing space; an empty tag has no symbol.
func CurrencySymbol(tag string) string {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if tag == "" {
		return ""
	}
	if sym, ok := currencySymbols[tag]; ok {
		return sym
	}
	return tag + " "
}

// FormatCurrency formats an amount with two decimals in the currency's
// numbering convention. INR uses Indian grouping (lakhs, crores), every other
// tag groups thousands.
func FormatCurrency(amount float64, tag string) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.2f", amount)
	parts := strings.Split(str, ".")
	intPart := parts[0]
	decPart := parts[1]

	var grouped string
	if strings.EqualFold(strings.TrimSpace(tag), "INR") {
		grouped = formatIndianNumber(intPart)
	} else {
		grouped = formatThousands(intPart)
	}

	result := CurrencySymbol(tag) + grouped + "." + decPart
	if negative && strings.Trim(str, "0.") != "" {
		result = "-" + result
	}
	return result
}

// formatIndianNumber formats an integer string in Indian numbering system.
// Indian system: 1,00,00,000 (1 crore) vs Western: 10,000,000
func formatIndianNumber(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	// First group of 3 from right
	result := s[n-3:]
	s = s[:n-3]

	// Then groups of 2
	for len(s) > 0 {
		if len(s) >= 2 {
			result = s[len(s)-2:] + "," + result
			s = s[:len(s)-2]
		} else {
			result = s + "," + result
			s = ""
		}
	}

	return result
}

// formatThousands formats an integer string in groups of three.
func formatThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	head := n % 3
	var b strings.Builder
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats a P/L amount with an explicit sign for gains.
func FormatPnL(pnl float64, tag string) string {
	formatted := FormatCurrency(pnl, tag)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}
