package helpers

import "fmt"

// FormatUSD formats a dollar amount with two decimals
func FormatUSD(amount float64) string {
	return fmt.Sprintf("$%.2f", amount)
}

// FormatPercent formats a fraction as a percentage with one decimal,
// e.g. 0.15 -> "15.0%"
func FormatPercent(fraction float64) string {
	return fmt.Sprintf("%.1f%%", fraction*100)
}

// FormatSignedPercent formats a fraction as a signed percentage with one
// decimal, e.g. 0.2 -> "+20.0%"
func FormatSignedPercent(fraction float64) string {
	return fmt.Sprintf("%+.1f%%", fraction*100)
}
