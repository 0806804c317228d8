package iucn

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatKm2 renders an area with two decimals and grouped thousands.
// Non-finite values render as zero.
func FormatKm2(v float64) string {
	return FormatKm2In(printer, v)
}

// FormatKm2In is FormatKm2 using p's locale.
func FormatKm2In(p *message.Printer, v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return p.Sprintf("%.2f", v)
}
