package domain

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FormatMinor renders an amount of minor currency units (e.g. cents) as a
// localized currency string, such as "€12.34" for (1234, "EUR", "en").
// The subunit exponent comes from the currency's rounding data, so
// zero-decimal currencies like JPY render whole amounts. Unknown currency
// or locale tags fall back to a plain two-decimal rendering rather than
// failing; display formatting must never break a checkout.
func FormatMinor(amount int64, currencyCode, locale string) string {
	unit, err := currency.ParseISO(currencyCode)
	if err != nil {
		return fmt.Sprintf("%d.%02d", amount/100, abs64(amount%100))
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	p := message.NewPrinter(tag)
	scale, _ := currency.Standard.Rounding(unit)
	major := float64(amount) / math.Pow10(scale)
	return p.Sprintf("%v", currency.Symbol(unit.Amount(major)))
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
