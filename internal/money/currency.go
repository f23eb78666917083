package money

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// DefaultLocale is used by Formatted when no locale is supplied.
const DefaultLocale = "en-US"

func parseUnit(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit, nil
}

func normalizeCurrency(code string) (string, error) {
	unit, err := parseUnit(code)
	if err != nil {
		return "", err
	}
	return unit.String(), nil
}

// scaleOf returns the minor-unit digits for an already validated code.
func scaleOf(code string) int32 {
	unit, err := parseUnit(code)
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

// ValidCurrency reports whether code is a recognised ISO 4217 currency.
func ValidCurrency(code string) bool {
	_, err := parseUnit(code)
	return err == nil
}

// Formatted renders p for display in DefaultLocale, e.g. "$1,234.50".
func (p Price) Formatted() string {
	return p.FormattedIn(DefaultLocale)
}

// FormattedIn renders p with the currency symbol, digit grouping and decimal
// separator of locale. Unknown locales fall back to root formatting. Digits
// come from the exact amount; only the grouping goes through the printer.
func (p Price) FormattedIn(locale string) string {
	unit, err := parseUnit(p.currency)
	if err != nil {
		return p.String()
	}
	printer := message.NewPrinter(language.Make(locale))
	symbol := printer.Sprint(currency.Symbol(unit))

	fixed := p.amount.Abs().StringFixed(p.Scale())
	whole, frac, _ := strings.Cut(fixed, ".")
	digits := whole
	if n, err := strconv.ParseInt(whole, 10, 64); err == nil {
		digits = printer.Sprint(number.Decimal(n))
	}
	if frac != "" {
		digits += decimalSeparator(printer) + frac
	}
	if p.amount.IsNegative() && !p.amount.Round(p.Scale()).IsZero() {
		return "-" + symbol + digits
	}
	return symbol + digits
}

// decimalSeparator extracts the locale's separator from a formatted 1.5.
func decimalSeparator(printer *message.Printer) string {
	sample := printer.Sprint(number.Decimal(1.5, number.Scale(1)))
	sep := strings.TrimSuffix(strings.TrimPrefix(sample, "1"), "5")
	if sep == "" {
		return "."
	}
	return sep
}
