package format

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Placeholder rendered instead of NaN or infinities.
const Placeholder = "—"

func printer(locale string) *message.Printer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	return message.NewPrinter(tag)
}

// FormatMoney rounds half away from zero to two decimals and groups digits
// for the locale, prefixed with the ISO currency code.
func FormatMoney(amount decimal.Decimal, currency, locale string) string {
	rounded := amount.Round(2).InexactFloat64()
	out := printer(locale).Sprint(number.Decimal(rounded, number.Scale(2)))
	if code := strings.ToUpper(strings.TrimSpace(currency)); code != "" {
		return code + " " + out
	}
	return out
}

// FormatPercent renders at most two fraction digits followed by "%".
func FormatPercent(value decimal.Decimal, locale string) string {
	rounded := value.Round(2).InexactFloat64()
	return printer(locale).Sprint(number.Decimal(rounded, number.MaxFractionDigits(2))) + "%"
}

// FormatFloat is the display guard for values computed outside decimal math.
func FormatFloat(value float64, locale string) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Placeholder
	}
	return printer(locale).Sprint(number.Decimal(value, number.MaxFractionDigits(2)))
}
