package prompt

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Currency carries what the prompt needs to render money: the ISO code, a
// display symbol, the number of minor digits and the locale whose digit
// grouping applies.
type Currency struct {
	Code   string
	Symbol string
	Scale  int
	Locale language.Tag
}

var symbols = map[string]string{
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
	"JPY": "¥",
	"INR": "₹",
	"CAD": "CA$",
	"AUD": "A$",
	"CHF": "CHF ",
}

var locales = map[string]language.Tag{
	"USD": language.AmericanEnglish,
	"GBP": language.BritishEnglish,
	"EUR": language.MustParse("en-IE"),
	"JPY": language.Japanese,
	"INR": language.MustParse("en-IN"),
	"CAD": language.MustParse("en-CA"),
	"AUD": language.MustParse("en-AU"),
	"CHF": language.MustParse("en-CH"),
}

// ResolveCurrency validates an ISO 4217 code and returns its formatting
// context. Unknown but valid codes use the code itself as the symbol.
func ResolveCurrency(code string) (Currency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Currency{}, fmt.Errorf("prompt: unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)

	c := Currency{Code: unit.String(), Scale: scale, Locale: language.English}
	if s, ok := symbols[c.Code]; ok {
		c.Symbol = s
	} else {
		c.Symbol = c.Code + " "
	}
	if tag, ok := locales[c.Code]; ok {
		c.Locale = tag
	}
	return c, nil
}

// MustCurrency is ResolveCurrency for known-good codes; it falls back to USD.
func MustCurrency(code string) Currency {
	c, err := ResolveCurrency(code)
	if err != nil {
		c, _ = ResolveCurrency("USD")
	}
	return c
}

// Format renders amount with the currency symbol and locale grouping, e.g.
// £1,500.00. Negative amounts carry a leading minus.
func (c Currency) Format(amount decimal.Decimal) string {
	p := message.NewPrinter(c.Locale)
	rounded := amount.Round(int32(c.Scale))
	sign := ""
	if rounded.IsNegative() {
		sign = "-"
		rounded = rounded.Abs()
	}
	f, _ := rounded.Float64()
	return sign + c.Symbol + p.Sprintf(fmt.Sprintf("%%.%df", c.Scale), f)
}
