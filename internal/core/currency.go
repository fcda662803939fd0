package core

// currency.go resolves monetary cells to an amount and an ISO-4217 code.
//
// The currency of a price cell is looked up, in order, in:
//  1. the cell's stored number format ("$#,##0.00", "[$€-407] #,##0.00", "[$CAD]")
//  2. the cell's display text ("C$12.50", "12.50 EUR")
//  3. the caller's fallback
//
// Amount parsing strips symbols, ISO codes and thousands separators and
// fails loudly on anything that is not a number.

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

// DefaultCurrency is used when neither the sheet nor the request names one.
const DefaultCurrency = "USD"

var knownCurrencies = map[string]bool{
	"USD": true, "EUR": true, "GBP": true, "JPY": true, "CAD": true,
	"MXN": true, "HKD": true, "SGD": true, "AUD": true, "NZD": true,
	"CHF": true, "CNY": true, "INR": true, "BRL": true, "SEK": true,
	"NOK": true, "DKK": true, "ZAR": true, "KRW": true, "PLN": true,
}

// IsKnownCurrency reports whether code is a supported ISO-4217 code.
func IsKnownCurrency(code string) bool {
	return knownCurrencies[strings.ToUpper(strings.TrimSpace(code))]
}

// currencySymbols is checked in order. Prefixed dollar variants come before
// the bare "$" and longer prefixes before the ones they contain.
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"CA$", "CAD"},
	{"C$", "CAD"},
	{"MX$", "MXN"},
	{"HK$", "HKD"},
	{"NZ$", "NZD"},
	{"AU$", "AUD"},
	{"A$", "AUD"},
	{"S$", "SGD"},
	{"R$", "BRL"},
	{"CN¥", "CNY"},
	{"€", "EUR"},
	{"£", "GBP"},
	{"¥", "JPY"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"zł", "PLN"},
	{"$", "USD"},
}

var (
	// [$€-407], [$USD], [$CAD-1009]
	localeCurrencyToken = regexp.MustCompile(`\[\$([^\]\-]*)(?:-[0-9A-Fa-f]+)?\]`)
	isoToken            = regexp.MustCompile(`\b[A-Za-z]{3}\b`)
	numberFormatColor   = regexp.MustCompile(`\[(?i:red|black|green|white|blue|magenta|yellow|cyan|color\s*\d+)\]`)
)

// ExtractCurrency resolves the currency of the cell in column on row. row is
// a spreadsheet.Row Index.
func ExtractCurrency(sheet spreadsheet.Sheet, row int, column string, idx spreadsheet.HeaderIndex, fallback string) string {
	if fallback == "" {
		fallback = DefaultCurrency
	}
	if sheet == nil {
		return fallback
	}
	col, ok := idx.Lookup(column)
	if !ok {
		return fallback
	}

	if code, ok := CurrencyFromFormat(sheet.NumberFormat(row, col)); ok {
		return code
	}
	if code, ok := CurrencyFromText(sheet.DisplayText(row, col)); ok {
		return code
	}
	return fallback
}

// CurrencyFromFormat matches an Excel number format against known currency
// patterns.
func CurrencyFromFormat(format string) (string, bool) {
	if format == "" {
		return "", false
	}

	if m := localeCurrencyToken.FindStringSubmatch(format); m != nil {
		if code, ok := currencyToken(m[1]); ok {
			return code, true
		}
	}

	// only the positive section decides; quotes and escapes are literal
	// markers around the symbol
	section, _, _ := strings.Cut(format, ";")
	section = localeCurrencyToken.ReplaceAllString(section, "")
	section = numberFormatColor.ReplaceAllString(section, "")
	section = strings.NewReplacer(`"`, "", `\`, "").Replace(section)
	return CurrencyFromText(section)
}

// CurrencyFromText scans rendered text for a currency symbol or ISO code.
func CurrencyFromText(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	upper := strings.ToUpper(text)
	for _, m := range isoToken.FindAllString(upper, -1) {
		if knownCurrencies[m] {
			return m, true
		}
	}
	for _, s := range currencySymbols {
		if strings.Contains(upper, strings.ToUpper(s.symbol)) {
			return s.code, true
		}
	}
	return "", false
}

func currencyToken(tok string) (string, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return "", false
	}
	if knownCurrencies[strings.ToUpper(tok)] {
		return strings.ToUpper(tok), true
	}
	for _, s := range currencySymbols {
		if strings.EqualFold(tok, s.symbol) {
			return s.code, true
		}
	}
	return "", false
}

// NumberFormatError is returned when a numeric cell does not hold a number
// once currency decorations are removed.
type NumberFormatError struct {
	Value string
}

func (e *NumberFormatError) Error() string {
	return fmt.Sprintf("invalid number %q", e.Value)
}

// ParseNumberWithCurrency parses a possibly currency-formatted number:
// "$1,234.50", "€99", "1.234,50 EUR", "(12.00)", "USD 5".
func ParseNumberWithCurrency(value string) (float64, error) {
	s := spreadsheet.CleanCell(value)
	if s == "" {
		return 0, &NumberFormatError{Value: value}
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = stripCurrency(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\'' {
			return -1
		}
		return r
	}, s)
	s = normalizeSeparators(s)

	if s == "" {
		return 0, &NumberFormatError{Value: value}
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, &NumberFormatError{Value: value}
	}
	if negative {
		n = -n
	}
	return n, nil
}

// ParseOptionalNumberWithCurrency is ParseNumberWithCurrency for optional
// cells: empty input yields nil and no error.
func ParseOptionalNumberWithCurrency(value string) (*float64, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	n, err := ParseNumberWithCurrency(value)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func stripCurrency(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 3 {
		if knownCurrencies[strings.ToUpper(s[:3])] && !isLetter(s[3]) {
			s = s[3:]
		} else if n := len(s); knownCurrencies[strings.ToUpper(s[n-3:])] && !isLetter(s[n-4]) {
			s = s[:n-3]
		}
	}

	upper := strings.ToUpper(s)
	for _, m := range isoToken.FindAllStringIndex(upper, -1) {
		if knownCurrencies[upper[m[0]:m[1]]] {
			s = s[:m[0]] + strings.Repeat(" ", m[1]-m[0]) + s[m[1]:]
		}
	}
	for _, sym := range currencySymbols {
		s = replaceFold(s, sym.symbol)
	}
	return s
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// replaceFold removes every case-insensitive occurrence of sym.
func replaceFold(s, sym string) string {
	for {
		i := strings.Index(strings.ToUpper(s), strings.ToUpper(sym))
		if i < 0 {
			return s
		}
		s = s[:i] + s[i+len(sym):]
	}
}

// normalizeSeparators turns "1,234.50" and "1.234,50" into "1234.50". A lone
// comma followed by one or two digits is a decimal comma.
func normalizeSeparators(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 {
			if decimals := len(s) - lastComma - 1; decimals == 1 || decimals == 2 {
				return strings.Replace(s, ",", ".", 1)
			}
		}
		return strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ".") > 1:
		return strings.ReplaceAll(s, ".", "")
	}
	return s
}

// Money is an amount with its currency.
type Money struct {
	Amount   float64
	Currency string
}

// ExtractMoney parses the amount in column of row and resolves its
// currency. ok is false when the cell is empty.
func ExtractMoney(res *spreadsheet.Result, row spreadsheet.Row, column, fallback string) (m Money, ok bool, err error) {
	raw := row.Get(column)
	if strings.TrimSpace(raw) == "" {
		return Money{}, false, nil
	}
	amount, err := ParseNumberWithCurrency(raw)
	if err != nil {
		return Money{}, false, err
	}
	return Money{
		Amount:   amount,
		Currency: ExtractCurrency(res.Sheet, row.Index, column, res.Index, fallback),
	}, true, nil
}
