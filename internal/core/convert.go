package core

// convert.go parses the non-monetary cell types sellers send.
//
// These functions handle the messy reality of spreadsheet exports:
//   - Multiple date formats (US, EU, ISO, with or without a time)
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Integers written as "1,200" or "12.0"
//   - Comma- or semicolon-separated lists in one cell

import (
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006 3:04 PM",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
)

// ParseDate parses a date or date-time cell. Values without a zone are UTC.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// ParseBool accepts true/false, yes/no, t/f, y/n and 1/0.
func ParseBool(s string) (value, ok bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// ParseInt parses a whole number, tolerating thousands separators and a
// zero fraction ("1,200", "12.0").
func ParseInt(s string) (int, bool) {
	s = strings.ReplaceAll(spreadsheet.CleanCell(s), ",", "")
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// ParseOptionalInt returns nil for an empty cell.
func ParseOptionalInt(s string) (*int, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	n, ok := ParseInt(s)
	if !ok {
		return nil, false
	}
	return &n, true
}

// SplitList splits a multi-value cell on commas, semicolons and newlines,
// trimming entries and dropping blanks.
func SplitList(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// IsHTTPURL reports whether s is an absolute http or https URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
