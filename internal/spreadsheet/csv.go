package spreadsheet

import (
	"bytes"
	"encoding/csv"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type csvSheet struct {
	records [][]string
}

func readCSV(data []byte) (*Result, error) {
	data = sanitizeUTF8(bytes.TrimPrefix(data, utf8BOM))

	records, err := parseCSV(data)
	if err != nil {
		return nil, &ParseError{Format: "csv", Err: err}
	}
	return build(records, &csvSheet{records: records})
}

// NumberFormat is always empty: delimited text has no cell styles.
func (s *csvSheet) NumberFormat(row, col int) string { return "" }

func (s *csvSheet) DisplayText(row, col int) string {
	return cellAt(s.records, row, col)
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD so exports from
// legacy tools still parse.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('\uFFFD')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

func parseCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}
