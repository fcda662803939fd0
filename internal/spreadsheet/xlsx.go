package spreadsheet

import (
	"bytes"

	"github.com/xuri/excelize/v2"
)

// builtinCurrencyFormats holds the format codes Excel stores only as ids.
// Ids not listed carry no currency and resolve to "".
var builtinCurrencyFormats = map[int]string{
	5:  `"$"#,##0_);\("$"#,##0\)`,
	6:  `"$"#,##0_);[Red]\("$"#,##0\)`,
	7:  `"$"#,##0.00_);\("$"#,##0.00\)`,
	8:  `"$"#,##0.00_);[Red]\("$"#,##0.00\)`,
	42: `_("$"* #,##0_);_("$"* \(#,##0\);_("$"* "-"_);_(@_)`,
	44: `_("$"* #,##0.00_);_("$"* \(#,##0.00\);_("$"* "-"??_);_(@_)`,
}

// xlsxSheet keeps the formats and display text of the first worksheet. The
// workbook itself is closed once reading finishes.
type xlsxSheet struct {
	formats [][]string
	display [][]string
}

func readXLSX(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: "xlsx", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &EmptyInputError{Reason: "workbook has no worksheets"}
	}
	name := sheets[0]

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, &ParseError{Format: "xlsx", Err: err}
	}

	sheet := &xlsxSheet{
		display: rows,
		formats: make([][]string, len(rows)),
	}

	styleFormats := make(map[int]string)
	for r, row := range rows {
		sheet.formats[r] = make([]string, len(row))
		if r == 0 {
			continue
		}
		for c := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			styleID, err := f.GetCellStyle(name, cell)
			if err != nil || styleID == 0 {
				continue
			}
			format, ok := styleFormats[styleID]
			if !ok {
				format = numberFormat(f, styleID)
				styleFormats[styleID] = format
			}
			sheet.formats[r][c] = format
		}
	}

	return build(rows, sheet)
}

func numberFormat(f *excelize.File, styleID int) string {
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return ""
	}
	if style.CustomNumFmt != nil && *style.CustomNumFmt != "" {
		return *style.CustomNumFmt
	}
	return builtinCurrencyFormats[style.NumFmt]
}

func (s *xlsxSheet) NumberFormat(row, col int) string {
	return cellAt(s.formats, row, col)
}

func (s *xlsxSheet) DisplayText(row, col int) string {
	return cellAt(s.display, row, col)
}

func cellAt(grid [][]string, row, col int) string {
	if row < 0 || row >= len(grid) {
		return ""
	}
	r := grid[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}
