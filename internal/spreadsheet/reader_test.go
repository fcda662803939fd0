package spreadsheet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRead_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBF NAME ,PRICE,Condition\nWidget,$12.50,New\n,,\nGadget,\"1,000\",Used - Good\n")

	res, err := Read(data)
	require.NoError(t, err)

	assert.Equal(t, []string{"NAME", "PRICE", "Condition"}, res.Headers)
	require.Len(t, res.Rows, 2)

	assert.Equal(t, 1, res.Rows[0].Index)
	assert.Equal(t, "Widget", res.Rows[0].Get("NAME"))
	assert.Equal(t, "$12.50", res.Rows[0].Get("price"))

	// the blank row still counts
	assert.Equal(t, 3, res.Rows[1].Index)
	assert.Equal(t, "1,000", res.Rows[1].Get("PRICE"))
	assert.Equal(t, "Used - Good", res.Rows[1].Get("CONDITION"))

	col, ok := res.Index.Lookup("price")
	require.True(t, ok)
	assert.Equal(t, 1, col)
	assert.Equal(t, "", res.Sheet.NumberFormat(1, col))
	assert.Equal(t, "$12.50", res.Sheet.DisplayText(1, col))
}

func TestRead_ShortRowsReadAsEmpty(t *testing.T) {
	res, err := Read([]byte("A,B,C\n1\n"))
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "1", res.Rows[0].Get("A"))
	assert.Equal(t, "", res.Rows[0].Get("C"))
	assert.False(t, res.Rows[0].Has("C"))
}

func TestRead_InvalidUTF8IsReplaced(t *testing.T) {
	res, err := Read([]byte("NAME\nCaf\xe9\n"))
	require.NoError(t, err)
	assert.Equal(t, "Caf\uFFFD", res.Rows[0].Get("NAME"))
}

func TestRead_EmptyInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"no bytes", nil},
		{"whitespace", []byte("  \n\n")},
		{"header only", []byte("NAME,PRICE\n")},
		{"blank data rows", []byte("NAME,PRICE\n,\n ,\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.data)
			var empty *EmptyInputError
			assert.ErrorAs(t, err, &empty)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestRead_CorruptWorkbook(t *testing.T) {
	_, err := Read([]byte("PK\x03\x04 definitely not a zip archive"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "xlsx", parseErr.Format)
}

func TestRead_XLSXKeepsNumberFormats(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"

	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"NAME", "PRICE", "RETAIL_PRICE"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Pallet of shoes", 1234.5, 99}))

	euro := `[$€-407] #,##0.00`
	euroStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &euro})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle(sheet, "B2", "B2", euroStyle))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := Read(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Pallet of shoes", res.Rows[0].Get("NAME"))

	priceCol, ok := res.Index.Lookup("PRICE")
	require.True(t, ok)
	assert.Contains(t, res.Sheet.NumberFormat(1, priceCol), "€")

	retailCol, ok := res.Index.Lookup("RETAIL_PRICE")
	require.True(t, ok)
	assert.Equal(t, "", res.Sheet.NumberFormat(1, retailCol))
	assert.Equal(t, "99", res.Sheet.DisplayText(1, retailCol))
}

func TestHeaderIndex_Missing(t *testing.T) {
	idx := MakeHeaderIndex([]string{"NAME", " Price ", "=\"SKU\""})
	assert.Empty(t, idx.Missing([]string{"name", "PRICE", "sku"}))
	assert.Equal(t, []string{"CONDITION", "PACKAGING"}, idx.Missing([]string{"NAME", "CONDITION", "PACKAGING"}))
}

func TestCleanCell(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  hello ", "hello"},
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{`"quoted"`, "quoted"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanCell(tt.in), "CleanCell(%q)", tt.in)
	}
}
