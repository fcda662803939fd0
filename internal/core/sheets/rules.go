package sheets

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/labels"
	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

func cell(row spreadsheet.Row, column string) string {
	return spreadsheet.CleanCell(row.Get(column))
}

// palletsRequireCount: packaging PALLETS needs a positive PALLET_COUNT.
func palletsRequireCount(row spreadsheet.Row) []core.Violation {
	code, ok := labels.Packaging.Code(cell(row, core.ColPackaging))
	if !ok || code != "PALLETS" {
		return nil
	}
	if n, ok := core.ParseInt(cell(row, core.ColPalletCount)); ok && n > 0 {
		return nil
	}
	return []core.Violation{{
		Field:  core.ColPalletCount,
		Reason: "packaging PALLETS requires a positive pallet count",
	}}
}

// paired returns a rule requiring a and b to be either both set or both
// blank, e.g. a retail value only makes sense with a unit count.
func paired(a, b string) core.RowRule {
	return func(row spreadsheet.Row) []core.Violation {
		hasA, hasB := cell(row, a) != "", cell(row, b) != ""
		switch {
		case hasA && !hasB:
			return []core.Violation{{Field: b, Reason: fmt.Sprintf("required when %s is set", a)}}
		case hasB && !hasA:
			return []core.Violation{{Field: a, Reason: fmt.Sprintf("required when %s is set", b)}}
		}
		return nil
	}
}

// notBelow returns a rule rejecting a value of column lower than floor.
func notBelow(column, floor string) core.RowRule {
	return func(row spreadsheet.Row) []core.Violation {
		v, err := core.ParseOptionalNumberWithCurrency(cell(row, column))
		if err != nil || v == nil {
			return nil
		}
		f, err := core.ParseOptionalNumberWithCurrency(cell(row, floor))
		if err != nil || f == nil {
			return nil
		}
		if *v < *f {
			return []core.Violation{{Field: column, Reason: fmt.Sprintf("must not be lower than %s", floor)}}
		}
		return nil
	}
}

func endAfterStart(row spreadsheet.Row) []core.Violation {
	start, ok := core.ParseDate(cell(row, core.ColStartDate))
	if !ok {
		return nil
	}
	end, ok := core.ParseDate(cell(row, core.ColEndDate))
	if !ok {
		return nil
	}
	if !end.After(start) {
		return []core.Violation{{Field: core.ColEndDate, Reason: "must be after " + core.ColStartDate}}
	}
	return nil
}

// parentConflict rejects rows that claim to be a parent and name a parent.
func parentConflict(row spreadsheet.Row) []core.Violation {
	isParent, _ := core.ParseBool(cell(row, core.ColIsParent))
	parentSKU := cell(row, core.ColParentSKU)

	if isParent && parentSKU != "" {
		return []core.Violation{{Field: core.ColIsParent, Reason: "a parent product cannot have a " + core.ColParentSKU}}
	}
	if parentSKU != "" && strings.EqualFold(parentSKU, cell(row, core.ColSKU)) {
		return []core.Violation{{Field: core.ColParentSKU, Reason: "a product cannot be its own parent"}}
	}
	return nil
}

func priceUnlessParent(row spreadsheet.Row) []core.Violation {
	if isParent, _ := core.ParseBool(cell(row, core.ColIsParent)); isParent {
		return nil
	}
	if cell(row, core.ColPrice) == "" {
		return []core.Violation{{Field: core.ColPrice, Reason: "required field is empty"}}
	}
	return nil
}

// uniqueWithin returns a batch rule flagging repeated non-empty values of
// column. When scope is set, values only collide within the same scope value.
func uniqueWithin(column, scope string) core.BatchRule {
	return func(rows []spreadsheet.Row) []core.Violation {
		first := make(map[string]int, len(rows))
		var out []core.Violation
		for _, row := range rows {
			v := cell(row, column)
			if v == "" {
				continue
			}
			key := strings.ToUpper(v)
			if scope != "" {
				key = strings.ToUpper(cell(row, scope)) + "\x00" + key
			}
			if prev, ok := first[key]; ok {
				out = append(out, core.Violation{
					Row:    row.Index,
					Field:  column,
					Reason: fmt.Sprintf("duplicate %s %q (first seen on row %d)", column, v, prev),
				})
				continue
			}
			first[key] = row.Index
		}
		return out
	}
}
