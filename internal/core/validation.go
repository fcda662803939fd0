package core

// validation.go checks parsed rows before anything is written.
//
// Validation happens at two levels:
//  1. Header validation: every required column must be present. A missing
//     column aborts immediately with one error naming all of them.
//  2. Row validation: every row is checked against its FieldSpecs and the
//     sheet's cross-field rules. Problems are collected across the whole
//     sheet and returned together as one ValidationError.
//
// Validation is all-or-nothing: a single bad row rejects the batch.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/listing-import/internal/labels"
	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

// FieldType represents the expected data type for a column.
type FieldType int

const (
	FieldText FieldType = iota
	FieldEnum
	FieldDate
	FieldNumeric
	FieldInteger
	FieldBool
	FieldURL
	FieldList
)

// FieldSpec defines validation rules for a single column.
type FieldSpec struct {
	Name        string        // Column header (matched case-insensitively)
	Type        FieldType     // Expected data type
	Required    bool          // Column must exist in the header
	AllowEmpty  bool          // Required column whose cells may be blank
	NonNegative bool          // FieldNumeric/FieldInteger: zero is allowed
	Enum        *labels.Table // FieldEnum, or FieldList entries
	MaxLen      int           // FieldText: maximum length in runes
}

// RowRule is a cross-field check on one row. Returned violations need only
// Field and Reason.
type RowRule func(row spreadsheet.Row) []Violation

// BatchRule is a check across all rows of a sheet, such as unique SKUs.
// Returned violations must set Row.
type BatchRule func(rows []spreadsheet.Row) []Violation

// RowValidator validates the rows of one sheet against its schema.
type RowValidator struct {
	schema SheetSchema
	file   string
}

// NewRowValidator creates a validator. file names the sheet in messages.
func NewRowValidator(schema SheetSchema, file string) *RowValidator {
	return &RowValidator{schema: schema, file: file}
}

// Validate runs the header check and, if it passes, every row-level check.
// It returns nil or a *ValidationError.
func (v *RowValidator) Validate(res *spreadsheet.Result) error {
	if err := v.ValidateHeaders(res.Index); err != nil {
		return err
	}

	var violations []Violation
	for _, row := range res.Rows {
		violations = append(violations, v.ValidateRow(row)...)
	}
	for _, rule := range v.schema.BatchRules {
		for _, viol := range rule(res.Rows) {
			violations = append(violations, v.stamp(viol, viol.Row))
		}
	}

	if len(violations) > 0 {
		return &ValidationError{File: v.file, Violations: violations}
	}
	return nil
}

// ValidateHeaders checks that every required column is present.
func (v *RowValidator) ValidateHeaders(idx spreadsheet.HeaderIndex) *ValidationError {
	missing := idx.Missing(v.schema.RequiredColumns())
	if len(missing) > 0 {
		return &ValidationError{File: v.file, MissingColumns: missing}
	}
	return nil
}

// ValidateRow returns every problem in row.
func (v *RowValidator) ValidateRow(row spreadsheet.Row) []Violation {
	var out []Violation

	for _, spec := range v.schema.Fields {
		raw := spreadsheet.CleanCell(row.Get(spec.Name))

		if raw == "" {
			if spec.Required && !spec.AllowEmpty {
				out = append(out, v.stamp(Violation{Field: spec.Name, Reason: "required field is empty"}, row.Index))
			}
			continue
		}

		if err := ValidateCell(raw, spec); err != nil {
			out = append(out, v.stamp(Violation{Field: spec.Name, Reason: err.Error()}, row.Index))
		}
	}

	for _, rule := range v.schema.Rules {
		for _, viol := range rule(row) {
			out = append(out, v.stamp(viol, row.Index))
		}
	}
	return out
}

func (v *RowValidator) stamp(viol Violation, row int) Violation {
	if viol.Row == 0 {
		viol.Row = row
	}
	if viol.File == "" {
		viol.File = v.file
	}
	return viol
}

// ValidateCell validates a single non-empty cell value against a field
// specification.
func ValidateCell(value string, spec FieldSpec) error {
	if value == "" {
		return nil
	}

	switch spec.Type {
	case FieldText:
		if spec.MaxLen > 0 && len([]rune(value)) > spec.MaxLen {
			return fmt.Errorf("must be at most %d characters", spec.MaxLen)
		}
	case FieldNumeric:
		n, err := ParseNumberWithCurrency(value)
		if err != nil {
			return fmt.Errorf("invalid number %q", value)
		}
		if err := checkSign(n, spec); err != nil {
			return err
		}
	case FieldInteger:
		n, ok := ParseInt(value)
		if !ok {
			return fmt.Errorf("invalid number %q: must be a whole number", value)
		}
		if err := checkSign(float64(n), spec); err != nil {
			return err
		}
	case FieldDate:
		if _, ok := ParseDate(value); !ok {
			return fmt.Errorf("invalid date %q (use YYYY-MM-DD or similar)", value)
		}
	case FieldBool:
		if _, ok := ParseBool(value); !ok {
			return fmt.Errorf("must be yes/no, true/false, or 1/0")
		}
	case FieldURL:
		if !IsHTTPURL(value) {
			return fmt.Errorf("invalid url %q: must start with http:// or https://", value)
		}
	case FieldEnum:
		if spec.Enum != nil {
			if _, ok := spec.Enum.Code(value); !ok {
				return invalidEnum(value, spec.Enum)
			}
		}
	case FieldList:
		if spec.Enum != nil {
			for _, item := range SplitList(value) {
				if _, ok := spec.Enum.Code(item); !ok {
					return invalidEnum(item, spec.Enum)
				}
			}
		}
	}

	return nil
}

func checkSign(n float64, spec FieldSpec) error {
	if spec.NonNegative {
		if n < 0 {
			return fmt.Errorf("must not be negative")
		}
		return nil
	}
	if n <= 0 {
		return fmt.Errorf("must be greater than zero")
	}
	return nil
}

func invalidEnum(value string, t *labels.Table) error {
	return fmt.Errorf("invalid enum %s %q (normalized %s)", t.Name(), value, labels.Normalize(value))
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "enum"
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldInteger:
		return "integer"
	case FieldBool:
		return "bool"
	case FieldURL:
		return "url"
	case FieldList:
		return "list"
	default:
		return "value"
	}
}

// Describe renders a field spec for column reference listings.
func (f FieldSpec) Describe() string {
	var parts []string
	parts = append(parts, fieldTypeName(f.Type))
	if f.Required && !f.AllowEmpty {
		parts = append(parts, "required")
	}
	if f.Enum != nil {
		parts = append(parts, "one of "+strings.Join(f.Enum.Codes(), "|"))
	}
	return f.Name + " (" + strings.Join(parts, ", ") + ")"
}
