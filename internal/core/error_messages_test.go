package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/listing-import/internal/media"
	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

func TestMapError(t *testing.T) {
	dup := &DuplicateDetectedError{Row: 2, Existing: ExistingListing{PublicID: "L-1"}}

	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},

		// typed
		{name: "duplicate listing", err: dup, wantCode: "DUP001"},
		{name: "duplicate inside rollback", err: &RollbackError{Original: dup, DatabaseRolledBack: true}, wantCode: "DUP001"},
		{name: "entity resolution", err: &EntityResolutionError{Entity: "address", Row: 3}, wantCode: "ENT001"},
		{name: "missing columns", err: &ValidationError{MissingColumns: []string{"NAME"}}, wantCode: "VAL004"},
		{name: "row violations", err: &ValidationError{Violations: []Violation{{Row: 1, Reason: "x"}}}, wantCode: "VAL007"},
		{name: "download", err: fmt.Errorf("media: %w", &media.DownloadError{URL: "u", StatusCode: 404}), wantCode: "MED001"},
		{name: "upload", err: &media.UploadError{Key: "k", Err: errors.New("denied")}, wantCode: "MED003"},
		{name: "transaction", err: &TransactionError{Op: "commit", Err: errors.New("conn closed")}, wantCode: "TX001"},
		{name: "configuration", err: &ConfigurationError{Problems: []string{"bad kind"}}, wantCode: "CFG001"},
		{name: "parse", err: &spreadsheet.ParseError{Format: "xlsx", Err: errors.New("zip: not a valid zip file")}, wantCode: "FILE002"},
		{name: "empty", err: &spreadsheet.EmptyInputError{Reason: "no data rows"}, wantCode: "FILE005"},
		{name: "too many imports", err: ErrTooManyImports, wantCode: "IMP002"},
		{name: "cancelled", err: fmt.Errorf("download: %w", context.Canceled), wantCode: "IMP004"},
		{name: "deadline", err: context.DeadlineExceeded, wantCode: "IMP005"},

		// patterns
		{name: "duplicate key", err: errors.New("ERROR: duplicate key value violates unique constraint"), wantCode: "DB001"},
		{name: "unique constraint", err: errors.New("ERROR: unique constraint violated"), wantCode: "DB002"},
		{name: "foreign key", err: errors.New("violates foreign key constraint"), wantCode: "DB003"},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), wantCode: "DB004"},
		{name: "invalid date", err: errors.New(`invalid date "soon"`), wantCode: "VAL001"},
		{name: "file too large", err: errors.New("file too large: 30MB"), wantCode: "FILE001"},
		{name: "rate limit", err: errors.New("rate limit exceeded"), wantCode: "RATE001"},
		{name: "case insensitive", err: errors.New("DUPLICATE KEY value"), wantCode: "DB001"},
		{name: "unknown error", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(errors.New("duplicate key value violates"))

	expected := "A record with this ID already exists (Code: DB001). Check the file for rows imported twice"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error", err: nil, want: false},
		{name: "typed error", err: &EntityResolutionError{Entity: "brand"}, want: true},
		{name: "known pattern", err: errors.New("duplicate key"), want: true},
		{name: "unknown error", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := errors.New("duplicate key value")
		userErr := NewUserError(techErr)

		if userErr.Error() != "A record with this ID already exists" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}
		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}

func TestDescribe(t *testing.T) {
	verr := &ValidationError{File: "listings.xlsx", Violations: []Violation{
		{Row: 4, Field: "NAME", Reason: "required field is empty"},
		{Row: 2, Field: "PRICE", Reason: "must be greater than zero"},
		{Row: 4, Field: "PRICE", Reason: "must be greater than zero"},
	}}

	info := Describe(verr, "", 0)
	if info.Code != "VAL007" {
		t.Errorf("Code = %q, want VAL007", info.Code)
	}
	if info.File != "listings.xlsx" {
		t.Errorf("File = %q, want listings.xlsx", info.File)
	}
	if len(info.Rows) != 2 || info.Rows[0] != 2 || info.Rows[1] != 4 {
		t.Errorf("Rows = %v, want [2 4]", info.Rows)
	}

	rb := &RollbackError{
		Original:           &DuplicateDetectedError{Row: 7},
		DatabaseRolledBack: true,
		ObjectsDeleted:     3,
		ObjectsTracked:     4,
		CleanupFailed:      true,
		CleanupErr:         errors.New("access denied"),
	}
	info = Describe(rb, "", 0)
	if info.Code != "DUP001" {
		t.Errorf("Code = %q, want DUP001", info.Code)
	}
	if info.Rollback == nil || info.Rollback.ObjectsDeleted != 3 || !info.Rollback.CleanupFailed {
		t.Errorf("Rollback = %+v, want deleted 3 with cleanup failure", info.Rollback)
	}
	if len(info.Rows) != 1 || info.Rows[0] != 7 {
		t.Errorf("Rows = %v, want [7]", info.Rows)
	}
}
