package core

// # Error Codes Reference
//
// This file defines user-friendly error messages with codes for support
// reference. When sellers hit an error they can quote the code to support
// staff for faster diagnosis.
//
// Typed errors are matched first (through the whole wrap chain, so a
// RollbackError reports the code of the error that caused the rollback).
// Untyped errors fall back to case-insensitive substring patterns.
//
// # Configuration (CFG001)
//
//	CFG001 - Import is misconfigured (ConfigurationError)
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large         Patterns: "file too large"
//	FILE002 - Unreadable spreadsheet (spreadsheet.ParseError)
//	FILE004 - No file                Patterns: "no file provided"
//	FILE005 - Empty spreadsheet      (spreadsheet.EmptyInputError)
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid date            Patterns: "invalid date"
//	VAL002 - Invalid number          Patterns: "invalid number"
//	VAL003 - Required field          Patterns: "required field"
//	VAL004 - Missing column          (ValidationError with missing columns)
//	VAL006 - Invalid enum            Patterns: "invalid enum"
//	VAL007 - Rows failed validation  (ValidationError with row violations)
//
// # Media Errors (MED001-MED099)
//
//	MED001 - Image download failed   (media.DownloadError)
//	MED002 - Image compression       (media.CompressionError)
//	MED003 - Image upload failed     (media.UploadError)
//	MED004 - Image unreadable        (media.ProcessError)
//
// # Listing Errors
//
//	DUP001 - Duplicate listing       (DuplicateDetectedError)
//	ENT001 - Entity resolution       (EntityResolutionError)
//	TX001  - Transaction failed      (TransactionError)
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key            Patterns: "duplicate key"
//	DB002 - Unique constraint        Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key              Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused       Patterns: "connection refused"
//	DB005 - Connection reset         Patterns: "connection reset"
//	DB006 - Timeout                  Patterns: "timeout"
//	DB007 - Deadlock                 Patterns: "deadlock"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP002 - System busy             (ErrTooManyImports)
//	IMP003 - Import not found        Patterns: "import not found"
//	IMP004 - Request cancelled       (context.Canceled)
//	IMP005 - Request timeout         (context.DeadlineExceeded)
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests      Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when nothing matches. Support staff should check the logs for
// the original technical error.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/listing-import/internal/media"
	"github.com/JonMunkholm/listing-import/internal/spreadsheet"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type typedMatcher struct {
	match func(error) bool
	msg   UserMessage
}

func isA[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// typedErrors is checked in order. Listing-level causes come before the
// wrappers that may carry them.
var typedErrors = []typedMatcher{
	{
		match: isA[*DuplicateDetectedError],
		msg: UserMessage{
			Message: "This listing was already imported",
			Action:  "Remove the row or change the existing listing before importing it again",
			Code:    "DUP001",
		},
	},
	{
		match: isA[*EntityResolutionError],
		msg: UserMessage{
			Message: "A brand or address on this row could not be resolved",
			Action:  "Provide both ADDRESS_LINE1 and CITY, or leave the address blank",
			Code:    "ENT001",
		},
	},
	{
		match: func(err error) bool {
			var v *ValidationError
			return errors.As(err, &v) && len(v.MissingColumns) > 0
		},
		msg: UserMessage{
			Message: "Required column is missing from the spreadsheet",
			Action:  "Check that all required columns are present in your file",
			Code:    "VAL004",
		},
	},
	{
		match: isA[*ValidationError],
		msg: UserMessage{
			Message: "Some rows failed validation",
			Action:  "Fix every listed row and upload the file again",
			Code:    "VAL007",
		},
	},
	{
		match: isA[*media.DownloadError],
		msg: UserMessage{
			Message: "An image could not be downloaded",
			Action:  "Check that every image URL is public and reachable",
			Code:    "MED001",
		},
	},
	{
		match: isA[*media.UploadError],
		msg: UserMessage{
			Message: "An image could not be stored",
			Action:  "Please try again in a few moments",
			Code:    "MED003",
		},
	},
	{
		match: isA[*media.CompressionError],
		msg: UserMessage{
			Message: "An image could not be compressed",
			Action:  "The original image was kept; no action is needed",
			Code:    "MED002",
		},
	},
	{
		match: isA[*media.ProcessError],
		msg: UserMessage{
			Message: "An image file could not be read",
			Action:  "Use JPEG, PNG, GIF, WebP, BMP or TIFF images",
			Code:    "MED004",
		},
	},
	{
		match: isA[*TransactionError],
		msg: UserMessage{
			Message: "The listing could not be saved",
			Action:  "Please try again; nothing from this listing was kept",
			Code:    "TX001",
		},
	},
	{
		match: isA[*ConfigurationError],
		msg: UserMessage{
			Message: "The import is not configured correctly",
			Action:  "Check the listing type, seller and currency",
			Code:    "CFG001",
		},
	},
	{
		match: isA[*spreadsheet.ParseError],
		msg: UserMessage{
			Message: "The file is not a readable spreadsheet",
			Action:  "Upload an .xlsx workbook or a comma-separated .csv file",
			Code:    "FILE002",
		},
	},
	{
		match: isA[*spreadsheet.EmptyInputError],
		msg: UserMessage{
			Message: "The uploaded spreadsheet is empty",
			Action:  "Upload a file with a header row and at least one data row",
			Code:    "FILE005",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, ErrTooManyImports) },
		msg: UserMessage{
			Message: "System is busy processing other imports",
			Action:  "Please wait a moment and try again",
			Code:    "IMP002",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, context.Canceled) },
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "IMP004",
		},
	},
	{
		match: func(err error) bool { return errors.Is(err, context.DeadlineExceeded) },
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller file or check your connection",
			Code:    "IMP005",
		},
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user
// messages. The first matching pattern wins, so specific patterns go first.
var errorPatterns = []errorPattern{
	// Database constraints
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this ID already exists",
			Action:  "Check the file for rows imported twice",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "This value must be unique but already exists",
			Action:  "Check for duplicate entries in your file",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Review your data for duplicate key values",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that the seller exists",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "Referenced record does not exist",
			Action:  "Check that the seller exists",
			Code:    "DB003",
		},
	},

	// Database connectivity
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},

	// Single cell validation
	{
		pattern: "invalid date",
		msg: UserMessage{
			Message: "Invalid date format detected",
			Action:  "Use YYYY-MM-DD, MM/DD/YYYY, or Jan 15, 2024",
			Code:    "VAL001",
		},
	},
	{
		pattern: "invalid number",
		msg: UserMessage{
			Message: "Invalid number format detected",
			Action:  "Use a plain amount such as 1234.50, optionally with a currency symbol",
			Code:    "VAL002",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "Required field is empty",
			Action:  "Ensure all required columns have values",
			Code:    "VAL003",
		},
	},
	{
		pattern: "invalid enum",
		msg: UserMessage{
			Message: "Value is not in the allowed list",
			Action:  "Check the allowed values for this field",
			Code:    "VAL006",
		},
	},

	// Files and requests
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds maximum size limit",
			Action:  "Split the file into smaller batches",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a spreadsheet to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import not found",
			Action:  "The import may have expired. Please start a new import",
			Code:    "IMP003",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Typed
// errors anywhere in the chain win over text patterns.
//
// Example:
//
//	msg := MapError(&DuplicateDetectedError{})
//	// msg.Code == "DUP001"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, tm := range typedErrors {
		if tm.match(err) {
			return tm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
