package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ConfigurationError reports a coordinator or import request that cannot run
// as configured. It is raised before any input is read.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid import configuration: " + strings.Join(e.Problems, "; ")
}

// Violation is one row-level validation problem.
type Violation struct {
	File   string `json:"file,omitempty"`
	Row    int    `json:"row"`
	Field  string `json:"field,omitempty"`
	Reason string `json:"reason"`
}

func (v Violation) String() string {
	var b strings.Builder
	if v.File != "" {
		b.WriteString(v.File)
		b.WriteString(" ")
	}
	if v.Row > 0 {
		fmt.Fprintf(&b, "row %d", v.Row)
	}
	if v.Field != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString(v.Field)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(v.Reason)
	return b.String()
}

// ValidationError aggregates every problem found in a batch. Either
// MissingColumns is set (header check failed and rows were not examined) or
// Violations lists every row-level problem.
type ValidationError struct {
	File           string
	MissingColumns []string
	Violations     []Violation
}

func (e *ValidationError) Error() string {
	if len(e.MissingColumns) > 0 {
		msg := "missing required columns: " + strings.Join(e.MissingColumns, ", ")
		if e.File != "" {
			msg = e.File + ": " + msg
		}
		return msg
	}

	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("validation failed with %d problem(s): %s", len(e.Violations), strings.Join(lines, "; "))
}

// Rows returns the distinct row numbers with violations, ascending.
func (e *ValidationError) Rows() []int {
	seen := make(map[int]bool, len(e.Violations))
	var rows []int
	for _, v := range e.Violations {
		if v.Row > 0 && !seen[v.Row] {
			seen[v.Row] = true
			rows = append(rows, v.Row)
		}
	}
	sort.Ints(rows)
	return rows
}

// mergeValidation combines several validation errors into one. nil entries
// are skipped; the result is nil when nothing remains.
func mergeValidation(errs ...*ValidationError) *ValidationError {
	var present []*ValidationError
	for _, e := range errs {
		if e != nil {
			present = append(present, e)
		}
	}
	switch len(present) {
	case 0:
		return nil
	case 1:
		return present[0]
	}

	out := &ValidationError{}
	for _, e := range present {
		for _, col := range e.MissingColumns {
			if e.File != "" {
				col = e.File + ": " + col
			}
			out.MissingColumns = append(out.MissingColumns, col)
		}
		out.Violations = append(out.Violations, e.Violations...)
	}
	return out
}

// ExistingListing identifies the listing a duplicate collided with.
// Row is set instead of CreatedAt when the match is an earlier row of the
// same upload, which has not been stored.
type ExistingListing struct {
	ID        string    `json:"id"`
	PublicID  string    `json:"publicId"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	Row       int       `json:"row,omitempty"`
}

// DuplicateDetectedError aborts a listing whose content digest matches a
// live listing of the same seller.
type DuplicateDetectedError struct {
	Row      int
	Digest   string
	Existing ExistingListing
}

func (e *DuplicateDetectedError) Error() string {
	if e.Existing.Row > 0 {
		return fmt.Sprintf("duplicate listing detected: %q matches row %d of the same upload",
			e.Existing.Title, e.Existing.Row)
	}
	return fmt.Sprintf("duplicate listing detected: %q matches existing listing %s (status %s, created %s)",
		e.Existing.Title, e.Existing.PublicID, e.Existing.Status, e.Existing.CreatedAt.Format(time.RFC3339))
}

// EntityResolutionError reports a shared entity that could not be resolved
// for a row, such as an address missing its first line or city.
type EntityResolutionError struct {
	Entity string
	Row    int
	Reason string
}

func (e *EntityResolutionError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("entity resolution failed for %s on row %d: %s", e.Entity, e.Row, e.Reason)
	}
	return fmt.Sprintf("entity resolution failed for %s: %s", e.Entity, e.Reason)
}

// TransactionError wraps a failure of the relational transaction itself.
// RolledBack is false when the rollback statement also failed or when a
// commit failed with an unknown outcome.
type TransactionError struct {
	Op         string
	Err        error
	RolledBack bool
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.Op, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// RollbackError wraps the error that aborted a listing together with the
// outcome of the compensating cleanup. Cleanup failure never replaces
// Original.
type RollbackError struct {
	Original           error
	DatabaseRolledBack bool
	ObjectsDeleted     int
	ObjectsTracked     int
	CleanupFailed      bool
	CleanupErr         error
}

func (e *RollbackError) Error() string {
	status := fmt.Sprintf("database rolled back: %t, objects deleted: %d/%d", e.DatabaseRolledBack, e.ObjectsDeleted, e.ObjectsTracked)
	if e.CleanupFailed {
		status += fmt.Sprintf(", cleanup failed: %v", e.CleanupErr)
	}
	return fmt.Sprintf("%v (%s)", e.Original, status)
}

func (e *RollbackError) Unwrap() error { return e.Original }

// RollbackStatus is the serializable part of a RollbackError.
type RollbackStatus struct {
	DatabaseRolledBack bool   `json:"databaseRolledBack"`
	ObjectsDeleted     int    `json:"objectsDeleted"`
	ObjectsTracked     int    `json:"objectsTracked"`
	CleanupFailed      bool   `json:"cleanupFailed"`
	CleanupError       string `json:"cleanupError,omitempty"`
}

// Status returns the rollback outcome for reporting.
func (e *RollbackError) Status() RollbackStatus {
	s := RollbackStatus{
		DatabaseRolledBack: e.DatabaseRolledBack,
		ObjectsDeleted:     e.ObjectsDeleted,
		ObjectsTracked:     e.ObjectsTracked,
		CleanupFailed:      e.CleanupFailed,
	}
	if e.CleanupErr != nil {
		s.CleanupError = e.CleanupErr.Error()
	}
	return s
}

// ErrorInfo is the structured form of any failure returned to a caller.
type ErrorInfo struct {
	Code       string          `json:"code"`
	Message    string          `json:"message"`
	Action     string          `json:"action,omitempty"`
	Detail     string          `json:"detail,omitempty"`
	File       string          `json:"file,omitempty"`
	Rows       []int           `json:"rows,omitempty"`
	Violations []Violation     `json:"violations,omitempty"`
	DurationMS int64           `json:"durationMs,omitempty"`
	Rollback   *RollbackStatus `json:"rollback,omitempty"`
}

// Describe builds an ErrorInfo for err. file and elapsed are optional
// context from the caller.
func Describe(err error, file string, elapsed time.Duration) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}

	msg := MapError(err)
	info := ErrorInfo{
		Code:       msg.Code,
		Message:    msg.Message,
		Action:     msg.Action,
		Detail:     err.Error(),
		File:       file,
		DurationMS: elapsed.Milliseconds(),
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		info.Violations = verr.Violations
		info.Rows = verr.Rows()
		if info.File == "" {
			info.File = verr.File
		}
	}

	var dup *DuplicateDetectedError
	if errors.As(err, &dup) && dup.Row > 0 {
		info.Rows = []int{dup.Row}
	}

	var ent *EntityResolutionError
	if errors.As(err, &ent) && ent.Row > 0 {
		info.Rows = []int{ent.Row}
	}

	var rb *RollbackError
	if errors.As(err, &rb) {
		status := rb.Status()
		info.Rollback = &status
	}

	return info
}
