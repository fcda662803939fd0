package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestToPgText(t *testing.T) {
	tests := []struct {
		input string
		valid bool
		want  string
	}{
		{"hello", true, "hello"},
		{"  padded  ", true, "padded"},
		{"", false, ""},
		{"   ", false, ""},
	}

	for _, tt := range tests {
		got := toPgText(tt.input)
		if got.Valid != tt.valid {
			t.Errorf("toPgText(%q).Valid = %v, want %v", tt.input, got.Valid, tt.valid)
		}
		if got.Valid && got.String != tt.want {
			t.Errorf("toPgText(%q).String = %q, want %q", tt.input, got.String, tt.want)
		}
	}
}

func TestToPgNumeric(t *testing.T) {
	tests := []struct {
		input *float64
		valid bool
		want  float64
	}{
		{ptr(19.99), true, 19.99},
		{ptr[float64](-5), true, -5},
		{ptr[float64](0), true, 0},
		{nil, false, 0},
	}

	for _, tt := range tests {
		got := toPgNumeric(tt.input)
		if got.Valid != tt.valid {
			t.Errorf("toPgNumeric(%v).Valid = %v, want %v", tt.input, got.Valid, tt.valid)
			continue
		}
		if !got.Valid {
			continue
		}
		f, err := got.Float64Value()
		if err != nil {
			t.Fatalf("Float64Value() error = %v", err)
		}
		if f.Float64 != tt.want {
			t.Errorf("toPgNumeric(%v) = %v, want %v", *tt.input, f.Float64, tt.want)
		}
	}
}

func TestToPgInt4(t *testing.T) {
	if got := toPgInt4(nil); got.Valid {
		t.Error("toPgInt4(nil) should be NULL")
	}
	if got := toPgInt4(ptr(0)); !got.Valid || got.Int32 != 0 {
		t.Errorf("toPgInt4(0) = %+v, want valid 0", got)
	}
	if got := toPgInt4Value(0); got.Valid {
		t.Error("toPgInt4Value(0) should be NULL")
	}
	if got := toPgInt4Value(640); !got.Valid || got.Int32 != 640 {
		t.Errorf("toPgInt4Value(640) = %+v", got)
	}
}

func TestToPgTimestamptz(t *testing.T) {
	if toPgTimestamptz(nil).Valid {
		t.Error("nil time should be NULL")
	}
	zero := time.Time{}
	if toPgTimestamptz(&zero).Valid {
		t.Error("zero time should be NULL")
	}
	now := time.Now()
	if got := toPgTimestamptz(&now); !got.Valid || !got.Time.Equal(now) {
		t.Errorf("toPgTimestamptz(now) = %+v", got)
	}
}

func TestToPgUUID(t *testing.T) {
	id := uuid.New()

	if got := toPgUUID(id); !got.Valid || pgUUIDToString(got) != id.String() {
		t.Errorf("toPgUUID round trip = %q, want %q", pgUUIDToString(got), id.String())
	}
	if toPgUUID(uuid.Nil).Valid {
		t.Error("uuid.Nil should be NULL")
	}
	if toPgUUIDPtr(nil).Valid {
		t.Error("nil pointer should be NULL")
	}
	if got := pgUUIDToString(toPgUUIDPtr(nil)); got != "" {
		t.Errorf("pgUUIDToString(NULL) = %q, want empty", got)
	}
}

func TestParseIsoLevel(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"", false},
		{"read_committed", false},
		{"REPEATABLE_READ", false},
		{" serializable ", false},
		{"snapshot", true},
	}
	for _, tt := range tests {
		_, err := ParseIsoLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseIsoLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}

func ptr[T any](v T) *T { return &v }
