package reconcile

import (
	"math"
	"reflect"
	"testing"
	"time"

	"rowbridge/internal/schema"
)

func sensorSchema() *schema.Schema {
	return schema.New().
		Add("id", schema.Integer).
		Add("reading", schema.Real).
		Add("label", schema.Text).
		Add("taken_at", schema.Timestamp)
}

func TestRows_FillsMissingAndDropsUnknown(t *testing.T) {
	t.Parallel()

	in := []map[string]any{
		{"id": int64(1), "bogus": "goes away"},
	}
	out := Rows(in, sensorSchema())
	if len(out) != 1 {
		t.Fatalf("expected 1 row, got %d", len(out))
	}
	row := out[0]
	if _, ok := row["bogus"]; ok {
		t.Fatalf("unknown column survived reconciliation")
	}
	if row["reading"] != float64(0) {
		t.Fatalf("missing real column should default to 0, got %#v", row["reading"])
	}
	if row["label"] != "" {
		t.Fatalf("missing text column should default to empty string, got %#v", row["label"])
	}
	if row["taken_at"] != nil {
		t.Fatalf("missing timestamp column should default to nil, got %#v", row["taken_at"])
	}
}

func TestRows_CoercesMismatchedFamilies(t *testing.T) {
	t.Parallel()

	in := []map[string]any{{
		"id":       " 7 ",        // string into integer: trimmed numeric parse
		"reading":  "12.25",      // string into real
		"label":    int64(99),    // int into text: stringified
		"taken_at": "2024-06-01", // date-like string is time-family: untouched
	}}
	out := Rows(in, sensorSchema())
	row := out[0]

	if row["id"] != int64(7) {
		t.Fatalf("id = %#v, want int64(7)", row["id"])
	}
	if row["reading"] != float64(12.25) {
		t.Fatalf("reading = %#v, want 12.25", row["reading"])
	}
	if row["label"] != "99" {
		t.Fatalf("label = %#v, want \"99\"", row["label"])
	}
	if row["taken_at"] != "2024-06-01" {
		t.Fatalf("taken_at = %#v, want untouched date string", row["taken_at"])
	}
}

func TestRows_UnparseableNumericBecomesNil(t *testing.T) {
	t.Parallel()

	out := Rows([]map[string]any{{"id": "not a number"}}, sensorSchema())
	if out[0]["id"] != nil {
		t.Fatalf("unparseable numeric should become nil, got %#v", out[0]["id"])
	}
}

func TestRows_NaNBecomesNil(t *testing.T) {
	t.Parallel()

	out := Rows([]map[string]any{{"reading": math.NaN()}}, sensorSchema())
	if out[0]["reading"] != nil {
		t.Fatalf("NaN should become nil, got %#v", out[0]["reading"])
	}
}

type fakeTimestamp struct{ t time.Time }

func (f fakeTimestamp) AsTime() time.Time { return f.t }

func TestRows_ForeignTimestampConverted(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	out := Rows([]map[string]any{{"taken_at": fakeTimestamp{when}}}, sensorSchema())
	got, ok := out[0]["taken_at"].(time.Time)
	if !ok || !got.Equal(when) {
		t.Fatalf("foreign timestamp not converted: %#v", out[0]["taken_at"])
	}
}

func TestRows_Idempotent(t *testing.T) {
	t.Parallel()

	sch := sensorSchema()
	in := []map[string]any{
		{"id": "3", "reading": math.NaN(), "label": 5, "extra": true},
		{"id": int64(4), "reading": 2.5, "label": "ok", "taken_at": "2023-01-31"},
		{},
	}
	once := Rows(in, sch)
	twice := Rows(once, sch)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("reconcile not idempotent:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}

func TestIsDateLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{"2024-01-31", true},
		{"1999-12-01", true},
		{"2024-1-31", false},
		{"2024/01/31", false},
		{"2024-01-31T00:00", false},
		{"abcd-ef-gh", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsDateLike(tt.in); got != tt.want {
			t.Errorf("IsDateLike(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValue_TimeIntoTextLeftAlone(t *testing.T) {
	t.Parallel()

	when := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	if got := Value(when, schema.Text); got != any(when) {
		t.Fatalf("time into text-family column should pass through, got %#v", got)
	}
}

func TestValue_IntoUnspecifiedPassesThrough(t *testing.T) {
	t.Parallel()

	if got := Value("anything", schema.Unspecified); got != "anything" {
		t.Fatalf("unspecified column should accept value unchanged, got %#v", got)
	}
}
