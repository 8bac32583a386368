package schema

import (
	"strings"
	"testing"
	"time"
)

func TestFromDecl_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		decl string
		want Type
	}{
		{"INTEGER", Integer},
		{"int identity", Integer},
		{"bigint", Integer},
		{"BIT", Integer},
		{"bool", Integer},
		{"REAL", Real},
		{"double precision", Real},
		{"FLOAT", Real},
		{"decimal(10,2)", Real},
		{"money", Real},
		{"TEXT", Text},
		{"varchar(255)", Text},
		{"nchar(10)", Text},
		{"memo", Text},
		{"DATETIME", Timestamp},
		{"datetime2", Timestamp},
		{"TIMESTAMP", Timestamp},
		{"date", Timestamp},
		{"", Unspecified},
		{"blob", Unspecified},
	}
	for _, tt := range tests {
		if got := FromDecl(tt.decl); got != tt.want {
			t.Errorf("FromDecl(%q) = %s, want %s", tt.decl, got, tt.want)
		}
	}
}

func TestOfValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   any
		want Type
		ok   bool
	}{
		{"nil", nil, Unspecified, true},
		{"int", 42, Integer, true},
		{"int64", int64(42), Integer, true},
		{"uint8", uint8(1), Integer, true},
		{"bool", true, Integer, true},
		{"float64", 1.5, Real, true},
		{"string", "x", Text, true},
		{"bytes", []byte("x"), Text, true},
		{"time", time.Now(), Timestamp, true},
		{"slice", []int{1}, Unspecified, false},
		{"map", map[string]int{}, Unspecified, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := OfValue(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Fatalf("OfValue(%v) = (%s, %v), want (%s, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want Family
		got  Family
		ok   bool
	}{
		{"numeric_numeric", FamilyNumeric, FamilyNumeric, true},
		{"text_text", FamilyText, FamilyText, true},
		{"time_time", FamilyTime, FamilyTime, true},
		{"time_text_carveout", FamilyTime, FamilyText, true},
		{"text_time_carveout", FamilyText, FamilyTime, true},
		{"numeric_text", FamilyNumeric, FamilyText, false},
		{"text_numeric", FamilyText, FamilyNumeric, false},
		{"time_numeric", FamilyTime, FamilyNumeric, false},
		{"none_accepts_all", FamilyNone, FamilyNumeric, true},
		{"anything_into_none", FamilyNumeric, FamilyNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Compatible(tt.want, tt.got); got != tt.ok {
				t.Fatalf("Compatible(%s, %s) = %v, want %v", tt.want, tt.got, got, tt.ok)
			}
		})
	}
}

func TestSchema_OrderAndLookup(t *testing.T) {
	t.Parallel()

	s := New().Add("b", Integer).Add("a", Text).Add("c", Real)
	cols := s.Columns()
	if len(cols) != 3 || cols[0] != "b" || cols[1] != "a" || cols[2] != "c" {
		t.Fatalf("unexpected column order: %v", cols)
	}
	if s.TypeOf("a") != Text || s.TypeOf("missing") != Unspecified {
		t.Fatalf("TypeOf lookup broken")
	}

	// Re-adding keeps position, updates type.
	s.Add("b", Real)
	if s.Columns()[0] != "b" || s.TypeOf("b") != Real {
		t.Fatalf("re-add changed ordering or lost type")
	}
}

func TestInferFromRow_SortedAndTyped(t *testing.T) {
	t.Parallel()

	s, err := InferFromRow(map[string]any{
		"name":  "widget",
		"count": int64(3),
		"price": 1.25,
		"added": time.Now(),
	})
	if err != nil {
		t.Fatalf("InferFromRow: %v", err)
	}
	cols := s.Columns()
	want := []string{"added", "count", "name", "price"}
	for i, c := range want {
		if cols[i] != c {
			t.Fatalf("columns not sorted: got %v", cols)
		}
	}
	if s.TypeOf("count") != Integer || s.TypeOf("price") != Real || s.TypeOf("name") != Text || s.TypeOf("added") != Timestamp {
		t.Fatalf("unexpected inferred types")
	}
}

func TestInferFromRow_ReportsUnmappedTypes(t *testing.T) {
	t.Parallel()

	_, err := InferFromRow(map[string]any{
		"good": 1,
		"bad":  []string{"nope"},
	})
	if err == nil {
		t.Fatalf("expected error for unmapped type")
	}
	if !strings.Contains(err.Error(), "bad") || !strings.Contains(err.Error(), "[]string") {
		t.Fatalf("error should name the offending column and type: %v", err)
	}
}
