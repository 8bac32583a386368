// Package schema defines the engine-agnostic column type model shared by the
// introspection, reconciliation, and write paths.
//
// A column's stored type is reduced to one of a small set of semantic tags
// (integer, real, text, timestamp, unspecified). Native declared types differ
// wildly between backends ("INT IDENTITY", "varchar(255)", "DATETIME2", ...);
// everything above the driver layer works in terms of the semantic tag and a
// coarser type family (numeric, text, time) that decides whether two
// differently-named native types are interchangeable.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Type is a semantic column type tag.
type Type string

const (
	Integer     Type = "integer"
	Real        Type = "real"
	Text        Type = "text"
	Timestamp   Type = "timestamp"
	Unspecified Type = "unspecified"
)

// Family is the coarse grouping used for type-equivalence decisions.
type Family int

const (
	FamilyNone Family = iota
	FamilyNumeric
	FamilyText
	FamilyTime
)

func (f Family) String() string {
	switch f {
	case FamilyNumeric:
		return "numeric"
	case FamilyText:
		return "text"
	case FamilyTime:
		return "time"
	default:
		return "none"
	}
}

// Family returns the coarse family for a semantic tag.
func (t Type) Family() Family {
	switch t {
	case Integer, Real:
		return FamilyNumeric
	case Text:
		return FamilyText
	case Timestamp:
		return FamilyTime
	default:
		return FamilyNone
	}
}

// Compatible reports whether a value of family got can be stored unchanged in
// a column of family want.
//
// Rules:
//   - Same family is always compatible.
//   - Time and text are mutually compatible: many backends store timestamps
//     as formatted text, so a textual timestamp must not be rewritten.
//   - FamilyNone (unspecified columns) accepts anything.
func Compatible(want, got Family) bool {
	if want == FamilyNone || got == FamilyNone {
		return true
	}
	if want == got {
		return true
	}
	if (want == FamilyTime && got == FamilyText) || (want == FamilyText && got == FamilyTime) {
		return true
	}
	return false
}

// FromDecl maps a native declared column type (as reported by a backend's
// catalog) to a semantic tag. Matching is keyword-based and case-insensitive
// so that "INT IDENTITY", "bigint", "NUMBER(10)" and friends all land in the
// right bucket.
func FromDecl(decl string) Type {
	d := strings.ToLower(strings.TrimSpace(decl))
	switch {
	case d == "":
		return Unspecified
	case strings.Contains(d, "int") || strings.Contains(d, "bool") || strings.Contains(d, "bit") || strings.Contains(d, "serial") || strings.Contains(d, "byte") || strings.Contains(d, "counter"):
		return Integer
	case strings.Contains(d, "real") || strings.Contains(d, "floa") || strings.Contains(d, "doub") || strings.Contains(d, "dec") || strings.Contains(d, "numeric") || strings.Contains(d, "money") || strings.Contains(d, "number"):
		return Real
	case strings.Contains(d, "date") || strings.Contains(d, "time"):
		return Timestamp
	case strings.Contains(d, "char") || strings.Contains(d, "text") || strings.Contains(d, "clob") || strings.Contains(d, "string") || strings.Contains(d, "memo"):
		return Text
	default:
		return Unspecified
	}
}

// OfValue infers the semantic tag of a Go runtime value.
//
// The second return is false for values no backend mapping exists for
// (slices, structs, maps, ...); callers creating tables from sampled rows
// must surface those so the mapping can be extended.
func OfValue(v any) (Type, bool) {
	switch v.(type) {
	case nil:
		return Unspecified, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, bool:
		return Integer, true
	case float32, float64:
		return Real, true
	case string, []byte:
		return Text, true
	case time.Time:
		return Timestamp, true
	default:
		return Unspecified, false
	}
}

// Schema is an ordered mapping of column name to semantic type.
//
// Column order matters for SQL synthesis (projection and VALUES lists must
// line up), so Schema preserves the order columns were added in.
type Schema struct {
	names []string
	types map[string]Type
}

func New() *Schema {
	return &Schema{types: map[string]Type{}}
}

// Add appends a column. Re-adding an existing column overwrites its type
// without changing its position.
func (s *Schema) Add(name string, t Type) *Schema {
	if _, ok := s.types[name]; !ok {
		s.names = append(s.names, name)
	}
	s.types[name] = t
	return s
}

func (s *Schema) Has(name string) bool {
	_, ok := s.types[name]
	return ok
}

// TypeOf returns Unspecified for unknown columns.
func (s *Schema) TypeOf(name string) Type {
	if t, ok := s.types[name]; ok {
		return t
	}
	return Unspecified
}

// Columns returns the column names in declaration order. The returned slice
// is a copy.
func (s *Schema) Columns() []string {
	return append([]string(nil), s.names...)
}

func (s *Schema) Len() int { return len(s.names) }

// InferFromRow builds a schema from a single row's native value types,
// used when auto-creating a table from the first row of an append.
//
// Map iteration order is random, so columns are sorted by name to keep the
// generated DDL deterministic. Values whose Go type has no semantic mapping
// make inference fail; the error names every offending type so the mapping
// table can be extended.
func InferFromRow(row map[string]any) (*Schema, error) {
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	var unmapped []string
	s := New()
	for _, name := range names {
		t, ok := OfValue(row[name])
		if !ok {
			unmapped = append(unmapped, fmt.Sprintf("%s (%T)", name, row[name]))
			continue
		}
		s.Add(name, t)
	}
	if len(unmapped) > 0 {
		return nil, fmt.Errorf("schema: no type mapping for column(s): %s", strings.Join(unmapped, ", "))
	}
	return s, nil
}
