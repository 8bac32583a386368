// Package reconcile repairs rows against a table's declared schema before
// they are written.
//
// Incoming rows frequently disagree with the destination table: columns are
// missing or extra, numbers arrive as strings, timestamps arrive as foreign
// wrapper objects, floats arrive as NaN. Rather than aborting a batch,
// reconciliation rewrites each row into the exact column set of the schema
// with every value either left alone (when its type family is compatible
// with the declared column), coerced, or replaced with nil.
//
// Rows is idempotent: reconciling already-reconciled rows against the same
// schema returns them unchanged.
package reconcile

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rowbridge/internal/schema"
)

// timestamper matches foreign timestamp wrapper types (protobuf well-known
// types and similar generated API objects) that expose their value through
// an AsTime method.
type timestamper interface {
	AsTime() time.Time
}

// Rows reconciles every row against sch and returns the repaired rows.
// Input rows are not mutated; each output row contains exactly the schema's
// columns.
func Rows(rows []map[string]any, sch *schema.Schema) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	cols := sch.Columns()
	for _, row := range rows {
		out = append(out, one(row, sch, cols))
	}
	return out
}

func one(row map[string]any, sch *schema.Schema, cols []string) map[string]any {
	fixed := make(map[string]any, len(cols))
	for _, col := range cols {
		v, present := row[col]
		if !present {
			fixed[col] = defaultFor(sch.TypeOf(col))
			continue
		}
		fixed[col] = Value(v, sch.TypeOf(col))
	}
	// Columns not in the schema are dropped by construction.
	return fixed
}

// defaultFor fills a missing column: zero for numeric-family types, empty
// string for text-family types, nil otherwise.
func defaultFor(t schema.Type) any {
	switch t {
	case schema.Integer:
		return int64(0)
	case schema.Real:
		return float64(0)
	case schema.Text:
		return ""
	default:
		return nil
	}
}

// Value repairs a single value against a declared semantic type.
func Value(v any, declared schema.Type) any {
	if v == nil {
		return nil
	}

	// Foreign timestamp wrappers become native time.Time up front so the
	// family check below sees a value the drivers understand.
	if ts, ok := v.(timestamper); ok {
		v = ts.AsTime()
	}

	fam := familyOfValue(v)
	if schema.Compatible(declared.Family(), fam) {
		return scrubNaN(v)
	}

	switch declared.Family() {
	case schema.FamilyNumeric:
		return scrubNaN(coerceNumeric(v, declared))
	case schema.FamilyText:
		return stringify(v)
	default:
		return nil
	}
}

// familyOfValue is schema.OfValue plus the date-like string carve-out:
// a string in YYYY-MM-DD form is treated as time-family even though its
// native runtime type is text.
func familyOfValue(v any) schema.Family {
	if s, ok := v.(string); ok && IsDateLike(s) {
		return schema.FamilyTime
	}
	t, ok := schema.OfValue(v)
	if !ok {
		return schema.FamilyNone
	}
	return t.Family()
}

// IsDateLike reports whether s looks like a YYYY-MM-DD date: exactly ten
// characters with hyphens at positions 4 and 7 and digits elsewhere.
func IsDateLike(s string) bool {
	if len(s) != 10 || s[4] != '-' || s[7] != '-' {
		return false
	}
	for i, r := range s {
		if i == 4 || i == 7 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// coerceNumeric attempts a numeric parse; failure yields nil rather than an
// error so one malformed cell cannot abort a batch.
func coerceNumeric(v any, declared schema.Type) any {
	var f float64
	switch t := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case []byte:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return nil
	default:
		return nil
	}

	if declared == schema.Integer && f == math.Trunc(f) && !math.IsInf(f, 0) {
		return int64(f)
	}
	return f
}

func stringify(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(v)
	}
}

// scrubNaN replaces NaN floats with nil: NaN does not round-trip through
// most backend drivers.
func scrubNaN(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(t)) {
			return nil
		}
	}
	return v
}
