package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rowbridge/internal/metrics"
	"rowbridge/internal/nameguard"
	"rowbridge/internal/schema"
)

// CreateTable creates a table from a semantic schema, mapping each
// column's tag to the engine's native type. With overwrite set an
// existing table of the same name is dropped first.
//
// Errors:
//   - KindInvalidName for a bad table or column name.
//   - KindUnmappedType listing every column whose tag has no native
//     mapping on this engine; nothing is created in that case.
func (d *DB) CreateTable(ctx context.Context, table string, sch *schema.Schema, overwrite bool) error {
	start := time.Now()
	err := d.createTable(ctx, table, sch, overwrite)
	metrics.TrackOp(d.met, "create_table", start, err)
	return err
}

func (d *DB) createTable(ctx context.Context, table string, sch *schema.Schema, overwrite bool) error {
	if !nameguard.Validate(table) {
		return newError(KindInvalidName, "create_table", "table %q", table)
	}
	if bad, ok := nameguard.ValidateAll(sch.Columns()...); !ok {
		return newError(KindInvalidName, "create_table", "column %q", bad)
	}
	if sch.Len() == 0 {
		return newError(KindUnknown, "create_table", "no columns for %q", table)
	}

	var unmapped []string
	parts := make([]string, 0, sch.Len())
	for _, c := range sch.Columns() {
		nt, ok := d.profile.NativeType(sch.TypeOf(c))
		if !ok {
			unmapped = append(unmapped, fmt.Sprintf("%s (%s)", c, sch.TypeOf(c)))
			continue
		}
		parts = append(parts, d.profile.QuoteIdent(c)+" "+nt)
	}
	if len(unmapped) > 0 {
		return newError(KindUnmappedType, "create_table", "columns without a native type: %s", strings.Join(unmapped, ", "))
	}

	if overwrite {
		if exists, err := d.hasTable(ctx, table); err != nil {
			return err
		} else if exists {
			if err := d.DropTable(ctx, table); err != nil {
				return err
			}
		}
	}

	q := "CREATE TABLE " + d.profile.QuoteIdent(table) + " (" + strings.Join(parts, ", ") + ")"
	if err := d.execRetry(ctx, "create_table", q); err != nil {
		return d.classifyExec("create_table", err)
	}

	d.intro.invalidate(table)
	d.log.InfoWith("table created", map[string]any{"table": table, "columns": sch.Len()})
	return nil
}

// DropTable removes a table and forgets everything cached about it.
func (d *DB) DropTable(ctx context.Context, table string) error {
	start := time.Now()
	err := d.dropTable(ctx, table)
	metrics.TrackOp(d.met, "drop_table", start, err)
	return err
}

func (d *DB) dropTable(ctx context.Context, table string) error {
	if !nameguard.Validate(table) {
		return newError(KindInvalidName, "drop_table", "table %q", table)
	}
	if err := d.execRetry(ctx, "drop_table", "DROP TABLE "+d.profile.QuoteIdent(table)); err != nil {
		return d.classifyExec("drop_table", err)
	}
	d.cache.Invalidate(table)
	d.intro.invalidate(table)
	d.log.InfoWith("table dropped", map[string]any{"table": table})
	return nil
}

// AddColumn appends a column of the given semantic type to a table.
func (d *DB) AddColumn(ctx context.Context, table, column string, t schema.Type) error {
	if bad, ok := validateNames(table, []string{column}); !ok {
		return newError(KindInvalidName, "add_column", "%q", bad)
	}
	nt, ok := d.profile.NativeType(t)
	if !ok {
		return newError(KindUnmappedType, "add_column", "%s (%s)", column, t)
	}

	q := "ALTER TABLE " + d.profile.QuoteIdent(table) + " ADD COLUMN " + d.profile.QuoteIdent(column) + " " + nt
	if err := d.execRetry(ctx, "add_column", q); err != nil {
		return d.classifyExec("add_column", err)
	}
	d.cache.Invalidate(table)
	d.intro.invalidate(table)
	return nil
}

// DropColumn removes a column from a table.
func (d *DB) DropColumn(ctx context.Context, table, column string) error {
	if bad, ok := validateNames(table, []string{column}); !ok {
		return newError(KindInvalidName, "drop_column", "%q", bad)
	}
	q := "ALTER TABLE " + d.profile.QuoteIdent(table) + " DROP COLUMN " + d.profile.QuoteIdent(column)
	if err := d.execRetry(ctx, "drop_column", q); err != nil {
		return d.classifyExec("drop_column", err)
	}
	d.cache.Invalidate(table)
	d.intro.invalidate(table)
	return nil
}

// CreateIndex creates a single-column index named idx_<table>_<column>.
// Only engines whose profile allows index DDL through this layer.
func (d *DB) CreateIndex(ctx context.Context, table, column string) error {
	if !d.profile.IndexDDL {
		return newError(KindUnsupported, "create_index", "not available on %s", d.kind)
	}
	if bad, ok := validateNames(table, []string{column}); !ok {
		return newError(KindInvalidName, "create_index", "%q", bad)
	}

	name := "idx_" + nameguard.CleanColumn(table) + "_" + nameguard.CleanColumn(column)
	q := "CREATE INDEX " + d.profile.QuoteIdent(name) +
		" ON " + d.profile.QuoteIdent(table) + " (" + d.profile.QuoteIdent(column) + ")"
	if err := d.execRetry(ctx, "create_index", q); err != nil {
		return d.classifyExec("create_index", err)
	}
	return nil
}

// Update sets updateColumn for every row whose matchColumn equals the
// paired match value. matchValues and updateValues run in lockstep; a
// single update value is broadcast across all match values. All pairs
// apply in one transaction.
func (d *DB) Update(ctx context.Context, table, matchColumn string, matchValues []any, updateColumn string, updateValues []any) error {
	start := time.Now()
	err := d.update(ctx, table, matchColumn, matchValues, updateColumn, updateValues)
	metrics.TrackOp(d.met, "update", start, err)
	return err
}

func (d *DB) update(ctx context.Context, table, matchColumn string, matchValues []any, updateColumn string, updateValues []any) error {
	if bad, ok := validateNames(table, []string{matchColumn, updateColumn}); !ok {
		return newError(KindInvalidName, "update", "%q", bad)
	}
	if len(matchValues) == 0 {
		return nil
	}
	if len(updateValues) == 1 && len(matchValues) > 1 {
		broadcast := make([]any, len(matchValues))
		for i := range broadcast {
			broadcast[i] = updateValues[0]
		}
		updateValues = broadcast
	}
	if len(updateValues) != len(matchValues) {
		return newError(KindUnknown, "update", "%d match values vs %d update values", len(matchValues), len(updateValues))
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	q := "UPDATE " + d.profile.QuoteIdent(table) +
		" SET " + d.profile.QuoteIdent(updateColumn) + " = " + d.profile.Placeholder(1) +
		" WHERE " + d.profile.QuoteIdent(matchColumn) + " = " + d.profile.Placeholder(2)

	err := d.retry.run(d.driver.Busy, func(attempt int) {
		d.met.IncCounter(metrics.RetriesTotal, 1, metrics.Labels{"op": "update"})
		d.log.Warnf("update: database busy, retrying (attempt %d)", attempt)
	}, func() error {
		return d.withTx(ctx, func(tx *sql.Tx) error {
			for i := range matchValues {
				if _, err := tx.ExecContext(ctx, q, bindValue(updateValues[i], d.kind), bindValue(matchValues[i], d.kind)); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return d.classifyExec("update", err)
	}

	d.cache.Invalidate(table)
	return nil
}

// CopyTable copies a table out of src into this database under newName,
// creating it from src's declared schema. columnCase is "", "lower" or
// "upper" and renames columns on the way over, which smooths moves
// between engines with different naming conventions.
func (d *DB) CopyTable(ctx context.Context, src *DB, table, newName, columnCase string) error {
	start := time.Now()
	err := d.copyTable(ctx, src, table, newName, columnCase)
	metrics.TrackOp(d.met, "copy_table", start, err)
	return err
}

func (d *DB) copyTable(ctx context.Context, src *DB, table, newName, columnCase string) error {
	if !nameguard.Validate(table) || !nameguard.Validate(newName) {
		return newError(KindInvalidName, "copy_table", "%q -> %q", table, newName)
	}

	srcSchema, err := src.Columns(ctx, table)
	if err != nil {
		return err
	}
	rows, err := src.Pull(ctx, table, PullOptions{Fresh: true})
	if err != nil {
		return err
	}

	rename := func(c string) string {
		switch columnCase {
		case "lower":
			return strings.ToLower(c)
		case "upper":
			return strings.ToUpper(c)
		default:
			return c
		}
	}

	dstSchema := schema.New()
	for _, c := range srcSchema.Columns() {
		dstSchema.Add(rename(c), srcSchema.TypeOf(c))
	}
	if err := d.CreateTable(ctx, newName, dstSchema, false); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		r := make(map[string]any, len(row))
		for c, v := range row {
			r[rename(c)] = v
		}
		out[i] = r
	}

	_, err = d.Append(ctx, newName, out, AppendOptions{})
	return err
}
