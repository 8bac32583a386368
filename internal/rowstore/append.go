package rowstore

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rowbridge/internal/backend"
	"rowbridge/internal/metrics"
	"rowbridge/internal/nameguard"
	"rowbridge/internal/reconcile"
	"rowbridge/internal/schema"
)

// AppendOptions tunes an Append.
type AppendOptions struct {
	// CreateIfMissing creates the table from the first row's value types
	// when it does not exist yet.
	CreateIfMissing bool

	// Safe renders values as SQL literals instead of bound parameters.
	// Slower, but works around bridge drivers that mishandle certain
	// bound types. Identifiers are validated either way.
	Safe bool

	// DedupeGuard skips rows whose key-column tuple already exists in
	// the table, and absorbs backend constraint rejections of
	// individual rows as skips instead of errors. Key-tuple filtering
	// requires key-column metadata; when none is available every row
	// is written.
	DedupeGuard bool

	// SkipReconcile writes rows as given, without schema alignment.
	// Rows must then match the table exactly.
	SkipReconcile bool

	// ChunkSize overrides the handle's rows-per-statement setting.
	ChunkSize int
}

// AppendResult reports what an Append did.
type AppendResult struct {
	Inserted int
	Skipped  int
}

// Append writes rows to a table in chunked INSERT statements.
//
// The pipeline: validate names, optionally create the table from the
// first row, reconcile rows against the declared schema, optionally
// drop rows whose key tuple already exists, then insert chunk by chunk.
// A chunk that fails is retried row by row to pin down the offending
// row, whose contents are reported in the returned error. With
// DedupeGuard set, a constraint violation on a row is absorbed: the
// row is skipped and counted instead of failing the append. Busy
// errors are retried under the handle's retry policy. On success the
// table's cached reads are invalidated.
func (d *DB) Append(ctx context.Context, table string, rows []map[string]any, opts AppendOptions) (AppendResult, error) {
	start := time.Now()
	res, err := d.append(ctx, table, rows, opts)
	metrics.TrackOp(d.met, "append", start, err)
	if err == nil {
		d.met.IncCounter(metrics.RowsTotal, float64(res.Inserted), metrics.Labels{"op": "append"})
		d.log.InfoWith("append complete", map[string]any{
			"table": table, "inserted": res.Inserted, "skipped": res.Skipped,
			"duration": time.Since(start).String(),
		})
	}
	return res, err
}

func (d *DB) append(ctx context.Context, table string, rows []map[string]any, opts AppendOptions) (AppendResult, error) {
	var res AppendResult

	if !nameguard.Validate(table) {
		return res, newError(KindInvalidName, "append", "table %q", table)
	}
	if len(rows) == 0 {
		return res, nil
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	exists, err := d.hasTable(ctx, table)
	if err != nil {
		return res, err
	}
	if !exists {
		if !opts.CreateIfMissing {
			return res, newError(KindMissingTable, "append", "table %q", table)
		}
		if err := d.createFromRow(ctx, table, rows[0]); err != nil {
			return res, err
		}
	}

	sch, err := d.intro.columns(ctx, table)
	if err != nil {
		return res, err
	}
	if bad, ok := nameguard.ValidateAll(sch.Columns()...); !ok {
		return res, newError(KindInvalidName, "append", "column %q", bad)
	}

	if !opts.SkipReconcile {
		rows = reconcile.Rows(rows, sch)
	}

	if opts.DedupeGuard {
		rows, res.Skipped, err = d.dropExisting(ctx, table, rows)
		if err != nil {
			return res, err
		}
		if len(rows) == 0 {
			return res, nil
		}
	}

	cols := sch.Columns()
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = d.chunkSize
	}
	chunk = effectiveChunkSize(d.profile, len(cols), chunk)

	for from := 0; from < len(rows); from += chunk {
		to := from + chunk
		if to > len(rows) {
			to = len(rows)
		}
		n, skipped, err := d.insertChunk(ctx, table, cols, rows[from:to], opts.Safe, opts.DedupeGuard)
		res.Inserted += n
		res.Skipped += skipped
		if err != nil {
			return res, err
		}
	}

	d.cache.Invalidate(table)
	return res, nil
}

// effectiveChunkSize shrinks the requested chunk so a multi-row insert
// never exceeds the engine's bound-parameter cap. Engines that cannot
// batch at all insert one row per statement.
func effectiveChunkSize(p backend.Profile, columns, requested int) int {
	if !p.BatchParams || columns == 0 {
		return 1
	}
	if p.MaxParams > 0 {
		if byParams := p.MaxParams / columns; byParams < requested {
			requested = byParams
		}
	}
	if requested < 1 {
		return 1
	}
	return requested
}

// createFromRow infers a schema from one row's value types and creates
// the table.
func (d *DB) createFromRow(ctx context.Context, table string, row map[string]any) error {
	sch, err := schema.InferFromRow(row)
	if err != nil {
		return &Error{Kind: KindUnmappedType, Op: "append", Cause: err}
	}
	return d.CreateTable(ctx, table, sch, false)
}

// dropExisting filters out rows whose key tuple is already present,
// comparing against a fresh read of the key columns. With no key
// metadata there is nothing safe to compare on, so all rows pass.
func (d *DB) dropExisting(ctx context.Context, table string, rows []map[string]any) ([]map[string]any, int, error) {
	keys, err := d.KeyColumns(ctx, table)
	if err != nil {
		return nil, 0, err
	}
	if len(keys) == 0 {
		d.log.Warnf("append: no key columns known for %s, duplicate filtering skipped", table)
		return rows, 0, nil
	}

	existing, err := d.queryRows(ctx, selectSQL(d.profile, table, keys, ""), nil, nil, 0)
	if err != nil {
		return nil, 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		seen[keyTuple(row, keys)] = struct{}{}
	}

	kept := rows[:0:0]
	skipped := 0
	for _, row := range rows {
		t := keyTuple(row, keys)
		if _, dup := seen[t]; dup {
			skipped++
			continue
		}
		seen[t] = struct{}{}
		kept = append(kept, row)
	}
	return kept, skipped, nil
}

// keyTuple encodes a row's key-column values into one comparable string.
func keyTuple(row map[string]any, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(row[k])
	}
	return strings.Join(parts, "\x00")
}

// insertChunk writes one chunk in a transaction. A chunk failure falls
// back to row-by-row isolation so the offending row can be identified
// and reported with its contents. A constraint violation on a row is
// only absorbed as a skip when the caller asked for duplicate
// filtering; every other row failure is returned.
func (d *DB) insertChunk(ctx context.Context, table string, cols []string, rows []map[string]any, safe, dedupe bool) (inserted, skipped int, err error) {
	query, args := d.buildInsert(table, cols, rows, safe)

	execErr := d.execRetry(ctx, "append", query, args...)
	if execErr == nil {
		return len(rows), 0, nil
	}
	if d.driver.Busy(execErr) {
		return 0, 0, wrapError(KindBusy, "append", execErr)
	}
	if len(rows) == 1 {
		if d.driver.Constraint(execErr) && dedupe {
			d.log.ErrorWith("append: duplicate row skipped", execErr, map[string]any{"table": table, "row": rows[0]})
			return 0, 1, nil
		}
		return 0, 0, d.rowError(table, rows[0], execErr)
	}

	// Re-run row by row to isolate the offending rows.
	d.log.Warnf("append: chunk of %d rejected (%v), isolating row by row", len(rows), execErr)
	for _, row := range rows {
		q, a := d.buildInsert(table, cols, []map[string]any{row}, safe)
		rowErr := d.execRetry(ctx, "append", q, a...)
		if rowErr == nil {
			inserted++
			continue
		}
		if d.driver.Busy(rowErr) {
			return inserted, skipped, wrapError(KindBusy, "append", rowErr)
		}
		if d.driver.Constraint(rowErr) && dedupe {
			d.log.ErrorWith("append: duplicate row skipped", rowErr, map[string]any{"table": table, "row": row})
			skipped++
			continue
		}
		return inserted, skipped, d.rowError(table, row, rowErr)
	}
	return inserted, skipped, nil
}

// rowError reports one rejected row, surfacing its contents for
// diagnosis.
func (d *DB) rowError(table string, row map[string]any, cause error) error {
	d.log.ErrorWith("append: row rejected", cause, map[string]any{"table": table, "row": row})
	if d.driver.Constraint(cause) {
		return &Error{Kind: KindConstraint, Op: "append", Message: fmt.Sprintf("table %s, row %v", table, row), Cause: cause}
	}
	return fmt.Errorf("append %s: row %v: %w", table, row, cause)
}

// buildInsert renders a multi-row INSERT. In the parameterized fast
// path values are bound; in safe mode they are rendered as literals
// (identifiers are validated upstream in both modes).
func (d *DB) buildInsert(table string, cols []string, rows []map[string]any, safe bool) (string, []any) {
	p := d.profile

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(p.QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.QuoteIdent(c))
	}
	b.WriteString(") VALUES ")

	var args []any
	if !safe {
		args = make([]any, 0, len(rows)*len(cols))
	}

	idx := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j, c := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			v := bindValue(row[c], d.kind)
			if safe {
				b.WriteString(literal(v, d.kind))
			} else {
				b.WriteString(p.Placeholder(idx))
				args = append(args, v)
				idx++
			}
		}
		b.WriteString(")")
	}
	return b.String(), args
}

// bindValue adapts a reconciled value for the wire. The embedded engine
// stores timestamps as RFC3339Nano text so they round-trip through the
// driver without affinity surprises.
func bindValue(v any, kind backend.Kind) any {
	if t, ok := v.(time.Time); ok && kind == backend.SQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// literal renders one value as an inline SQL literal for safe mode.
func literal(v any, kind backend.Kind) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "1"
		}
		return "0"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "NULL"
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		if kind == backend.Access {
			return "#" + x.Format("2006-01-02 15:04:05") + "#"
		}
		return "'" + x.UTC().Format("2006-01-02 15:04:05") + "'"
	case []byte:
		return quoteLiteral(string(x))
	case string:
		return quoteLiteral(x)
	default:
		return quoteLiteral(fmt.Sprint(x))
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
