package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"rowbridge/internal/backend"
	"rowbridge/internal/metrics"
	"rowbridge/internal/nameguard"
	"rowbridge/internal/rowcache"
)

// inChunkSize caps the number of values per IN (...) list so statements
// stay well clear of parameter limits.
const inChunkSize = 100

// PullOptions tunes a Pull.
type PullOptions struct {
	// Columns restricts the projection. Empty means all columns.
	Columns []string

	// Fresh bypasses the result cache for this read (the result still
	// populates the cache).
	Fresh bool

	// Progress, when set, is called with the running row count every
	// ProgressEvery rows while scanning. Only the embedded engine
	// supports this; on the others a warning is logged and the read
	// proceeds without callbacks.
	Progress      func(done int)
	ProgressEvery int
}

// Pull reads a whole table (optionally projected to named columns) and
// returns its rows. Results are cached per (table, sorted column set);
// a later Pull of the same projection is served from memory until a
// write to that table invalidates it.
//
// Edge cases:
//   - An invalid table or column name yields an empty result and no
//     error; nothing is interpolated into SQL.
//   - A table that does not exist yields an empty result and no error;
//     reads degrade to empty, only writes treat a missing table as
//     fatal.
//   - Loader failures are returned and never populate the cache.
func (d *DB) Pull(ctx context.Context, table string, opts PullOptions) ([]map[string]any, error) {
	start := time.Now()

	if bad, ok := validateNames(table, opts.Columns); !ok {
		d.log.Warnf("pull: rejected identifier %q, returning no rows", bad)
		return nil, nil
	}

	exists, err := d.hasTable(ctx, table)
	if err != nil {
		metrics.TrackOp(d.met, "pull", start, err)
		return nil, err
	}
	if !exists {
		d.log.Warnf("pull: table %q not found, returning no rows", table)
		return nil, nil
	}

	progress := opts.Progress
	if progress != nil && !d.profile.Progress {
		d.log.Warnf("pull: progress callbacks not supported on %s, reading without them", d.kind)
		progress = nil
	}
	every := opts.ProgressEvery
	if every <= 0 {
		every = 1000
	}
	if progress == nil {
		every = 0
	}

	load := func() ([]map[string]any, error) {
		return d.queryRows(ctx, selectSQL(d.profile, table, opts.Columns, ""), nil, progress, every)
	}

	var (
		out []map[string]any
		hit bool
	)
	if opts.Fresh || progress != nil {
		out, err = load()
		if err == nil {
			d.cache.Invalidate(table)
			d.cache.GetOrLoad(rowcache.NewKey(table, opts.Columns), func() ([]map[string]any, error) { return out, nil })
		}
	} else {
		out, hit, err = d.cache.GetOrLoad(rowcache.NewKey(table, opts.Columns), load)
	}

	metrics.TrackOp(d.met, "pull", start, err)
	if err != nil {
		return nil, err
	}

	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	d.met.IncCounter(metrics.CacheTotal, 1, metrics.Labels{"outcome": outcome})
	d.met.IncCounter(metrics.RowsTotal, float64(len(out)), metrics.Labels{"op": "pull"})
	d.log.InfoWith("pull complete", map[string]any{
		"table": table, "rows": len(out), "cached": hit,
		"duration": time.Since(start).String(),
	})
	return out, nil
}

// PullWhere reads rows matching a raw SQL condition ("age > 30 ORDER BY
// name"). The condition is trusted and passed through verbatim, so it
// must never contain untrusted input. Results are not cached.
func (d *DB) PullWhere(ctx context.Context, table, condition string, columns ...string) ([]map[string]any, error) {
	start := time.Now()

	if bad, ok := validateNames(table, columns); !ok {
		d.log.Warnf("pull_where: rejected identifier %q, returning no rows", bad)
		return nil, nil
	}

	q := selectSQL(d.profile, table, columns, condition)
	out, err := d.queryRows(ctx, q, nil, nil, 0)
	metrics.TrackOp(d.met, "pull_where", start, err)
	if err != nil {
		return nil, fmt.Errorf("pull_where %s: %w", table, err)
	}
	d.met.IncCounter(metrics.RowsTotal, float64(len(out)), metrics.Labels{"op": "pull_where"})
	return out, nil
}

// PullWhereIn reads rows whose idColumn matches any of values, issuing
// one statement per 100 values. Order of the returned rows follows
// statement order, not the input value order.
func (d *DB) PullWhereIn(ctx context.Context, table, idColumn string, values []any, columns ...string) ([]map[string]any, error) {
	start := time.Now()

	if bad, ok := validateNames(table, append([]string{idColumn}, columns...)); !ok {
		d.log.Warnf("pull_where_in: rejected identifier %q, returning no rows", bad)
		return nil, nil
	}
	if len(values) == 0 {
		return nil, nil
	}

	var out []map[string]any
	for from := 0; from < len(values); from += inChunkSize {
		to := from + inChunkSize
		if to > len(values) {
			to = len(values)
		}
		chunk := values[from:to]

		marks := make([]string, len(chunk))
		for i := range chunk {
			marks[i] = d.profile.Placeholder(i + 1)
		}
		cond := d.profile.QuoteIdent(idColumn) + " IN (" + strings.Join(marks, ", ") + ")"

		rows, err := d.queryRows(ctx, selectSQL(d.profile, table, columns, cond), chunk, nil, 0)
		if err != nil {
			metrics.TrackOp(d.met, "pull_where_in", start, err)
			return nil, fmt.Errorf("pull_where_in %s: %w", table, err)
		}
		out = append(out, rows...)
	}

	metrics.TrackOp(d.met, "pull_where_in", start, nil)
	d.met.IncCounter(metrics.RowsTotal, float64(len(out)), metrics.Labels{"op": "pull_where_in"})
	return out, nil
}

func validateNames(table string, columns []string) (string, bool) {
	if !nameguard.Validate(table) {
		return table, false
	}
	if bad, ok := nameguard.ValidateAll(columns...); !ok {
		return bad, false
	}
	return "", true
}

// selectSQL builds "SELECT <cols> FROM <table>[ WHERE <cond>]" with all
// identifiers quoted. Condition text is appended as given.
func selectSQL(p backend.Profile, table string, columns []string, condition string) string {
	cols := "*"
	if len(columns) > 0 {
		quoted := make([]string, len(columns))
		for i, c := range columns {
			quoted[i] = p.QuoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}
	q := "SELECT " + cols + " FROM " + p.QuoteIdent(table)
	if condition != "" {
		q += " WHERE " + condition
	}
	return q
}

func (d *DB) queryRows(ctx context.Context, query string, args []any, progress func(int), every int) ([]map[string]any, error) {
	var out []map[string]any
	err := d.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = scanRows(rows, progress, every)
		return err
	})
	return out, err
}

// scanRows drains a result set into row maps. TEXT columns scanned as
// []byte become string so callers see stable value types across
// drivers.
func scanRows(rows *sql.Rows, progress func(int), every int) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]any
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = vals[i]
			}
		}
		out = append(out, row)

		if progress != nil && every > 0 && len(out)%every == 0 {
			progress(len(out))
		}
	}
	return out, rows.Err()
}
