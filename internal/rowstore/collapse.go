package rowstore

import (
	"context"
	"strings"
	"time"

	"rowbridge/internal/metrics"
	"rowbridge/internal/nameguard"
)

// Collapse removes duplicate rows from a table, keeping one row per
// distinct tuple of groupColumns (all columns when none are given). The
// surviving row is the most recently appended one of each group.
//
// On the embedded engine this is a single server-side DELETE keyed on
// the rowid pragma. Engines without stable rowids fall back to reading
// the table, collapsing in memory, and rewriting it inside one
// transaction. Returns the number of rows removed.
func (d *DB) Collapse(ctx context.Context, table string, groupColumns ...string) (int, error) {
	start := time.Now()
	removed, err := d.collapse(ctx, table, groupColumns)
	metrics.TrackOp(d.met, "collapse", start, err)
	if err == nil {
		d.log.InfoWith("collapse complete", map[string]any{"table": table, "removed": removed})
	}
	return removed, err
}

func (d *DB) collapse(ctx context.Context, table string, groupColumns []string) (int, error) {
	if !nameguard.Validate(table) {
		return 0, newError(KindInvalidName, "collapse", "table %q", table)
	}
	if bad, ok := nameguard.ValidateAll(groupColumns...); !ok {
		return 0, newError(KindInvalidName, "collapse", "column %q", bad)
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	sch, err := d.intro.columns(ctx, table)
	if err != nil {
		return 0, err
	}
	if len(groupColumns) == 0 {
		groupColumns = sch.Columns()
	} else {
		for _, c := range groupColumns {
			if !sch.Has(c) {
				return 0, newError(KindMissingColumn, "collapse", "column %q in %s", c, table)
			}
		}
	}

	var removed int
	if d.profile.RowID {
		removed, err = d.collapseByRowID(ctx, table, groupColumns)
	} else {
		removed, err = d.collapseRewrite(ctx, table, sch.Columns(), groupColumns)
	}
	if err != nil {
		return 0, err
	}

	d.cache.Invalidate(table)
	return removed, nil
}

// collapseByRowID keeps the highest rowid per group; rowids grow with
// insertion order, so that is the most recently appended row.
func (d *DB) collapseByRowID(ctx context.Context, table string, groupColumns []string) (int, error) {
	quoted := make([]string, len(groupColumns))
	for i, c := range groupColumns {
		quoted[i] = d.profile.QuoteIdent(c)
	}
	tbl := d.profile.QuoteIdent(table)
	group := strings.Join(quoted, ", ")

	before, err := d.countRows(ctx, table)
	if err != nil {
		return 0, err
	}

	q := "DELETE FROM " + tbl + " WHERE rowid NOT IN (SELECT MAX(rowid) FROM " + tbl + " GROUP BY " + group + ")"
	if err := d.execRetry(ctx, "collapse", q); err != nil {
		return 0, d.classifyExec("collapse", err)
	}

	after, err := d.countRows(ctx, table)
	if err != nil {
		return 0, err
	}
	return before - after, nil
}

// collapseRewrite reads every row, keeps the last occurrence per group
// tuple in first-seen order, and rewrites the table.
func (d *DB) collapseRewrite(ctx context.Context, table string, allColumns, groupColumns []string) (int, error) {
	rows, err := d.queryRows(ctx, selectSQL(d.profile, table, allColumns, ""), nil, nil, 0)
	if err != nil {
		return 0, err
	}

	order := make([]string, 0, len(rows))
	last := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		t := keyTuple(row, groupColumns)
		if _, seen := last[t]; !seen {
			order = append(order, t)
		}
		last[t] = row
	}
	removed := len(rows) - len(order)
	if removed == 0 {
		return 0, nil
	}

	kept := make([]map[string]any, len(order))
	for i, t := range order {
		kept[i] = last[t]
	}

	if err := d.execRetry(ctx, "collapse", "DELETE FROM "+d.profile.QuoteIdent(table)); err != nil {
		return 0, d.classifyExec("collapse", err)
	}
	sch, err := d.intro.columns(ctx, table)
	if err != nil {
		return 0, err
	}
	chunk := effectiveChunkSize(d.profile, sch.Len(), d.chunkSize)
	for from := 0; from < len(kept); from += chunk {
		to := from + chunk
		if to > len(kept) {
			to = len(kept)
		}
		if _, _, err := d.insertChunk(ctx, table, sch.Columns(), kept[from:to], false, false); err != nil {
			return 0, err
		}
	}
	return removed, nil
}

func (d *DB) countRows(ctx context.Context, table string) (int, error) {
	rows, err := d.queryRows(ctx, "SELECT COUNT(*) AS n FROM "+d.profile.QuoteIdent(table), nil, nil, 0)
	if err != nil {
		return 0, err
	}
	if len(rows) != 1 {
		return 0, nil
	}
	switch n := rows[0]["n"].(type) {
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, nil
	}
}
