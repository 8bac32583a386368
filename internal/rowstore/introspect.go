package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"rowbridge/internal/backend"
	"rowbridge/internal/nameguard"
	"rowbridge/internal/schema"
)

// catalog is the per-engine strategy for reading structural metadata.
// The embedded engine reads its master table and pragmas, the server
// engine reads INFORMATION_SCHEMA, and the desktop engine (whose bridge
// driver exposes no catalog) falls back to sampling.
type catalog interface {
	tables(ctx context.Context, conn *sql.Conn) ([]string, error)
	views(ctx context.Context, conn *sql.Conn) ([]string, error)
	columns(ctx context.Context, conn *sql.Conn, table string) (*schema.Schema, error)
	keyColumns(ctx context.Context, conn *sql.Conn, table string) ([]string, error)
}

// introspector memoizes catalog lookups per handle. Structural metadata
// changes only through this layer's own DDL operations, which invalidate
// the relevant entries.
type introspector struct {
	db  *DB
	cat catalog

	mu          sync.Mutex
	tablesMemo  []string
	tablesOK    bool
	viewsMemo   []string
	viewsOK     bool
	columnsMemo map[string]*schema.Schema
	keysMemo    map[string][]string
}

func newIntrospector(d *DB) *introspector {
	var cat catalog
	switch d.kind {
	case backend.SQLite:
		cat = sqliteCatalog{profile: d.profile}
	case backend.SQLServer:
		cat = serverCatalog{}
	default:
		cat = sampleCatalog{profile: d.profile, log: d.log}
	}
	return &introspector{
		db:          d,
		cat:         cat,
		columnsMemo: make(map[string]*schema.Schema),
		keysMemo:    make(map[string][]string),
	}
}

func (in *introspector) invalidate(table string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.tablesOK = false
	in.viewsOK = false
	delete(in.columnsMemo, table)
	delete(in.keysMemo, table)
}

func (in *introspector) invalidateAll() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.tablesOK = false
	in.viewsOK = false
	in.columnsMemo = make(map[string]*schema.Schema)
	in.keysMemo = make(map[string][]string)
}

func (in *introspector) tables(ctx context.Context) ([]string, error) {
	in.mu.Lock()
	if in.tablesOK {
		out := in.tablesMemo
		in.mu.Unlock()
		return out, nil
	}
	in.mu.Unlock()

	var out []string
	err := in.db.withConn(ctx, func(conn *sql.Conn) error {
		var cerr error
		out, cerr = in.cat.tables(ctx, conn)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	in.tablesMemo, in.tablesOK = out, true
	in.mu.Unlock()
	return out, nil
}

func (in *introspector) views(ctx context.Context) ([]string, error) {
	in.mu.Lock()
	if in.viewsOK {
		out := in.viewsMemo
		in.mu.Unlock()
		return out, nil
	}
	in.mu.Unlock()

	var out []string
	err := in.db.withConn(ctx, func(conn *sql.Conn) error {
		var cerr error
		out, cerr = in.cat.views(ctx, conn)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	in.viewsMemo, in.viewsOK = out, true
	in.mu.Unlock()
	return out, nil
}

func (in *introspector) columns(ctx context.Context, table string) (*schema.Schema, error) {
	in.mu.Lock()
	if sch, ok := in.columnsMemo[table]; ok {
		in.mu.Unlock()
		return sch, nil
	}
	in.mu.Unlock()

	var sch *schema.Schema
	err := in.db.withConn(ctx, func(conn *sql.Conn) error {
		var cerr error
		sch, cerr = in.cat.columns(ctx, conn, table)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	in.columnsMemo[table] = sch
	in.mu.Unlock()
	return sch, nil
}

func (in *introspector) keyColumns(ctx context.Context, table string) ([]string, error) {
	in.mu.Lock()
	if keys, ok := in.keysMemo[table]; ok {
		in.mu.Unlock()
		return keys, nil
	}
	in.mu.Unlock()

	var keys []string
	err := in.db.withConn(ctx, func(conn *sql.Conn) error {
		var cerr error
		keys, cerr = in.cat.keyColumns(ctx, conn, table)
		return cerr
	})
	if err != nil {
		return nil, err
	}

	in.mu.Lock()
	in.keysMemo[table] = keys
	in.mu.Unlock()
	return keys, nil
}

// Tables lists base tables. Memoized until a DDL operation invalidates.
func (d *DB) Tables(ctx context.Context) ([]string, error) {
	return d.intro.tables(ctx)
}

// Views lists views. Engines whose catalog does not expose views
// return an empty list and no error.
func (d *DB) Views(ctx context.Context) ([]string, error) {
	if !d.profile.Views {
		d.log.Warnf("views: no view metadata on %s, returning none", d.kind)
		return nil, nil
	}
	return d.intro.views(ctx)
}

// Columns returns the declared column schema of a table, in declaration
// order.
func (d *DB) Columns(ctx context.Context, table string) (*schema.Schema, error) {
	if !nameguard.Validate(table) {
		return nil, newError(KindInvalidName, "columns", "table %q", table)
	}
	return d.intro.columns(ctx, table)
}

// KeyColumns returns the primary-key columns of a table in key order.
// Engines without key metadata return an empty slice and no error; the
// append dedupe guard treats that as "no duplicate filtering possible".
func (d *DB) KeyColumns(ctx context.Context, table string) ([]string, error) {
	if !nameguard.Validate(table) {
		return nil, newError(KindInvalidName, "key_columns", "table %q", table)
	}
	if !d.profile.KeyColumns {
		return nil, nil
	}
	return d.intro.keyColumns(ctx, table)
}

// hasTable reports whether table exists, using the memoized table list.
func (d *DB) hasTable(ctx context.Context, table string) (bool, error) {
	names, err := d.Tables(ctx)
	if err != nil {
		if IsUnsupported(err) {
			// The desktop engine cannot list tables; assume presence and
			// let the statement itself fail if the table is absent.
			return true, nil
		}
		return false, err
	}
	for _, n := range names {
		if n == table {
			return true, nil
		}
	}
	return false, nil
}

// sqliteCatalog reads sqlite_master and table_info pragmas.
type sqliteCatalog struct {
	profile backend.Profile
}

func (c sqliteCatalog) tables(ctx context.Context, conn *sql.Conn) ([]string, error) {
	return scanNames(ctx, conn,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

func (c sqliteCatalog) views(ctx context.Context, conn *sql.Conn) ([]string, error) {
	return scanNames(ctx, conn,
		`SELECT name FROM sqlite_master WHERE type = 'view' ORDER BY name`)
}

func (c sqliteCatalog) columns(ctx context.Context, conn *sql.Conn, table string) (*schema.Schema, error) {
	rows, err := conn.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	sch := schema.New()
	for rows.Next() {
		var name, decl string
		if err := rows.Scan(&name, &decl); err != nil {
			return nil, err
		}
		sch.Add(name, schema.FromDecl(decl))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if sch.Len() == 0 {
		return nil, newError(KindMissingTable, "columns", "table %q", table)
	}
	return sch, nil
}

func (c sqliteCatalog) keyColumns(ctx context.Context, conn *sql.Conn, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, table)
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}

// serverCatalog reads INFORMATION_SCHEMA.
type serverCatalog struct{}

func (serverCatalog) tables(ctx context.Context, conn *sql.Conn) ([]string, error) {
	return scanNames(ctx, conn,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`)
}

func (serverCatalog) views(ctx context.Context, conn *sql.Conn) ([]string, error) {
	return scanNames(ctx, conn,
		`SELECT TABLE_NAME FROM INFORMATION_SCHEMA.VIEWS ORDER BY TABLE_NAME`)
}

func (serverCatalog) columns(ctx context.Context, conn *sql.Conn, table string) (*schema.Schema, error) {
	rows, err := conn.QueryContext(ctx,
		`SELECT COLUMN_NAME, DATA_TYPE FROM INFORMATION_SCHEMA.COLUMNS WHERE TABLE_NAME = @p1 ORDER BY ORDINAL_POSITION`,
		table)
	if err != nil {
		return nil, fmt.Errorf("information_schema columns %s: %w", table, err)
	}
	defer rows.Close()

	sch := schema.New()
	for rows.Next() {
		var name, decl string
		if err := rows.Scan(&name, &decl); err != nil {
			return nil, err
		}
		sch.Add(name, schema.FromDecl(decl))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if sch.Len() == 0 {
		return nil, newError(KindMissingTable, "columns", "table %q", table)
	}
	return sch, nil
}

func (serverCatalog) keyColumns(ctx context.Context, conn *sql.Conn, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `
SELECT kcu.COLUMN_NAME
FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
  ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_NAME = @p1
ORDER BY kcu.ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("information_schema keys %s: %w", table, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}

// sampleCatalog is the degraded strategy for the desktop engine: the
// bridge driver exposes no catalog tables, so column schemas are
// inferred from a two-row sample and table/view/key lists are simply
// unavailable.
type sampleCatalog struct {
	profile backend.Profile
	log     interface{ Warnf(string, ...any) }
}

func (c sampleCatalog) tables(context.Context, *sql.Conn) ([]string, error) {
	return nil, newError(KindUnsupported, "tables", "no catalog on %s", c.profile.Kind)
}

func (c sampleCatalog) views(context.Context, *sql.Conn) ([]string, error) {
	return nil, newError(KindUnsupported, "views", "no catalog on %s", c.profile.Kind)
}

func (c sampleCatalog) columns(ctx context.Context, conn *sql.Conn, table string) (*schema.Schema, error) {
	c.log.Warnf("no catalog on %s: inferring %s schema from a 2-row sample", c.profile.Kind, table)

	q := "SELECT TOP 2 * FROM " + c.profile.QuoteIdent(table)
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, newError(KindMissingTable, "columns", "sample %q: %v", table, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, _ := rows.ColumnTypes()

	sch := schema.New()
	for i, name := range names {
		t := schema.Unspecified
		if i < len(types) && types[i] != nil {
			t = schema.FromDecl(types[i].DatabaseTypeName())
		}
		sch.Add(name, t)
	}

	// Refine still-unspecified columns from sampled values.
	vals := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, name := range names {
			if sch.TypeOf(name) != schema.Unspecified {
				continue
			}
			if t, ok := schema.OfValue(vals[i]); ok {
				sch.Add(name, t)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Anything never observed defaults to text.
	for _, name := range sch.Columns() {
		if sch.TypeOf(name) == schema.Unspecified {
			sch.Add(name, schema.Text)
		}
	}
	return sch, nil
}

func (c sampleCatalog) keyColumns(context.Context, *sql.Conn, string) ([]string, error) {
	return nil, nil
}

func scanNames(ctx context.Context, conn *sql.Conn, query string, args ...any) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
