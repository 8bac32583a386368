// Package rowstore is a uniform row-oriented access layer over three
// relational engines: an embedded SQLite file, a desktop Access file
// reached through the ODBC bridge driver, and a SQL Server instance.
//
// Rows cross the boundary as []map[string]any in both directions. Every
// operation acquires a connection, runs, commits where applicable, and
// releases on all paths; the handle itself is safe for concurrent use,
// with write operations serialized per handle.
package rowstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"rowbridge/internal/backend"
	"rowbridge/internal/logger"
	"rowbridge/internal/metrics"
	"rowbridge/internal/rowcache"
)

const defaultChunkSize = 100

// Options configures Open.
type Options struct {
	// Backend forces an engine kind instead of detecting one from the
	// location string.
	Backend backend.Kind

	// CreateIfMissing lets Open create a new embedded database when the
	// location is an unrecognized path ending in ".db".
	CreateIfMissing bool

	// ChunkSize is the number of rows per INSERT statement on append.
	// Defaults to 100.
	ChunkSize int

	// RetryAttempts bounds busy retries per statement. Defaults to 5.
	RetryAttempts int

	Logger  *logger.Logger
	Metrics metrics.Backend
}

// DB is a handle to one database. All operations go through it.
type DB struct {
	kind     backend.Kind
	profile  backend.Profile
	driver   backend.Driver
	location string

	sqldb *sql.DB

	log   *logger.Logger
	met   metrics.Backend
	cache *rowcache.Cache
	intro *introspector
	retry retryPolicy

	chunkSize int

	// execHook observes each write statement before it first runs.
	// Test seam; nil outside tests.
	execHook func(query string)

	// writeMu serializes write operations on this handle. The file
	// engines hold a single write lock anyway; serializing here turns
	// cross-goroutine contention into queueing instead of busy errors.
	writeMu sync.Mutex
}

// Open detects the engine for location, connects through the registered
// driver, and returns a ready handle.
//
// Edge cases:
//   - If location names an environment variable, its value is used.
//   - An unrecognized location ending in ".db" with opts.CreateIfMissing
//     set opens (and creates) a new embedded database.
//   - The driver subpackage for the detected kind must be linked in
//     (blank import), otherwise Open fails with a registry error.
func Open(ctx context.Context, location string, opts Options) (*DB, error) {
	kind := opts.Backend
	resolved := location
	if kind == "" {
		var err error
		kind, resolved, err = backend.Detect(location)
		if err != nil {
			if opts.CreateIfMissing && strings.HasSuffix(strings.ToLower(resolved), ".db") {
				kind = backend.SQLite
			} else {
				return nil, fmt.Errorf("open %q: %w", location, err)
			}
		}
	}

	driver, err := backend.DriverFor(kind)
	if err != nil {
		return nil, err
	}
	sqldb, err := driver.Open(ctx, resolved)
	if err != nil {
		return nil, fmt.Errorf("open %s database %q: %w", kind, location, err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	met := opts.Metrics
	if met == nil {
		met = metrics.Nop{}
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	retry := defaultRetryPolicy()
	if opts.RetryAttempts > 0 {
		retry.attempts = opts.RetryAttempts
	}

	profile := backend.ProfileFor(kind)
	d := &DB{
		kind:      kind,
		profile:   profile,
		driver:    driver,
		location:  resolved,
		sqldb:     sqldb,
		log:       log.With("backend", string(kind)),
		met:       met,
		cache:     rowcache.New(),
		retry:     retry,
		chunkSize: chunk,
	}
	d.intro = newIntrospector(d)

	d.log.InfoWith("database opened", map[string]any{"location": location})
	return d, nil
}

// Close releases the underlying pool.
func (d *DB) Close() error {
	return d.sqldb.Close()
}

// Kind returns the engine kind fixed at Open.
func (d *DB) Kind() backend.Kind { return d.kind }

// Profile returns the engine capability surface.
func (d *DB) Profile() backend.Profile { return d.profile }

// Location returns the resolved location string.
func (d *DB) Location() string { return d.location }

// withConn runs fn on a single acquired connection and releases it on
// all paths.
func (d *DB) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := d.sqldb.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

// withTx runs fn inside a transaction on one acquired connection.
// Commit happens only when fn returns nil; any other path rolls back
// before the connection is released.
func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return d.withConn(ctx, func(conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

// execRetry runs one write statement under the busy-retry policy,
// inside its own transaction.
func (d *DB) execRetry(ctx context.Context, op, query string, args ...any) error {
	if d.execHook != nil {
		d.execHook(query)
	}
	return d.retry.run(d.driver.Busy, func(attempt int) {
		d.met.IncCounter(metrics.RetriesTotal, 1, metrics.Labels{"op": op})
		d.log.Warnf("%s: database busy, retrying (attempt %d)", op, attempt)
	}, func() error {
		return d.withTx(ctx, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, query, args...)
			return err
		})
	})
}

// classifyExec translates a driver error from a write statement into the
// store taxonomy.
func (d *DB) classifyExec(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case d.driver.Busy(err):
		return wrapError(KindBusy, op, err)
	case d.driver.Constraint(err):
		return wrapError(KindConstraint, op, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// Execute runs raw SQL against the database. Statements beginning with
// SELECT return their rows; anything else is executed and returns nil
// rows. The SQL is passed through untouched, so this is the trusted
// escape hatch for anything the typed surface does not cover.
func (d *DB) Execute(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	start := time.Now()
	var (
		out []map[string]any
		err error
	)
	if isSelect(query) {
		err = d.withConn(ctx, func(conn *sql.Conn) error {
			rows, qerr := conn.QueryContext(ctx, query, args...)
			if qerr != nil {
				return qerr
			}
			defer rows.Close()
			out, qerr = scanRows(rows, nil, 0)
			return qerr
		})
	} else {
		err = d.execRetry(ctx, "execute", query, args...)
		if err == nil {
			d.cache.InvalidateAll()
			d.intro.invalidateAll()
		}
	}
	metrics.TrackOp(d.met, "execute", start, err)
	if err != nil {
		return nil, d.classifyExec("execute", err)
	}
	return out, nil
}

func isSelect(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH")
}

// Vacuum compacts the embedded database file. The other engines manage
// their own storage (or, for the desktop engine, only compact through
// its GUI), so this is an embedded-only operation.
func (d *DB) Vacuum(ctx context.Context) error {
	if d.kind != backend.SQLite {
		return newError(KindUnsupported, "vacuum", "not available on %s", d.kind)
	}
	start := time.Now()
	err := d.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, "VACUUM")
		return err
	})
	metrics.TrackOp(d.met, "vacuum", start, err)
	if err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

// Size returns the database file size in gigabytes. Only meaningful for
// the file-backed engines.
func (d *DB) Size() (float64, error) {
	if !d.profile.FileBacked {
		return 0, newError(KindUnsupported, "size", "not file-backed: %s", d.kind)
	}
	fi, err := os.Stat(d.location)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return float64(fi.Size()) / 1e9, nil
}
