// Package backend defines the closed set of supported database engines and
// the static per-engine facts (a Profile) the access layer is written
// against.
//
// Three engines are supported: an embedded file engine (SQLite), a desktop
// file engine reached through the generic ODBC bridge driver (Access), and a
// network server engine (SQL Server). Engine-specific behavior lives either
// here as data (quoting, placeholders, native type maps, capability flags)
// or in the driver subpackages, which register an opener plus error
// classifiers for their engine. The core never switches on driver types.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"rowbridge/internal/schema"
)

// Kind identifies one supported engine. Fixed at connection construction for
// the lifetime of a handle.
type Kind string

const (
	SQLite    Kind = "sqlite"
	Access    Kind = "access"
	SQLServer Kind = "sqlserver"
)

// Profile is the static capability surface of an engine.
type Profile struct {
	Kind Kind

	// BatchParams reports whether one parameterized statement may carry
	// multiple VALUES groups. When false the writer binds row by row.
	BatchParams bool

	// MaxParams caps the number of bound parameters per statement
	// (0 = no practical limit). SQL Server rejects statements with more
	// than 2100 parameters.
	MaxParams int

	// Catalog reports whether a systems catalog can be queried for
	// tables/columns/keys. When false, introspection falls back to a
	// 2-row sample SELECT with runtime type inference.
	Catalog bool

	// Views reports whether the engine exposes a view list.
	Views bool

	// KeyColumns reports whether primary-key column metadata is available.
	// Without it, duplicate filtering on append is not possible.
	KeyColumns bool

	// RowID reports whether the engine has a stable per-row identity
	// pragma usable for server-side duplicate collapse.
	RowID bool

	// IndexDDL reports whether CREATE INDEX is supported by this layer.
	IndexDDL bool

	// Progress reports whether row-cadence progress callbacks are
	// supported during long reads.
	Progress bool

	// FileBacked reports whether the location string is a local file
	// (size reporting, vacuum).
	FileBacked bool
}

var profiles = map[Kind]Profile{
	SQLite: {
		Kind:        SQLite,
		BatchParams: true,
		Catalog:     true,
		Views:       true,
		KeyColumns:  true,
		RowID:       true,
		IndexDDL:    true,
		Progress:    true,
		FileBacked:  true,
	},
	Access: {
		Kind:        Access,
		BatchParams: false,
		Catalog:     false,
		Views:       false,
		KeyColumns:  false,
		RowID:       false,
		IndexDDL:    false,
		Progress:    false,
		FileBacked:  true,
	},
	SQLServer: {
		Kind:        SQLServer,
		BatchParams: true,
		MaxParams:   2100,
		Catalog:     true,
		Views:       true,
		KeyColumns:  true,
		RowID:       false,
		IndexDDL:    false,
		Progress:    false,
		FileBacked:  false,
	},
}

// ProfileFor returns the profile for a kind. Unknown kinds get a zero
// profile with every capability off.
func ProfileFor(k Kind) Profile {
	p, ok := profiles[k]
	if !ok {
		return Profile{Kind: k}
	}
	return p
}

// QuoteIdent quotes an identifier for the engine: double quotes for SQLite,
// square brackets for the bridge-driver engines.
func (p Profile) QuoteIdent(name string) string {
	switch p.Kind {
	case SQLite:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	default:
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	}
}

// Placeholder returns the bind-parameter marker for 1-based position idx.
func (p Profile) Placeholder(idx int) string {
	if p.Kind == SQLServer {
		return "@p" + strconv.Itoa(idx)
	}
	return "?"
}

var nativeTypes = map[Kind]map[schema.Type]string{
	SQLite: {
		schema.Integer:   "INTEGER",
		schema.Real:      "REAL",
		schema.Text:      "TEXT",
		schema.Timestamp: "TIMESTAMP",
	},
	Access: {
		schema.Integer:   "INTEGER",
		schema.Real:      "DOUBLE",
		schema.Text:      "VARCHAR(255)",
		schema.Timestamp: "DATETIME",
	},
	SQLServer: {
		schema.Integer:   "BIGINT",
		schema.Real:      "FLOAT",
		schema.Text:      "NVARCHAR(255)",
		schema.Timestamp: "DATETIME2",
	},
}

// NativeType maps a semantic tag to the engine's column type for DDL.
// The second return is false for tags with no mapping (notably
// Unspecified), which makes table creation fail with the offending tags
// reported.
func (p Profile) NativeType(t schema.Type) (string, bool) {
	m, ok := nativeTypes[p.Kind]
	if !ok {
		return "", false
	}
	nt, ok := m[t]
	return nt, ok
}

// Driver is what an engine's driver subpackage registers: how to open a
// pooled handle for a location string, and how to classify its native
// errors. Classifiers take the place of driver-type switches in the core.
type Driver struct {
	// Open returns a verified (pinged) handle for the location.
	Open func(ctx context.Context, location string) (*sql.DB, error)

	// Busy reports whether err is a transient lock/busy condition worth
	// retrying.
	Busy func(err error) bool

	// Constraint reports whether err is a constraint violation
	// (duplicate key, not-null, ...).
	Constraint func(err error) bool
}

var (
	driverMu sync.RWMutex
	drivers  = map[Kind]Driver{}
)

// Register binds a driver to a kind. Called from driver package init
// functions; registering the same kind twice panics to fail fast on
// ambiguous wiring.
func Register(k Kind, d Driver) {
	driverMu.Lock()
	defer driverMu.Unlock()

	if d.Open == nil {
		panic("backend: Register called with nil Open")
	}
	if _, exists := drivers[k]; exists {
		panic(fmt.Sprintf("backend: driver already registered for kind=%q", k))
	}
	drivers[k] = d
}

// DriverFor returns the registered driver for a kind.
func DriverFor(k Kind) (Driver, error) {
	driverMu.RLock()
	d, ok := drivers[k]
	driverMu.RUnlock()
	if !ok {
		return Driver{}, fmt.Errorf("backend: no driver registered for kind=%q (missing blank import?)", k)
	}
	return d, nil
}

// Connect opens a verified handle for kind and location via the registered
// driver.
func Connect(ctx context.Context, k Kind, location string) (*sql.DB, error) {
	d, err := DriverFor(k)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx, location)
}
