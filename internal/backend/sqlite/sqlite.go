// Package sqlite registers the embedded file engine driver.
//
// Importing this package (blank import is enough) wires modernc.org/sqlite
// into the backend registry under backend.SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sqlite3 "modernc.org/sqlite"

	"rowbridge/internal/backend"
)

// Primary result codes, see https://sqlite.org/rescode.html.
// Extended codes carry the primary code in the low byte.
const (
	codeBusy       = 5
	codeLocked     = 6
	codeConstraint = 19
)

func init() {
	backend.Register(backend.SQLite, backend.Driver{
		Open:       open,
		Busy:       isBusy,
		Constraint: isConstraint,
	})
}

func open(ctx context.Context, location string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", location)
	if err != nil {
		return nil, err
	}
	// One writer at a time: the layer serializes per-operation anyway, and
	// a second connection on a file database only invites SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func primaryCode(err error) (int, bool) {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return se.Code() & 0xff, true
	}
	return 0, false
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := primaryCode(err); ok {
		return code == codeBusy || code == codeLocked
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := primaryCode(err); ok {
		return code == codeConstraint
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
