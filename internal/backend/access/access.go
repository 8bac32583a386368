// Package access registers the desktop file engine driver.
//
// Access databases are reached through the platform ODBC bridge
// (github.com/alexbrainman/odbc) and the Microsoft Access ODBC driver,
// which must be installed on the host. The bridge exposes no catalog
// tables and no key-column metadata, so the profile for this backend
// leaves most capability flags off.
package access

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/alexbrainman/odbc"

	"rowbridge/internal/backend"
)

const (
	connectAttempts = 5
	connectPause    = 700 * time.Millisecond
)

// sleep is swapped out in tests.
var sleep = time.Sleep

func init() {
	backend.Register(backend.Access, backend.Driver{
		Open:       open,
		Busy:       isBusy,
		Constraint: isConstraint,
	})
}

// ConnString builds the ODBC connection string for a .accdb or .mdb file.
// The path is made absolute first: the Access driver resolves relative
// paths against its own working directory, not the process's.
func ConnString(location string) (string, error) {
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", location, err)
	}
	return "Driver={Microsoft Access Driver (*.mdb, *.accdb)};Dbq=" + abs + ";", nil
}

func open(ctx context.Context, location string) (*sql.DB, error) {
	dsn, err := ConnString(location)
	if err != nil {
		return nil, err
	}
	// The Access engine refuses new connections while it holds the file
	// lock for another process, usually only for a moment. Retry a few
	// times before giving up.
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			sleep(connectPause)
		}
		db, err := sql.Open("odbc", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(1)
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			lastErr = err
			continue
		}
		return db, nil
	}
	return nil, fmt.Errorf("connect to %s after %d attempts: %w", location, connectAttempts, lastErr)
}

// The ODBC bridge surfaces engine errors as formatted strings, so
// classification falls back to message matching.

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "lock") || strings.Contains(msg, "exclusively") || strings.Contains(msg, "in use")
}

func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "23000") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "would create duplicate") ||
		strings.Contains(msg, "key violation")
}
