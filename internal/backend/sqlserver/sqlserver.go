// Package sqlserver registers the network engine driver backed by
// github.com/microsoft/go-mssqldb.
package sqlserver

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"rowbridge/internal/backend"
)

// Engine error numbers, see sys.messages.
const (
	errDeadlockVictim  = 1205
	errLockTimeout     = 1222
	errDupKey          = 2627
	errDupUniqueIndex  = 2601
	errNullInsert      = 515
	errConstraintCheck = 547
)

func init() {
	backend.Register(backend.SQLServer, backend.Driver{
		Open:       open,
		Busy:       isBusy,
		Constraint: isConstraint,
	})
}

func open(ctx context.Context, location string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", location)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func number(err error) (int32, bool) {
	var me mssql.Error
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if n, ok := number(err); ok {
		return n == errDeadlockVictim || n == errLockTimeout
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "lock request time out")
}

func isConstraint(err error) bool {
	if err == nil {
		return false
	}
	if n, ok := number(err); ok {
		switch n {
		case errDupKey, errDupUniqueIndex, errNullInsert, errConstraintCheck:
			return true
		}
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
