// Package repository implements the MySQL storage behind the scheduling
// service.  Errors returned from here are already classified: callers
// test them with errors.Is against the sentinels below, which are the
// scheduling package's own values.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/pitch-booking/internal/scheduling"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = scheduling.ErrNotFound

// ErrForbidden is returned when the caller attempts an operation
// on a resource they do not own. Handlers should translate this
// into an HTTP 403 response.
var ErrForbidden = scheduling.ErrForbidden

// ErrConflict is returned when InnoDB aborted the statement because
// of a deadlock or a lock wait timeout.  The whole transaction has
// been rolled back and may be retried.  Handlers should translate
// this into an HTTP 409 response.
var ErrConflict = scheduling.ErrStoreConflict

// MySQL server error numbers that mean "lost a locking race".
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// translate maps driver errors onto the package sentinels and leaves
// everything else untouched.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("%w: %s", ErrConflict, me.Message)
		}
	}
	return err
}
