package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/dbbrowse/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied    = 1044
	errAccessDenied      = 1045
	errNoDatabase        = 1046
	errUnknownDatabase   = 1049
	errTooManyConns      = 1040
	errUserConnLimit     = 1203
	errTableAccessDenied = 1142
	errQueryInterrupted  = 1317
	errLockWaitTimeout   = 1205
	errExecTimeExceeded  = 3024
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
// The server error number is kept as the code.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(classifyMySQLCode(mysqlErr.Number), fmt.Sprintf("%s: %s", msg, mysqlErr.Message), err).
			WithCode(strconv.Itoa(int(mysqlErr.Number)), string(mysqlErr.SQLState[:]))
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, gomysql.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return errs.Connection(msg, err)
	}

	return errs.Database(msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errNoDatabase, errUnknownDatabase, errTooManyConns, errUserConnLimit:
		return errs.ErrKindConnectionFailed
	case errTableAccessDenied:
		return errs.ErrKindPermissionDenied
	case errQueryInterrupted, errLockWaitTimeout, errExecTimeExceeded:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}
