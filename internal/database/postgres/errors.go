package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/dbbrowse/internal/errs"
)

// PostgreSQL SQLSTATE classes and codes we classify explicitly.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgClassInvalidAuth      = "28"
	pgClassInsufficientRes  = "53"
	pgErrInsufficientPrivs  = "42501"
	pgErrQueryCanceled      = "57014"
	pgErrAdminShutdown      = "57P01"
	pgErrCannotConnectNow   = "57P03"
	pgErrInvalidCatalogName = "3D000"
	pgErrTooManyConnections = "53300"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
// SQLSTATE code and detail are carried on the result for diagnostics.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err).
			WithCode(pgErr.Code, pgErr.Detail)
	}

	// TLS, network, DNS and auth handshake failures never reach SQLSTATE.
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return errs.Connection(msg, err)
	}

	return errs.Database(msg, err)
}

func classifySQLState(code string) errs.ErrKind {
	switch code {
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case pgErrInsufficientPrivs:
		return errs.ErrKindPermissionDenied
	case pgErrAdminShutdown, pgErrCannotConnectNow, pgErrInvalidCatalogName, pgErrTooManyConnections:
		return errs.ErrKindConnectionFailed
	}
	if len(code) >= 2 {
		switch code[:2] {
		case pgClassConnection, pgClassInvalidAuth, pgClassInsufficientRes:
			return errs.ErrKindConnectionFailed
		}
	}
	return errs.ErrKindQueryFailed
}
