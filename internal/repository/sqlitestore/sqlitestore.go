// Package sqlitestore implements the repository contracts on a single SQLite
// file through sqlx. It backs the lightweight deployment and must behave
// exactly like the GORM/postgres implementation.
package sqlitestore

import (
	"database/sql"
	"errors"

	"lotflow/internal/apierror"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// translate maps driver errors onto apierror sentinels.
func translate(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierror.ErrNotFound
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return apierror.ErrConflict
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return apierror.ErrValidation
		}
	}
	return err
}
