package errors

import (
	"errors"
	"strings"

	mattn "github.com/mattn/go-sqlite3"
	modernc "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// classifySQLiteError classifies driver errors from either supported SQLite driver.
// Returns ErrCodeUnknown when err carries no driver error.
func classifySQLiteError(err error) ErrorCode {
	var mattnErr mattn.Error
	if errors.As(err, &mattnErr) {
		return classifyMattn(mattnErr)
	}

	var moderncErr *modernc.Error
	if errors.As(err, &moderncErr) {
		return classifyResultCode(moderncErr.Code(), moderncErr.Error())
	}

	return ErrCodeUnknown
}

func classifyMattn(sqliteErr mattn.Error) ErrorCode {
	switch sqliteErr.ExtendedCode {
	case mattn.ErrConstraintUnique, mattn.ErrConstraintPrimaryKey:
		return ErrCodeDuplicate
	case mattn.ErrConstraintForeignKey, mattn.ErrConstraintCheck, mattn.ErrConstraintNotNull,
		mattn.ErrConstraintTrigger, mattn.ErrConstraintRowID:
		return ErrCodeConstraint
	}
	return classifyResultCode(int(sqliteErr.Code), sqliteErr.Error())
}

// classifyResultCode maps a (possibly extended) SQLite result code to an ErrorCode
func classifyResultCode(code int, msg string) ErrorCode {
	switch code {
	case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return ErrCodeDuplicate
	}

	switch code & 0xff {
	case sqlitelib.SQLITE_CONSTRAINT:
		if strings.Contains(strings.ToLower(msg), "unique") {
			return ErrCodeDuplicate
		}
		return ErrCodeConstraint
	case sqlitelib.SQLITE_CORRUPT, sqlitelib.SQLITE_NOTADB:
		return ErrCodeCorruption
	case sqlitelib.SQLITE_PERM, sqlitelib.SQLITE_AUTH, sqlitelib.SQLITE_READONLY:
		return ErrCodePermission
	case sqlitelib.SQLITE_BUSY, sqlitelib.SQLITE_LOCKED:
		return ErrCodeBusy
	case sqlitelib.SQLITE_CANTOPEN, sqlitelib.SQLITE_IOERR:
		return ErrCodeConnection
	case sqlitelib.SQLITE_FULL:
		return ErrCodeDiskSpace
	case sqlitelib.SQLITE_MISUSE:
		// Programming error, not a transient failure
		return ErrCodeInternal
	case sqlitelib.SQLITE_SCHEMA:
		return ErrCodeSchema
	default:
		return ErrCodeUnknown
	}
}
