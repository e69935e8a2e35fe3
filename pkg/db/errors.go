package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint failure.
//
// Postgres errors are matched on SQLSTATE and constraint name. SQLite does not
// report constraint names, so columns ("table.column") are matched against the
// driver message instead. With no constraint and no columns any unique
// violation matches.
func IsUniqueViolation(err error, constraintName string, columns ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return constraintName == "" || pgErr.ConstraintName == constraintName
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		if len(columns) == 0 {
			return constraintName == "" || strings.Contains(msg, constraintName)
		}
		for _, col := range columns {
			if !strings.Contains(msg, col) {
				return false
			}
		}
		return true
	case strings.Contains(msg, "duplicate key value"):
		return constraintName == "" || strings.Contains(msg, constraintName)
	}
	return false
}
