package database

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// IsUniqueViolation reports a unique constraint failure on postgres or sqlite.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsNotFound reports whether a bun Scan found no rows.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
