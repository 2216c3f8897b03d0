package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	sqlStateLockNotAvailable = "55P03"
	sqlStateUniqueViolation  = "23505"
	sqlStateCheckViolation   = "23514"
)

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsLockTimeout reports whether err is a Postgres lock_timeout failure
func IsLockTimeout(err error) bool {
	return sqlState(err) == sqlStateLockNotAvailable
}

// IsUniqueViolation reports whether err violates a unique index
func IsUniqueViolation(err error) bool {
	return sqlState(err) == sqlStateUniqueViolation || errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsCheckViolation reports whether err violates a CHECK constraint
func IsCheckViolation(err error) bool {
	return sqlState(err) == sqlStateCheckViolation || errors.Is(err, gorm.ErrCheckConstraintViolated)
}

// SetLockTimeout bounds how long row locks taken in tx may wait.
// Only Postgres supports it; other dialects are left untouched.
func SetLockTimeout(tx *gorm.DB, d time.Duration) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())).Error
}
