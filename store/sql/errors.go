package sqlstore

import (
	"errors"
	"strings"

	"github.com/goliatone/go-inventory/core"
	"github.com/lib/pq"
	sqlite3 "github.com/mattn/go-sqlite3"
)

const (
	pqUniqueViolation   pq.ErrorCode = "23505"
	pqCheckViolation    pq.ErrorCode = "23514"
	pqLockNotAvailable  pq.ErrorCode = "55P03"
	pqSerialization     pq.ErrorCode = "40001"
	pqDeadlockDetected  pq.ErrorCode = "40P01"
	pqQueryCanceledCode pq.ErrorCode = "57014"
)

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return true
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func isCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqCheckViolation {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "check constraint")
}

// translateLockError maps driver lock failures onto the inventory error kinds:
// waits that ran out become timeouts, lost serialization races become
// retryable conflicts.
func translateLockError(err error, key core.BalanceKey) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqLockNotAvailable, pqQueryCanceledCode:
			return &core.TimeoutError{Key: key, Cause: err}
		case pqSerialization, pqDeadlockDetected:
			return &core.ConflictError{Entity: "item_balance", ID: key.String(), Cause: err}
		}
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return &core.ConflictError{Entity: "item_balance", ID: key.String(), Cause: err}
		}
	}
	return err
}
