package database

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

type ErrorClass int

const (
	ErrorClassPermanent ErrorClass = iota
	ErrorClassTransient
	ErrorClassDeadlock
	ErrorClassSerialization
)

func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ErrorClassPermanent
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001":
			return ErrorClassSerialization
		case "40P01":
			return ErrorClassDeadlock
		case "55P03":
			return ErrorClassTransient
		case "23505", "23503", "23502", "23514":
			return ErrorClassPermanent
		}
	}

	if errors.Is(err, sql.ErrNoRows) {
		return ErrorClassPermanent
	}

	return ErrorClassPermanent
}

func IsRetryable(err error) bool {
	class := ClassifyError(err)
	return class == ErrorClassTransient ||
		class == ErrorClassDeadlock ||
		class == ErrorClassSerialization
}

// IsConstraintViolation reports whether err carries a Postgres integrity
// constraint SQLSTATE. These are never swallowed by the services: they abort
// the transaction and propagate to the caller.
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503", "23502", "23514":
			return true
		}
	}
	return false
}

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("variant not found")
	ErrOrderNotFound   = errors.New("order not found")

	// Business-rule guards. Expected in normal operation; callers report
	// them to the user instead of treating them as crashes.
	ErrVariantInactive     = errors.New("variant is not active")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrOrderNotPending     = errors.New("order is not pending")
	ErrOrderNotRestockable = errors.New("order is not cancelled or refunded")

	ErrLockTimeout       = errors.New("lock timeout")
	ErrLockOrderViolated = errors.New("lock acquisition order violated")
)

// IsDomainFailure reports whether err is one of the business-rule guard
// failures. Everything else (constraint violations, connection errors,
// lock-order violations) is treated as fatal by callers.
func IsDomainFailure(err error) bool {
	return errors.Is(err, ErrVariantNotFound) ||
		errors.Is(err, ErrVariantInactive) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrOrderNotPending) ||
		errors.Is(err, ErrOrderNotRestockable)
}
