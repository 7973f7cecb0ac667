package relationaldb

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors surfaced by the store.
var (
	// Configuration errors
	ErrMissingHost           = errors.New("database host is required")
	ErrMissingDatabase       = errors.New("database name is required")
	ErrMissingUsername       = errors.New("database username is required")
	ErrInvalidPort           = errors.New("invalid database port")
	ErrInvalidDriver         = errors.New("invalid database driver")
	ErrInvalidMaxOpenConns   = errors.New("max open connections must be >= 0")
	ErrInvalidMaxIdleConns   = errors.New("max idle connections must be >= 0")
	ErrMaxIdleExceedsMaxOpen = errors.New("max idle connections cannot exceed max open connections")
	ErrInvalidTimeout        = errors.New("timeout must be positive")

	// Connection errors
	ErrDatabaseClosed = errors.New("database connection is closed")

	// Data errors
	ErrBalanceNotFound        = errors.New("balance not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrConnectAccountNotFound = errors.New("connect account not found")

	// Constraint errors
	ErrDuplicatePayment   = errors.New("payment with this message hash already exists")
	ErrNegativeBalance    = errors.New("operation would make a balance negative")
	ErrWithdrawableExceed = errors.New("withdrawable funds cannot exceed balance")
)

// ErrorType classifies store errors for the facade's status-code mapping.
type ErrorType int

const (
	ErrorTypeUnknown ErrorType = iota
	ErrorTypeConfiguration
	ErrorTypeConnection
	ErrorTypeTransaction
	ErrorTypeData
	ErrorTypeConstraint
	ErrorTypeQuery
	ErrorTypeSchema
)

// StoreError carries the failed operation and a classification alongside the
// underlying cause.
type StoreError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

// NewStoreError creates a classified store error.
func NewStoreError(errorType ErrorType, operation, message string, cause error) *StoreError {
	return &StoreError{
		Type:      errorType,
		Operation: operation,
		Message:   message,
		Cause:     cause,
	}
}

// NewConfigurationError creates a configuration error.
func NewConfigurationError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConfiguration, operation, message, cause)
}

// NewConnectionError creates a connection error.
func NewConnectionError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConnection, operation, message, cause)
}

// NewTransactionError creates a transaction error.
func NewTransactionError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeTransaction, operation, message, cause)
}

// NewDataError creates a data error.
func NewDataError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeData, operation, message, cause)
}

// NewConstraintError creates a constraint error.
func NewConstraintError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeConstraint, operation, message, cause)
}

// NewQueryError creates a query error.
func NewQueryError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeQuery, operation, message, cause)
}

// NewSchemaError creates a schema error.
func NewSchemaError(operation, message string, cause error) *StoreError {
	return NewStoreError(ErrorTypeSchema, operation, message, cause)
}

// IsDataError reports whether err is a data (not-found class) error.
func IsDataError(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeData
	}
	return errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrConnectAccountNotFound)
}

// IsConstraintError reports whether err is a constraint violation.
func IsConstraintError(err error) bool {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Type == ErrorTypeConstraint
	}
	return errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrNegativeBalance) ||
		errors.Is(err, ErrWithdrawableExceed)
}

// IsUniqueViolation reports whether err looks like a UNIQUE-index violation
// from either supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	// lib/pq: "duplicate key value violates unique constraint";
	// modernc sqlite: "UNIQUE constraint failed".
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
