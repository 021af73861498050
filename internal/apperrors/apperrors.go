// Package apperrors extends internal/errors with the taxonomy every error in
// this system carries: a category, a severity, structured context for
// logging, and a timestamp. Use cases construct *Error values; handlers and
// loggers read the taxonomy off them instead of pattern-matching messages.
package apperrors

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Category classifies where an error originated.
type Category string

const (
	CategoryValidation      Category = "validation"
	CategoryDatabase        Category = "database"
	CategoryNetwork         Category = "network"
	CategoryExternalService Category = "external_service"
	CategoryConfiguration   Category = "configuration"
	CategorySystem          Category = "system"
)

// Severity ranks how urgently an error demands attention.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// defaultSeverity maps each error category to its default severity.
var defaultSeverity = map[Category]Severity{
	CategoryValidation:      SeverityLow,
	CategoryDatabase:        SeverityHigh,
	CategoryNetwork:         SeverityMedium,
	CategoryExternalService: SeverityMedium,
	CategoryConfiguration:   SeverityCritical,
	CategorySystem:          SeverityCritical,
}

// Error is the concrete type backing every error this system raises deliberately.
type Error struct {
	Code      string
	Category  Category
	Severity  Severity
	Context   map[string]any
	Timestamp time.Time
	cause     error
}

// New builds an Error with the category's default severity.
func New(code string, category Category, message string) *Error {
	return &Error{
		Code:      code,
		Category:  category,
		Severity:  defaultSeverity[category],
		Timestamp: time.Now(),
		cause:     errors.New(message),
	}
}

// Wrap builds an Error around an existing cause, preserving its chain.
func Wrap(code string, category Category, cause error, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{
		Code:      code,
		Category:  category,
		Severity:  defaultSeverity[category],
		Timestamp: time.Now(),
		cause:     fmt.Errorf("%s: %w", message, cause),
	}
}

// WithContext attaches structured attributes for logging and returns the
// receiver for chaining.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithSeverity overrides the category's default severity, used for the
// idemKey unique-violation downgrade.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

func (e *Error) Error() string {
	return e.cause.Error()
}

func (e *Error) Unwrap() error {
	return e.cause
}

// IsIdemKeyConflict reports whether err is a PostgreSQL unique-violation
// (code 23505). It does not check which constraint fired; the Scheduler
// calls it only on an outbox insert, where idemKey is the unique column
// expected to collide. Callers should downgrade
// this to an info-level log line rather than treat it as a database error:
// it means an earlier outbox entry for the same step is still in flight.
func IsIdemKeyConflict(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505"
}

// Is delegates to errors.Is over the wrapped cause.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As delegates to errors.As over the wrapped cause.
func As(err error, target any) bool {
	return errors.As(err, target)
}
