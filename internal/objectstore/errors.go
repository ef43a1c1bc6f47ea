package objectstore

import (
	"errors"
	"fmt"
)

// Error is the structured error raised by the store and by everything that
// mutates it. Callers branch on Code; Fatal codes halt block processing.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Kind is the record kind involved, if any.
	Kind Kind

	// ID is the record involved, if known.
	ID ID

	// Index names the index involved in key and corruption errors.
	Index string

	// Details contains additional context.
	Details map[string]string
}

// Code categorizes store errors.
type Code string

const (
	// CodeValidationFailed rejects one operation; nothing was mutated.
	CodeValidationFailed Code = "VALIDATION_FAILED"

	// CodeNotFound reports a lookup of a record that should exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeDuplicateKey reports a uniqueness violation on insert or update.
	CodeDuplicateKey Code = "DUPLICATE_KEY"

	// CodeInconsistentAggregate means an aggregate drifted from the records it
	// summarizes. Fatal.
	CodeInconsistentAggregate Code = "INCONSISTENT_AGGREGATE"

	// CodeIndexCorruption means an index disagrees with the primary records.
	// Fatal.
	CodeIndexCorruption Code = "INDEX_CORRUPTION"

	// CodeDuplicateHandler is raised at startup when an operation kind has two
	// evaluators.
	CodeDuplicateHandler Code = "DUPLICATE_HANDLER"
)

func (e *Error) Error() string {
	switch {
	case e.Kind != 0 && e.Index != "":
		return fmt.Sprintf("%s: %s (kind=%s, index=%s)", e.Code, e.Message, e.Kind, e.Index)
	case e.Kind != 0:
		return fmt.Sprintf("%s: %s (kind=%s)", e.Code, e.Message, e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Fatal reports whether continuing after this error risks divergent state.
func (e *Error) Fatal() bool {
	return e.Code == CodeInconsistentAggregate || e.Code == CodeIndexCorruption
}

// CodeOf extracts the code of a wrapped *Error.
func CodeOf(err error) (Code, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

func hasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// IsValidation returns true for VALIDATION_FAILED errors.
func IsValidation(err error) bool { return hasCode(err, CodeValidationFailed) }

// IsNotFound returns true for NOT_FOUND errors.
func IsNotFound(err error) bool { return hasCode(err, CodeNotFound) }

// IsDuplicateKey returns true for DUPLICATE_KEY errors.
func IsDuplicateKey(err error) bool { return hasCode(err, CodeDuplicateKey) }

// IsDuplicateHandler returns true for DUPLICATE_HANDLER errors.
func IsDuplicateHandler(err error) bool { return hasCode(err, CodeDuplicateHandler) }

// IsFatal returns true for errors after which the state must not be trusted.
func IsFatal(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Fatal()
}

// Validationf creates a VALIDATION_FAILED error.
func Validationf(format string, args ...any) *Error {
	return &Error{
		Code:    CodeValidationFailed,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewNotFoundError creates a NOT_FOUND error. key describes the lookup,
// e.g. "id=4" or "alice/hello-world".
func NewNotFoundError(kind Kind, key string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %s not found", kind, key),
		Kind:    kind,
		Details: map[string]string{"key": key},
	}
}

// NewDuplicateKeyError creates a DUPLICATE_KEY error for index, naming the
// record that already holds the key.
func NewDuplicateKeyError(kind Kind, indexName string, existing ID) *Error {
	return &Error{
		Code:    CodeDuplicateKey,
		Message: fmt.Sprintf("key already held by %s %d", kind, existing),
		Kind:    kind,
		ID:      existing,
		Index:   indexName,
	}
}

// NewInconsistentAggregateError creates an INCONSISTENT_AGGREGATE error.
func NewInconsistentAggregateError(kind Kind, format string, args ...any) *Error {
	return &Error{
		Code:    CodeInconsistentAggregate,
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
	}
}

// NewIndexCorruptionError creates an INDEX_CORRUPTION error.
func NewIndexCorruptionError(kind Kind, indexName string, format string, args ...any) *Error {
	return &Error{
		Code:    CodeIndexCorruption,
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
		Index:   indexName,
	}
}

// NewDuplicateHandlerError creates a DUPLICATE_HANDLER error.
func NewDuplicateHandlerError(opKind string) *Error {
	return &Error{
		Code:    CodeDuplicateHandler,
		Message: fmt.Sprintf("operation %q already has an evaluator", opKind),
		Details: map[string]string{"op": opKind},
	}
}
