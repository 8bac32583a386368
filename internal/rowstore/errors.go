package rowstore

import (
	"errors"
	"fmt"
)

// ErrorKind classifies store failures so callers can branch without
// inspecting driver error types.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota

	// KindInvalidName: a table or column name failed validation and was
	// never interpolated into SQL.
	KindInvalidName

	// KindBusy: transient lock/busy condition; the operation already
	// exhausted its retry budget.
	KindBusy

	// KindConstraint: duplicate key, not-null or similar violation.
	KindConstraint

	// KindMissingTable / KindMissingColumn: the named object does not
	// exist in the database.
	KindMissingTable
	KindMissingColumn

	// KindUnmappedType: a Go value's type has no semantic column tag, so
	// a table schema could not be inferred.
	KindUnmappedType

	// KindUnsupported: the operation is not available on this engine.
	KindUnsupported
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidName:
		return "invalid_name"
	case KindBusy:
		return "busy"
	case KindConstraint:
		return "constraint"
	case KindMissingTable:
		return "missing_table"
	case KindMissingColumn:
		return "missing_column"
	case KindUnmappedType:
		return "unmapped_type"
	case KindUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Error is the unified store error: a kind, the operation that failed,
// and the underlying cause when one exists.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Kind.String()
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

func kindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

// IsInvalidName reports whether err stems from identifier validation.
func IsInvalidName(err error) bool { return kindOf(err) == KindInvalidName }

// IsBusy reports whether err is a lock/busy failure that survived retries.
func IsBusy(err error) bool { return kindOf(err) == KindBusy }

// IsConstraint reports whether err is a constraint violation.
func IsConstraint(err error) bool { return kindOf(err) == KindConstraint }

// IsMissingTable reports whether err names a table that does not exist.
func IsMissingTable(err error) bool { return kindOf(err) == KindMissingTable }

// IsUnsupported reports whether the engine cannot perform the operation.
func IsUnsupported(err error) bool { return kindOf(err) == KindUnsupported }
