package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrorCode categorizes engine errors.
type ErrorCode string

const (
	// ErrCodeSchemaMismatch indicates an update whose value does not fit the
	// relation schema, or an update addressed to a derived relation.
	ErrCodeSchemaMismatch ErrorCode = "SCHEMA_MISMATCH"

	// ErrCodeUnknownRelation indicates a relation or arrangement that the
	// program does not declare.
	ErrCodeUnknownRelation ErrorCode = "UNKNOWN_RELATION"

	// ErrCodeGraphError indicates a program that failed validation or
	// stratification.
	ErrCodeGraphError ErrorCode = "GRAPH_ERROR"

	// ErrCodeNotRetained indicates a snapshot request on an engine built
	// without retention.
	ErrCodeNotRetained ErrorCode = "NOT_RETAINED"

	// ErrCodeNotQueryable indicates a lookup on an arrangement that is not
	// marked queryable.
	ErrCodeNotQueryable ErrorCode = "NOT_QUERYABLE"

	// ErrCodeIterationLimit indicates a recursive stratum that did not reach
	// a fixpoint within WithMaxIterations rounds. The engine is unusable
	// afterwards.
	ErrCodeIterationLimit ErrorCode = "ITERATION_LIMIT"
)

// Error is the structured error returned by every engine operation.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Relation names the affected relation or arrangement, if any.
	Relation string

	// Details contains additional context.
	Details map[string]string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Relation != "" {
		msg = fmt.Sprintf("%s (relation=%s)", msg, e.Relation)
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsSchemaMismatch reports whether err is a SCHEMA_MISMATCH error.
// Uses errors.As to handle wrapped errors.
func IsSchemaMismatch(err error) bool { return CodeOf(err) == ErrCodeSchemaMismatch }

// IsUnknownRelation reports whether err is an UNKNOWN_RELATION error.
func IsUnknownRelation(err error) bool { return CodeOf(err) == ErrCodeUnknownRelation }

// IsGraphError reports whether err is a GRAPH_ERROR.
func IsGraphError(err error) bool { return CodeOf(err) == ErrCodeGraphError }

// IsNotRetained reports whether err is a NOT_RETAINED error.
func IsNotRetained(err error) bool { return CodeOf(err) == ErrCodeNotRetained }

// IsNotQueryable reports whether err is a NOT_QUERYABLE error.
func IsNotQueryable(err error) bool { return CodeOf(err) == ErrCodeNotQueryable }

// IsIterationLimit reports whether err is an ITERATION_LIMIT error.
func IsIterationLimit(err error) bool { return CodeOf(err) == ErrCodeIterationLimit }

func newSchemaMismatch(relation, message string, cause error) *Error {
	return &Error{Code: ErrCodeSchemaMismatch, Message: message, Relation: relation, cause: cause}
}

func newUnknownRelation(what string, details map[string]string) *Error {
	return &Error{Code: ErrCodeUnknownRelation, Message: "unknown " + what, Details: details}
}

func newGraphError(cause error) *Error {
	return &Error{Code: ErrCodeGraphError, Message: "invalid program", cause: cause}
}

func newIterationLimit(relation string, stratum, rounds int) *Error {
	return &Error{
		Code:     ErrCodeIterationLimit,
		Message:  fmt.Sprintf("stratum %d did not converge within %d rounds", stratum, rounds),
		Relation: relation,
		Details: map[string]string{
			"stratum":        fmt.Sprintf("%d", stratum),
			"max_iterations": fmt.Sprintf("%d", rounds),
		},
	}
}
