// Package outcome provides the consolidated rail-call result type
// shared by every payment rail and the executor: each rail function
// returns one of Success, NonFinal or Final instead of alternating
// (bool, error) shapes.
package outcome

import "github.com/zappool/paycalc/internal/ledger"

// Outcome is a tagged rail-call result carrying either a success value
// or a classified failure.
type Outcome[T any] struct {
	kind  outcomeKind
	value T
	code  ledger.ErrorCode
	err   string
}

type outcomeKind int

const (
	kindSuccess outcomeKind = iota
	kindNonFinal
	kindFinal
)

// Success builds a successful outcome carrying value.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{kind: kindSuccess, value: value}
}

// NonFinal builds a retryable-failure outcome.
func NonFinal[T any](code ledger.ErrorCode, reason string) Outcome[T] {
	return Outcome[T]{kind: kindNonFinal, code: code, err: reason}
}

// Final builds a terminal-failure outcome.
func Final[T any](code ledger.ErrorCode, reason string) Outcome[T] {
	return Outcome[T]{kind: kindFinal, code: code, err: reason}
}

func (o Outcome[T]) IsSuccess() bool  { return o.kind == kindSuccess }
func (o Outcome[T]) IsNonFinal() bool { return o.kind == kindNonFinal }
func (o Outcome[T]) IsFinal() bool    { return o.kind == kindFinal }

// Value returns the success payload; callers must check IsSuccess first.
func (o Outcome[T]) Value() T { return o.value }

// Code returns the carried error code (zero value ErrOK on success).
func (o Outcome[T]) Code() ledger.ErrorCode { return o.code }

// Reason returns the carried error string ("" on success).
func (o Outcome[T]) Reason() string { return o.err }

// Rewrap carries a non-success Outcome's classification across to a
// different payload type (the payload is discarded on failure anyway).
func Rewrap[From, To any](o Outcome[From]) Outcome[To] {
	if o.IsFinal() {
		return Final[To](o.Code(), o.Reason())
	}
	return NonFinal[To](o.Code(), o.Reason())
}
