// Package failure holds the error kinds a synchronisation run can end with.
// Every error names the entity and the state it failed in, and wraps its cause.
package failure

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind string

const (
	KindUnknown                  Kind = "Unknown"
	SourceUnavailable            Kind = "SourceUnavailable"
	SourceDataError              Kind = "SourceDataError"
	StoreUnavailable             Kind = "StoreUnavailable"
	ClassificationIntegrityError Kind = "ClassificationIntegrityError"
	ApplyPartialFailure          Kind = "ApplyPartialFailure"
)

// Error is a classified failure for one entity.
type Error struct {
	Kind   Kind
	Entity string
	State  string
	Apply  *ApplyDetail // set for ApplyPartialFailure only
	cause  error
}

// ApplyDetail holds the row counts reached inside the production transaction before it failed
// and whether the rollback restored production.
type ApplyDetail struct {
	Deleted    int64
	Inserted   int64
	RolledBack bool
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%v: entity %v failed at state %v", e.Kind, e.Entity, e.State)
	if e.Apply != nil {
		msg += fmt.Sprintf(" (deleted=%v inserted=%v rolledBack=%v)", e.Apply.Deleted, e.Apply.Inserted, e.Apply.RolledBack)
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// New returns a classified error with a stack trace.
func New(kind Kind, entity string, state string, msg string) error {
	return &Error{Kind: kind, Entity: entity, State: state, cause: errors.New(msg)}
}

// Wrap classifies err. A nil err yields nil.
// An err that is already classified keeps its original kind.
func Wrap(err error, kind Kind, entity string, state string, msg string) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindUnknown {
		return errors.WithMessage(err, msg)
	}
	return &Error{Kind: kind, Entity: entity, State: state, cause: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, kind Kind, entity string, state string, format string, args ...interface{}) error {
	return Wrap(err, kind, entity, state, fmt.Sprintf(format, args...))
}

// NewApplyError builds an ApplyPartialFailure.
func NewApplyError(err error, entity string, state string, deleted, inserted int64, rolledBack bool) error {
	return &Error{
		Kind:   ApplyPartialFailure,
		Entity: entity,
		State:  state,
		Apply:  &ApplyDetail{Deleted: deleted, Inserted: inserted, RolledBack: rolledBack},
		cause:  errors.WithStack(err),
	}
}

// KindOf returns the kind of the first classified error in the chain.
func KindOf(err error) Kind {
	if e := As(err); e != nil {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// As returns the first classified error in the chain, or nil.
func As(err error) *Error {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e
		}
		err = unwrap(err)
	}
	return nil
}

// unwrap follows both pkg/errors causes and standard library wrapping.
func unwrap(err error) error {
	switch x := err.(type) {
	case interface{ Unwrap() error }:
		return x.Unwrap()
	case interface{ Cause() error }:
		return x.Cause()
	}
	return nil
}
