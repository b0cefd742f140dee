package solver

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies solver failures. The kind is part of the wire
// protocol: it is serialized into the error envelope that the process
// prints on a failed request.
type ErrorKind string

const (
	// ErrorKindInvalidRequest marks malformed or missing wire fields,
	// caught before the resolver engine is touched.
	ErrorKindInvalidRequest ErrorKind = "InvalidRequest"

	// ErrorKindRepo marks a repository that could not be configured or
	// loaded.
	ErrorKindRepo ErrorKind = "RepoError"

	// ErrorKindNoRepos marks a request that ended up with zero enabled
	// repositories after setup.
	ErrorKindNoRepos ErrorKind = "NoReposError"

	// ErrorKindMarking marks a package spec that could not be found or
	// marked for installation.
	ErrorKindMarking ErrorKind = "MarkingError"

	// ErrorKindDepsolve marks a resolution that ran but failed, or
	// succeeded with an empty final transaction.
	ErrorKindDepsolve ErrorKind = "DepsolveError"

	// ErrorKindGPGKeyRead marks a GPG key path or URL that could not be
	// read.
	ErrorKindGPGKeyRead ErrorKind = "GPGKeyReadError"

	// ErrorKindNoRHSMSubscriptions marks a host without usable
	// entitlement data, or a failed per-URL secret lookup.
	ErrorKindNoRHSMSubscriptions ErrorKind = "NoRHSMSubscriptionsError"

	// ErrorKindInternal marks anything that is not one of the above.
	ErrorKindInternal ErrorKind = "InternalError"
)

// Error is the only error type this subsystem produces. The reason text
// is part of the contract: callers string-match on it, so wording must
// not change between releases.
type Error struct {
	Kind   ErrorKind `json:"kind"`
	Reason string    `json:"reason"`
}

func (e Error) Error() string {
	return e.Reason
}

// Is reports kind equality so that errors.Is(err, solver.Error{Kind: k})
// can be used to test for a class of failure regardless of the reason.
func (e Error) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

func newError(kind ErrorKind, format string, args ...interface{}) error {
	return Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

func InvalidRequestError(format string, args ...interface{}) error {
	return newError(ErrorKindInvalidRequest, format, args...)
}

func RepoError(format string, args ...interface{}) error {
	return newError(ErrorKindRepo, format, args...)
}

func NoReposError(format string, args ...interface{}) error {
	return newError(ErrorKindNoRepos, format, args...)
}

func MarkingError(format string, args ...interface{}) error {
	return newError(ErrorKindMarking, format, args...)
}

func DepsolveError(format string, args ...interface{}) error {
	return newError(ErrorKindDepsolve, format, args...)
}

func GPGKeyReadError(format string, args ...interface{}) error {
	return newError(ErrorKindGPGKeyRead, format, args...)
}

func NoRHSMSubscriptionsError(format string, args ...interface{}) error {
	return newError(ErrorKindNoRHSMSubscriptions, format, args...)
}

func InternalError(format string, args ...interface{}) error {
	return newError(ErrorKindInternal, format, args...)
}

// KindOf returns the error kind of err, or ErrorKindInternal if err is
// not a solver Error.
func KindOf(err error) ErrorKind {
	var e Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorKindInternal
}

// MarshalError renders err as the wire error envelope.
func MarshalError(err error) []byte {
	var e Error
	if !errors.As(err, &e) {
		e = Error{Kind: ErrorKindInternal, Reason: err.Error()}
	}
	data, marshalErr := json.Marshal(e)
	if marshalErr != nil {
		return []byte(fmt.Sprintf(`{"kind":"InternalError","reason":%q}`, err.Error()))
	}
	return data
}
