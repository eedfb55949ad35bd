package app

import "errors"

// Kind classifies an operation failure. Business-rule violations are expected
// outcomes and must stay distinguishable from transport or storage failures.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindUnavailable
	KindLimitExceeded
)

// Error is a tagged, user-facing operation failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func ValidationError(msg string) error { return &Error{Kind: KindValidation, Message: msg} }
func Unauthenticated(msg string) error { return &Error{Kind: KindUnauthenticated, Message: msg} }
func Forbidden(msg string) error       { return &Error{Kind: KindForbidden, Message: msg} }
func NotFound(msg string) error        { return &Error{Kind: KindNotFound, Message: msg} }
func Conflict(msg string) error        { return &Error{Kind: KindConflict, Message: msg} }
func Unavailable(msg string) error     { return &Error{Kind: KindUnavailable, Message: msg} }
func LimitExceeded(msg string) error   { return &Error{Kind: KindLimitExceeded, Message: msg} }

// KindOf extracts the failure kind; anything untagged is internal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}
