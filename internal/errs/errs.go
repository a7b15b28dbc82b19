// Package errs defines the error taxonomy shared across the pipeline core.
//
// Each stage of the pipeline (apply, compile, test) and the queue/ledger
// layers raise one of these typed errors so callers can branch on kind
// with errors.As/errors.Is instead of string-matching messages.
package errs

import "fmt"

// Kind identifies which taxonomy bucket an error belongs to.
type Kind string

const (
	KindEnvironment Kind = "environment" // missing directories, missing git repo, bad config
	KindDownload    Kind = "download"    // attachment fetch failed
	KindApply       Kind = "apply"       // patch failed to apply or merge-commit conversion failed
	KindCompile     Kind = "compile"     // configure/build failed
	KindTest        Kind = "test"        // test run failed
	KindInvalidState Kind = "invalid_state"
	KindInvalidArgument Kind = "invalid_argument"
	KindNotFound     Kind = "not_found"
)

// Error is the common shape for every taxonomy error: a kind, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, errs.EnvironmentError) style checks against the
// zero-cause sentinel for a kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinels for errors.Is comparisons against a bare kind, e.g.:
//
//	if errors.Is(err, errs.EnvironmentError) { ... }
var (
	EnvironmentError    = &Error{Kind: KindEnvironment}
	DownloadError       = &Error{Kind: KindDownload}
	ApplyError          = &Error{Kind: KindApply}
	CompileError        = &Error{Kind: KindCompile}
	TestError           = &Error{Kind: KindTest}
	InvalidStateError   = &Error{Kind: KindInvalidState}
	InvalidArgumentError = &Error{Kind: KindInvalidArgument}
	NotFoundError       = &Error{Kind: KindNotFound}
)

func NewEnvironment(format string, args ...any) *Error    { return newf(KindEnvironment, format, args...) }
func NewDownload(format string, args ...any) *Error       { return newf(KindDownload, format, args...) }
func NewApply(format string, args ...any) *Error          { return newf(KindApply, format, args...) }
func NewCompile(format string, args ...any) *Error        { return newf(KindCompile, format, args...) }
func NewTest(format string, args ...any) *Error           { return newf(KindTest, format, args...) }
func NewInvalidState(format string, args ...any) *Error   { return newf(KindInvalidState, format, args...) }
func NewInvalidArgument(format string, args ...any) *Error { return newf(KindInvalidArgument, format, args...) }
func NewNotFound(format string, args ...any) *Error       { return newf(KindNotFound, format, args...) }

func WrapEnvironment(cause error, format string, args ...any) *Error {
	return wrap(KindEnvironment, cause, format, args...)
}
func WrapDownload(cause error, format string, args ...any) *Error {
	return wrap(KindDownload, cause, format, args...)
}
func WrapApply(cause error, format string, args ...any) *Error {
	return wrap(KindApply, cause, format, args...)
}
func WrapCompile(cause error, format string, args ...any) *Error {
	return wrap(KindCompile, cause, format, args...)
}
func WrapTest(cause error, format string, args ...any) *Error {
	return wrap(KindTest, cause, format, args...)
}
