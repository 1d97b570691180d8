// Package docerr defines the error kinds shared by every layer of the PDF reader.
//
// Lower layers return *Error values; the server package is the only place that turns
// them into transport responses.
package docerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure
type Kind string

const (
	// NotFound is an unknown session id or a missing file path
	NotFound Kind = "NotFound"
	// OutOfRange is a page index outside [0, pageCount)
	OutOfRange Kind = "OutOfRange"
	// InvalidDocument is a file that exists but cannot be parsed as a PDF
	InvalidDocument Kind = "InvalidDocument"
	// IOError is an unreadable path or another filesystem failure
	IOError Kind = "IOError"
	// InvalidArgument is a missing or malformed argument
	InvalidArgument Kind = "InvalidArgument"
)

// Error is a classified failure
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "open" or "page-text"
	Op string
	// Arg names the offending argument when there is one
	Arg string
	Msg string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message())
}

// Message is the error text without the kind prefix
func (e *Error) Message() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Arg != "" {
		return fmt.Sprintf("%s (argument: %s)", msg, e.Arg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, &Error{Kind: NotFound}) works
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Arg == "" && t.Msg == "" && t.Err == nil
}

// New creates an error of the given kind
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies a lower-level error. A nil err yields nil.
func Wrap(kind Kind, op string, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Argument creates an InvalidArgument error naming the argument
func Argument(op, arg, format string, args ...any) *Error {
	return &Error{Kind: InvalidArgument, Op: op, Arg: arg, Msg: fmt.Sprintf(format, args...)}
}

// SessionNotFound is returned for ids that are unknown or already closed
func SessionNotFound(op, id string) *Error {
	return &Error{Kind: NotFound, Op: op, Arg: "pdf_id", Msg: fmt.Sprintf("no open PDF with id %q", id)}
}

// PageOutOfRange is returned for page indexes outside [0, pageCount)
func PageOutOfRange(op string, page, pageCount int) *Error {
	msg := fmt.Sprintf("page %d is out of range (document has %d pages, valid 0-%d)", page, pageCount, pageCount-1)
	if pageCount == 0 {
		msg = fmt.Sprintf("page %d is out of range (document has no pages)", page)
	}
	return &Error{Kind: OutOfRange, Op: op, Msg: msg}
}

// Cancelled classifies a context error as IOError, keeping context.Canceled and
// context.DeadlineExceeded reachable through errors.Is. A nil err yields nil.
func Cancelled(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: IOError, Op: op, Msg: "request cancelled", Err: err}
}

// KindOf returns the kind of err, or the empty Kind when err is not classified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Tagged renders err as "[Kind] message" for callers. Unclassified errors are reported as
// IOError, the catch-all for failures below the PDF libraries.
func Tagged(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return fmt.Sprintf("[%s] %s", e.Kind, e.Message())
	}
	return fmt.Sprintf("[%s] %s", IOError, err.Error())
}

// KindOrDefault is KindOf with unclassified errors reported as IOError
func KindOrDefault(err error) Kind {
	if kind := KindOf(err); kind != "" {
		return kind
	}
	return IOError
}
