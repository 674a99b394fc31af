// Package errs defines the error kinds shared across the service and the
// helpers used to tag an error with the operation that produced it.
//
// Every error that crosses a package boundary carries exactly one kind so
// the HTTP layer can map it to a status code with errors.Is.
package errs

import (
	"errors"
	"strings"
)

// Sentinel kinds. Callers match them with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDecode     = errors.New("decode failed")
	ErrRemote     = errors.New("remote call failed")
	ErrInternal   = errors.New("internal error")
)

// kinds lists the sentinels in the order KindOf checks them.
var kinds = []error{ErrValidation, ErrNotFound, ErrDecode, ErrRemote, ErrInternal}

// Error tags an underlying error with an operation name and a kind.
type Error struct {
	Op   string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	for _, part := range []error{e.Kind, e.Err} {
		if part == nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(part.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind with no further cause.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// WrapKind tags err with op and kind. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap tags err with op and keeps whatever kind it already carries;
// untagged errors become ErrInternal.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if hasKind(err) {
		return &Error{Op: op, Err: err}
	}
	return &Error{Op: op, Kind: ErrInternal, Err: err}
}

// KindOf reports the kind carried by err, defaulting to ErrInternal.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// KindName returns a short label for the kind of err, suitable for metrics.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation"
	case ErrNotFound:
		return "not_found"
	case ErrDecode:
		return "decode"
	case ErrRemote:
		return "remote"
	default:
		return "internal"
	}
}

func hasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
