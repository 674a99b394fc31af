package audio

import (
	"errors"
	"fmt"

	"github.com/okian/levitate/pkg/errs"
)

// Error kinds of this package. Every one of them is also an errs.ErrDecode.
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptySignal       = errors.New("audio contains no samples")
	ErrBadSampleRate     = errors.New("sample rate must be positive")
	ErrNonFinite         = errors.New("audio contains non-finite samples")
)

func decodeErr(op string, err error) error {
	return errs.WrapKind(op, errs.ErrDecode, err)
}

func decodeErrf(op string, kind error, format string, args ...any) error {
	return errs.WrapKind(op, errs.ErrDecode, fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
}
