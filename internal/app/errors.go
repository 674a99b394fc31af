package service

import "errors"

// Sentinel causes surfaced by the service. Each is wrapped with an errs kind.
var (
	ErrMissingStore         = errors.New("object store is required")
	ErrMissingGenerator     = errors.New("image generator is required")
	ErrTooLarge             = errors.New("upload exceeds size limit")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrInvalidKey           = errors.New("invalid object key")
	ErrUnknownBucket        = errors.New("unknown bucket")
	ErrHistoryDisabled      = errors.New("generation history is disabled")
)
