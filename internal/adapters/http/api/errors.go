package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrMissingFile = errors.New("missing multipart field \"file\"")
	ErrBadBody     = errors.New("malformed request body")
	ErrBadLimit    = errors.New("limit must be an integer between 1 and 100")
)
