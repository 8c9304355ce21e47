package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrServe      = errors.New("serve results failed")
	ErrBadRequest = errors.New("bad request")
)
