package repository

import "errors"

// Sentinel kinds for result store errors.
var (
	ErrRunNotFound = errors.New("run not found")
	ErrRunExists   = errors.New("run already exists")
	ErrPersist     = errors.New("persist result failed")
)
