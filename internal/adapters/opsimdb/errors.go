package opsimdb

import "errors"

// Sentinel kinds for simulation database errors.
var (
	ErrInvalidDSN    = errors.New("invalid data source name")
	ErrInvalidColumn = errors.New("invalid column identifier")
	ErrNotFound      = errors.New("value not found")
	ErrQuery         = errors.New("query failed")
)
