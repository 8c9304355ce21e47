package model

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds shared by the metric and benchmark packages.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrEmptyInput    = errors.New("empty input")
	ErrMissingColumn = errors.New("missing column")
	ErrColumnLength  = errors.New("column length mismatch")
)

// ConfigurationError is returned at construction time when a component is
// configured in a way it can never run, e.g. a single-column metric given
// several columns or an unknown benchmark profile.
type ConfigurationError struct {
	Component string
	Reason    string
	Columns   []string
}

func (e *ConfigurationError) Error() string {
	msg := e.Component + ": " + e.Reason
	if len(e.Columns) > 0 {
		msg += " (columns: " + strings.Join(e.Columns, ", ") + ")"
	}
	return msg
}

// Unwrap lets errors.Is match ErrConfiguration.
func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// EmptyInputError reports a reduction invoked on a slice with no rows.
type EmptyInputError struct {
	Metric string
	Column string
}

func (e *EmptyInputError) Error() string {
	return fmt.Sprintf("%s: no data in column %q", e.Metric, e.Column)
}

// Unwrap lets errors.Is match ErrEmptyInput.
func (e *EmptyInputError) Unwrap() error { return ErrEmptyInput }
