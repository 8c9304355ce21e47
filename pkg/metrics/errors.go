package metrics

import (
	"errors"
	"fmt"
)

// Sentinel kinds for metrics errors.
var (
	ErrExport = errors.New("metrics export failed")
)

// errorf wraps a formatted error under ErrExport.
func errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrExport, fmt.Errorf(format, args...))
}
