package stats

import (
	"context"

	"github.com/okian/sciperf/pkg/logger"
	"github.com/okian/sciperf/pkg/metrics"
)

// WarningKind classifies a non-fatal data quality diagnostic.
type WarningKind string

// Warning kinds.
const (
	// EmptyInput: no usable data remained after masking or range filtering.
	EmptyInput WarningKind = "empty_input"
	// DegenerateNumeric: a computed quantity was not a number.
	DegenerateNumeric WarningKind = "degenerate_numeric"
	// Clamped: a computed bin count fell outside the configured limits.
	Clamped WarningKind = "clamped"
	// InvalidCoordinates: rows without a usable sky position were skipped.
	InvalidCoordinates WarningKind = "invalid_coordinates"
)

// Warning is one diagnostic emitted by a utility. Fallback is the value the
// utility returned instead of the computed one.
type Warning struct {
	Kind     WarningKind
	Op       string
	Message  string
	Fallback float64
}

// Reporter receives diagnostics. Implementations must be safe for
// concurrent use.
type Reporter interface {
	Report(ctx context.Context, w Warning)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, w Warning)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, w Warning) { f(ctx, w) }

// Discard drops every warning.
var Discard Reporter = ReporterFunc(func(context.Context, Warning) {})

type logReporter struct {
	logger logger.Logger
}

// NewLogReporter returns a Reporter that logs each warning at warn level and
// counts it in sciperf_maf_diagnostics_warnings_total.
func NewLogReporter(l logger.Logger) Reporter {
	return &logReporter{logger: l}
}

func (r *logReporter) Report(ctx context.Context, w Warning) {
	metrics.RecordDiagnostic(string(w.Kind))
	r.logger.Warn(ctx, w.Message,
		logger.String("kind", string(w.Kind)),
		logger.String("op", w.Op),
		logger.Float64("fallback", w.Fallback),
	)
}
