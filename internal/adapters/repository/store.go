// Package repository keeps metric results: per-slice values, summary
// statistics and run metadata, in memory and as YAML files.
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/okian/sciperf/internal/domain/benchmark"
)

// SliceValue is the metric value of one sky cell. A masked value carries
// the reason the evaluation failed instead of a number.
type SliceValue struct {
	PixelID int64   `yaml:"pixel"`
	Value   float64 `yaml:"value"`
	Masked  bool    `yaml:"masked,omitempty"`
	Reason  string  `yaml:"reason,omitempty"`
}

// MetricResult is the outcome of evaluating one metric over every slice.
type MetricResult struct {
	RunID      string    `yaml:"run_id"`
	Metric     string    `yaml:"metric"`
	Column     string    `yaml:"column"`
	Dtype      string    `yaml:"dtype"`
	Nside      int       `yaml:"nside,omitempty"`
	Constraint string    `yaml:"sql_constraint,omitempty"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at,omitempty"`

	Slices int `yaml:"slices"`
	Masked int `yaml:"masked"`

	Summary     map[string]float64 `yaml:"summary,omitempty"`
	OptimalBins int                `yaml:"optimal_bins,omitempty"`
	ClipMin     float64            `yaml:"clip_min"`
	ClipMax     float64            `yaml:"clip_max"`

	Benchmark *benchmark.Values `yaml:"benchmark,omitempty"`
	Values    []SliceValue      `yaml:"values"`
}

// Store provides read/write access to metric results.
type Store interface {
	// Begin registers a run from its header. RunID must be unique.
	Begin(ctx context.Context, header MetricResult) error

	// Record stores the value of one slice. A later value for the same pixel
	// replaces the earlier one.
	Record(ctx context.Context, runID string, v SliceValue) error

	// Values returns the slice values ordered by pixel id.
	Values(ctx context.Context, runID string) ([]SliceValue, error)

	// SetSummary stores one summary statistic.
	SetSummary(ctx context.Context, runID, stat string, value float64) error

	// Annotate edits the run header under the store lock.
	Annotate(ctx context.Context, runID string, fn func(*MetricResult)) error

	// Result assembles the header, values and summary of a run.
	Result(ctx context.Context, runID string) (MetricResult, error)

	// Runs lists run ids in the order they began.
	Runs(ctx context.Context) []string
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}
