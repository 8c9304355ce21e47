// Package scalar implements the simple metrics: reductions of one column of
// a slice of visits to a single value.
//
// Metrics are immutable once built and safe for concurrent use; each Run is
// independent of every other.
package scalar

import (
	"fmt"
	"math"
	"strconv"

	"github.com/okian/sciperf/internal/domain/model"
)

// Kind names a reduction.
type Kind string

// Supported reductions.
const (
	KindMean         Kind = "Mean"
	KindMedian       Kind = "Median"
	KindMin          Kind = "Min"
	KindMax          Kind = "Max"
	KindFullRange    Kind = "FullRange"
	KindSum          Kind = "Sum"
	KindCount        Kind = "Count"
	KindRms          Kind = "Rms"
	KindRobustRms    Kind = "RobustRms"
	KindPercentile   Kind = "Percentile"
	KindCoaddedDepth Kind = "CoaddedDepth"
)

// Default column names.
const (
	DefaultColumn      = model.MetricDataColumn
	DefaultDepthColumn = "fiveSigmaDepth"
)

// Dtype is the numeric type of a metric value.
type Dtype string

// Value dtypes.
const (
	DtypeFloat Dtype = "float"
	DtypeInt   Dtype = "int"
)

// Value is the result of one metric run.
type Value struct {
	dtype Dtype
	f     float64
	n     int
}

// FloatValue wraps a float result.
func FloatValue(f float64) Value { return Value{dtype: DtypeFloat, f: f} }

// IntValue wraps a count result.
func IntValue(n int) Value { return Value{dtype: DtypeInt, n: n, f: float64(n)} }

// Dtype returns the value's numeric type.
func (v Value) Dtype() Dtype { return v.dtype }

// Float64 returns the value as a float; counts convert exactly.
func (v Value) Float64() float64 { return v.f }

// Int returns the count and true for integer values.
func (v Value) Int() (int, bool) { return v.n, v.dtype == DtypeInt }

func (v Value) String() string {
	if v.dtype == DtypeInt {
		return strconv.Itoa(v.n)
	}
	return strconv.FormatFloat(v.f, 'g', -1, 64)
}

// Metric reduces one column of a DataSlice to a scalar.
type Metric interface {
	// Name is the human-readable metric name.
	Name() string
	// Column is the single input column.
	Column() string
	// Dtype is the type of the values returned by Run.
	Dtype() Dtype
	// Run evaluates the metric on one slice.
	Run(s model.DataSlice) (Value, error)
}

// reducer computes the statistic over a non-empty column.
type reducer func(values []float64) float64

// SimpleMetric is the Metric implementation shared by every reduction.
type SimpleMetric struct {
	kind       Kind
	name       string
	column     string
	percentile float64
	reduce     reducer
}

// New builds a metric of the given kind. Construction fails with a
// *model.ConfigurationError if anything but exactly one column is declared,
// if the kind is unknown, or if a percentile is outside [0, 100].
func New(kind Kind, opts ...Option) (*SimpleMetric, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	columns := o.columns
	if columns == nil {
		columns = []string{defaultColumn(kind)}
	}
	name := o.name
	if name == "" {
		name = string(kind)
	}
	if len(columns) != 1 {
		return nil, &model.ConfigurationError{
			Component: name,
			Reason:    fmt.Sprintf("simple metrics take exactly one column, got %d", len(columns)),
			Columns:   columns,
		}
	}
	if columns[0] == "" {
		return nil, &model.ConfigurationError{Component: name, Reason: "column name must not be empty"}
	}

	m := &SimpleMetric{kind: kind, name: name, column: columns[0]}
	switch kind {
	case KindMean:
		m.reduce = mean
	case KindMedian:
		m.reduce = median
	case KindMin:
		m.reduce = minimum
	case KindMax:
		m.reduce = maximum
	case KindFullRange:
		m.reduce = fullRange
	case KindSum:
		m.reduce = sum
	case KindCount:
		m.reduce = count
	case KindRms:
		m.reduce = rms
	case KindRobustRms:
		m.reduce = robustRms
	case KindCoaddedDepth:
		m.reduce = coaddedDepth
	case KindPercentile:
		if !o.percentileSet {
			return nil, &model.ConfigurationError{Component: name, Reason: "percentile metric requires a percentile"}
		}
		if math.IsNaN(o.percentile) || o.percentile < 0 || o.percentile > 100 {
			return nil, &model.ConfigurationError{
				Component: name,
				Reason:    fmt.Sprintf("percentile %g outside [0, 100]", o.percentile),
			}
		}
		m.percentile = o.percentile
		m.reduce = percentile(o.percentile)
	default:
		return nil, &model.ConfigurationError{Component: name, Reason: fmt.Sprintf("unknown metric kind %q", kind)}
	}
	return m, nil
}

// MustNew is New that panics on configuration errors. Intended for
// package-level metric tables whose configuration is static.
func MustNew(kind Kind, opts ...Option) *SimpleMetric {
	m, err := New(kind, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

func defaultColumn(kind Kind) string {
	if kind == KindCoaddedDepth {
		return DefaultDepthColumn
	}
	return DefaultColumn
}

// Name returns the metric name.
func (m *SimpleMetric) Name() string { return m.name }

// Kind returns the reduction kind.
func (m *SimpleMetric) Kind() Kind { return m.kind }

// Column returns the input column.
func (m *SimpleMetric) Column() string { return m.column }

// Percentile returns the configured percentile for KindPercentile metrics.
func (m *SimpleMetric) Percentile() float64 { return m.percentile }

// Dtype returns DtypeInt for Count and DtypeFloat otherwise.
func (m *SimpleMetric) Dtype() Dtype {
	if m.kind == KindCount {
		return DtypeInt
	}
	return DtypeFloat
}

// Run evaluates the metric. Count on an empty slice is 0; every other
// reduction fails with a *model.EmptyInputError on an empty slice.
func (m *SimpleMetric) Run(s model.DataSlice) (Value, error) {
	values, err := s.Column(m.column)
	if err != nil {
		return Value{}, fmt.Errorf("%s: %w", m.name, err)
	}
	if m.kind == KindCount {
		return IntValue(len(values)), nil
	}
	if len(values) == 0 {
		return Value{}, &model.EmptyInputError{Metric: m.name, Column: m.column}
	}
	return FloatValue(m.reduce(values)), nil
}
