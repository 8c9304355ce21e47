// Package config defines process configuration and its loading.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/okian/sciperf/internal/domain/benchmark"
	"github.com/okian/sciperf/pkg/healpix"
)

// Proposal groups accepted by Config.Prop.
const (
	PropAll = "all"
	PropWFD = "WFD"
	PropDD  = "DD"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding on stderr: text or json.
	LogFormat string `koanf:"log_format"`

	// OutDir receives one YAML file per evaluated metric.
	OutDir string `koanf:"out_dir"`

	// Nside is the HEALPix resolution of the slicer.
	Nside int `koanf:"nside"`

	// Benchmark names the benchmark profile: design, stretch or requested.
	Benchmark string `koanf:"benchmark"`

	// WorkerCount sets the number of slice evaluation workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the in-memory slice queue.
	QueueSize int `koanf:"queue_size"`

	// LonCol and LatCol are the visit coordinate columns, in radians.
	LonCol string `koanf:"lon_col"`
	LatCol string `koanf:"lat_col"`

	// SummaryTable is the visit table of the simulation database.
	SummaryTable string `koanf:"summary_table"`

	// DistinctExpMJD drops repeated visits sharing an exposure time.
	DistinctExpMJD bool `koanf:"distinct_expmjd"`

	// MaxOpenConns and ConnMaxLifetime size the database pool.
	MaxOpenConns    int           `koanf:"max_open_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`

	// Prop restricts the visits to one proposal group: all, WFD or DD.
	Prop string `koanf:"prop"`

	// Degrees reads LonCol and LatCol as degrees instead of radians.
	Degrees bool `koanf:"degrees"`

	// MetricsFile, when set, receives the Prometheus registry in text format.
	MetricsFile string `koanf:"metrics_file"`

	// Metric is the reduction kind evaluated per slice, e.g. Count or Median.
	Metric string `koanf:"metric"`

	// Column is the visit column the metric reduces.
	Column string `koanf:"column"`

	// Percentile is used by the Percentile metric.
	Percentile float64 `koanf:"percentile"`

	// ClipPercentile sets the colour range hint of the result.
	ClipPercentile float64 `koanf:"clip_percentile"`

	// SQL is an optional WHERE constraint on the visit query.
	SQL string `koanf:"sql"`

	// Addr is the listen address of the serve command.
	Addr string `koanf:"addr"`
}

// New creates a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		OutDir:          "./Out",
		Nside:           128,
		Benchmark:       string(benchmark.Design),
		WorkerCount:     runtime.NumCPU(),
		QueueSize:       4096,
		LonCol:          "fieldRA",
		LatCol:          "fieldDec",
		SummaryTable:    "Summary",
		DistinctExpMJD:  true,
		MaxOpenConns:    10,
		ConnMaxLifetime: 5 * time.Minute,
		Prop:            PropAll,
		Metric:          "Count",
		Column:          "expMJD",
		Percentile:      50,
		ClipPercentile:  95,
		Addr:            ":9080",
	}
}

// Validate reports the first setting the run cannot start with.
func (c *Config) Validate() error {
	switch {
	case !healpix.ValidNside(c.Nside):
		return fmt.Errorf("%w: nside %d is not a power of two in [1, %d]", ErrInvalidConfig, c.Nside, healpix.MaxNside)
	case c.WorkerCount < 0:
		return fmt.Errorf("%w: worker_count must not be negative", ErrInvalidConfig)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.OutDir == "":
		return fmt.Errorf("%w: out_dir must not be empty", ErrInvalidConfig)
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.MaxOpenConns < 1:
		return fmt.Errorf("%w: max_open_conns must be positive", ErrInvalidConfig)
	case c.ConnMaxLifetime < 0:
		return fmt.Errorf("%w: conn_max_lifetime must not be negative", ErrInvalidConfig)
	case c.LonCol == "" || c.LatCol == "":
		return fmt.Errorf("%w: lon_col and lat_col must not be empty", ErrInvalidConfig)
	case c.Column == "":
		return fmt.Errorf("%w: column must not be empty", ErrInvalidConfig)
	case c.Percentile < 0 || c.Percentile > 100:
		return fmt.Errorf("%w: percentile %g outside [0, 100]", ErrInvalidConfig, c.Percentile)
	case c.ClipPercentile <= 0 || c.ClipPercentile > 100:
		return fmt.Errorf("%w: clip_percentile %g outside (0, 100]", ErrInvalidConfig, c.ClipPercentile)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	switch c.Prop {
	case PropAll, PropWFD, PropDD:
	default:
		return fmt.Errorf("%w: prop %q is not all, WFD or DD", ErrInvalidConfig, c.Prop)
	}
	if _, err := benchmark.ParseProfile(c.Benchmark); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
