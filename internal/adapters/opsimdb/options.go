package opsimdb

import (
	"time"

	"github.com/okian/sciperf/pkg/logger"
)

// Option applies a configuration option to the DB.
type Option func(*DB)

// WithSummaryTable overrides the visit table name (default "Summary").
func WithSummaryTable(name string) Option {
	return func(d *DB) {
		if name != "" {
			d.tables.summary = name
		}
	}
}

// WithDistinctExpMJD controls whether FetchMetricData keeps only the first
// row of each expMJD (default true).
func WithDistinctExpMJD(distinct bool) Option {
	return func(d *DB) {
		d.distinctExpMJD = distinct
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(d *DB) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMaxOpenConns caps the connection pool. Only Open applies it.
func WithMaxOpenConns(n int) Option {
	return func(d *DB) {
		if n > 0 {
			d.maxOpenConns = n
		}
	}
}

// WithConnMaxLifetime bounds how long a pooled connection is reused. Only
// Open applies it.
func WithConnMaxLifetime(lifetime time.Duration) Option {
	return func(d *DB) {
		if lifetime > 0 {
			d.connMaxLifetime = lifetime
		}
	}
}
