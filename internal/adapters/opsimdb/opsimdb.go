// Package opsimdb reads simulated survey runs (OpSim output) from MySQL.
package opsimdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/okian/sciperf/internal/domain/dedupe"
	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/pkg/logger"
	"github.com/okian/sciperf/pkg/metrics"
)

// ExpMJDColumn identifies a visit: rows sharing an expMJD are one visit
// credited to several proposals.
const ExpMJDColumn = "expMJD"

// RunLengthParam is the Config paramName holding the run length in years.
const RunLengthParam = "nRun"

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type tables struct {
	summary            string
	config             string
	proposal           string
	obsHistory         string
	obsHistoryProposal string
}

// DB is a handle on one OpSim run database.
type DB struct {
	db     *sql.DB
	tables tables
	logger logger.Logger

	distinctExpMJD  bool
	maxOpenConns    int
	connMaxLifetime time.Duration
}

// PropIDs are the proposal ids of a run, with the wide-fast-deep and deep
// drilling subsets picked out by proposal config name.
type PropIDs struct {
	All []int
	WFD []int
	DD  []int
}

// Tags returns the WFD and DD subsets keyed by tag, for CreateSQLWhere.
func (p PropIDs) Tags() map[string][]int {
	return map[string][]int{"WFD": p.WFD, "DD": p.DD}
}

// Open connects to the database named by a go-sql-driver DSN, e.g.
// "user:pass@tcp(host:3306)/opsim".
func Open(ctx context.Context, dsn string, opts ...Option) (*DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDSN, err)
	}

	d := New(sql.OpenDB(connector), opts...)
	d.db.SetMaxOpenConns(d.maxOpenConns)
	d.db.SetMaxIdleConns(d.maxOpenConns / 2)
	d.db.SetConnMaxLifetime(d.connMaxLifetime)

	if err := d.db.PingContext(ctx); err != nil {
		_ = d.db.Close()
		return nil, fmt.Errorf("ping %s@%s/%s: %w", cfg.User, cfg.Addr, cfg.DBName, err)
	}
	d.logger.Info(ctx, "connected to simulation database",
		logger.String("addr", cfg.Addr),
		logger.String("database", cfg.DBName),
	)
	return d, nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, opts ...Option) *DB {
	d := &DB{
		db: db,
		tables: tables{
			summary:            "Summary",
			config:             "Config",
			proposal:           "Proposal",
			obsHistory:         "ObsHistory",
			obsHistoryProposal: "Obshistory_Proposal",
		},
		logger:          logger.Get().Named("opsimdb"),
		distinctExpMJD:  true,
		maxOpenConns:    10,
		connMaxLifetime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close releases the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

// FetchMetricData selects cols from the visit table, restricted by the SQL
// boolean expression constraint (without WHERE; empty for all rows). NULLs
// come back as NaN. Unless disabled, only the first row of each expMJD is
// kept; expMJD is then always part of the result.
func (d *DB) FetchMetricData(ctx context.Context, cols []string, constraint string) (model.DataSlice, error) {
	cols = slices.Clone(cols)
	if d.distinctExpMJD && !slices.Contains(cols, ExpMJDColumn) {
		cols = append(cols, ExpMJDColumn)
	}
	query, err := selectQuery(d.tables.summary, cols, constraint)
	if err != nil {
		return model.DataSlice{}, err
	}

	columns, err := d.queryFloats(ctx, "summary", query, len(cols))
	if err != nil {
		return model.DataSlice{}, err
	}
	data := make(map[string][]float64, len(cols))
	for i, name := range cols {
		data[name] = columns[i]
	}
	table, err := model.NewDataSlice(data)
	if err != nil {
		return model.DataSlice{}, err
	}
	metrics.RecordVisitsLoaded(table.Len())

	if !d.distinctExpMJD {
		return table, nil
	}
	mjd, _ := table.Column(ExpMJDColumn)
	keep := dedupe.DistinctRows(ctx, mjd)
	if dup := table.Len() - len(keep); dup > 0 {
		metrics.RecordDuplicateVisits(dup)
		d.logger.Debug(ctx, "dropped repeated visits",
			logger.Int("rows", table.Len()),
			logger.Int("duplicates", dup),
		)
		table = table.Rows(keep)
	}
	return table, nil
}

// FetchRunLength returns the simulated survey length in years.
func (d *DB) FetchRunLength(ctx context.Context) (float64, error) {
	query := fmt.Sprintf("SELECT paramValue FROM %s WHERE paramName = ?", d.tables.config)
	start := time.Now()
	var raw string
	err := d.db.QueryRowContext(ctx, query, RunLengthParam).Scan(&raw)
	observe("config", start)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s.%s", ErrNotFound, d.tables.config, RunLengthParam)
	}
	if err != nil {
		metrics.RecordDBError("config")
		return 0, fmt.Errorf("%w: run length: %w", ErrQuery, err)
	}
	years, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: run length %q: %w", ErrQuery, raw, err)
	}
	return years, nil
}

// FetchNVisits counts the visits of the run, or of the given proposals.
func (d *DB) FetchNVisits(ctx context.Context, propIDs ...int) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(expMJD) FROM %s", d.tables.obsHistory)
	if len(propIDs) > 0 {
		query = fmt.Sprintf("SELECT COUNT(expMJD) FROM %s, %s WHERE obsHistID = ObsHistory_obsHistID AND Proposal_propID IN (%s)",
			d.tables.obsHistory, d.tables.obsHistoryProposal, placeholders(len(propIDs)))
	}
	start := time.Now()
	var n int
	err := d.db.QueryRowContext(ctx, query, intArgs(propIDs)...).Scan(&n)
	observe("nvisits", start)
	if err != nil {
		metrics.RecordDBError("nvisits")
		return 0, fmt.Errorf("%w: nvisits: %w", ErrQuery, err)
	}
	return n, nil
}

// FetchPropIDs returns every proposal id. Proposals whose config name holds
// "Universal" are wide-fast-deep; those holding "deep", "Deep", "DD" or "dd"
// are deep drilling.
func (d *DB) FetchPropIDs(ctx context.Context) (PropIDs, error) {
	query := fmt.Sprintf("SELECT propID, propConf FROM %s ORDER BY propID", d.tables.proposal)
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		metrics.RecordDBError("proposals")
		return PropIDs{}, fmt.Errorf("%w: proposals: %w", ErrQuery, err)
	}
	defer rows.Close()

	var out PropIDs
	for rows.Next() {
		var id int
		var conf string
		if err := rows.Scan(&id, &conf); err != nil {
			return PropIDs{}, fmt.Errorf("%w: proposals: %w", ErrQuery, err)
		}
		out.All = append(out.All, id)
		if strings.Contains(conf, "Universal") {
			out.WFD = append(out.WFD, id)
		}
		if isDeepDrilling(conf) {
			out.DD = append(out.DD, id)
		}
	}
	observe("proposals", start)
	if err := rows.Err(); err != nil {
		metrics.RecordDBError("proposals")
		return PropIDs{}, fmt.Errorf("%w: proposals: %w", ErrQuery, err)
	}
	return out, nil
}

// FetchRequestedNVisits returns the per-filter visit counts the given
// proposals request in their configuration. Each proposal lists its filters
// ("Filter") and their visit counts ("Filter_Visits") in matching order;
// when several proposals request the same filter the largest count wins.
func (d *DB) FetchRequestedNVisits(ctx context.Context, propIDs []int) (map[string]int, error) {
	out := map[string]int{}
	if len(propIDs) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(
		"SELECT nonPropID, paramName, paramValue FROM %s WHERE paramName IN ('Filter', 'Filter_Visits') AND nonPropID IN (%s) ORDER BY nonPropID, configID",
		d.tables.config, placeholders(len(propIDs)))

	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query, intArgs(propIDs)...)
	if err != nil {
		metrics.RecordDBError("requested_nvisits")
		return nil, fmt.Errorf("%w: requested nvisits: %w", ErrQuery, err)
	}
	defer rows.Close()

	filters := map[int][]string{}
	visits := map[int][]int{}
	for rows.Next() {
		var propID int
		var name, value string
		if err := rows.Scan(&propID, &name, &value); err != nil {
			return nil, fmt.Errorf("%w: requested nvisits: %w", ErrQuery, err)
		}
		switch name {
		case "Filter":
			filters[propID] = append(filters[propID], strings.TrimSpace(value))
		case "Filter_Visits":
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("%w: proposal %d Filter_Visits %q: %w", ErrQuery, propID, value, err)
			}
			visits[propID] = append(visits[propID], n)
		}
	}
	observe("requested_nvisits", start)
	if err := rows.Err(); err != nil {
		metrics.RecordDBError("requested_nvisits")
		return nil, fmt.Errorf("%w: requested nvisits: %w", ErrQuery, err)
	}

	for propID, names := range filters {
		counts := visits[propID]
		if len(counts) != len(names) {
			return nil, fmt.Errorf("%w: proposal %d lists %d filters and %d visit counts", ErrQuery, propID, len(names), len(counts))
		}
		for i, f := range names {
			out[f] = max(out[f], counts[i])
		}
	}
	return out, nil
}

// CreateSQLWhere builds a constraint selecting the visits of the proposals
// tagged tag. With no such proposal the constraint matches nothing.
func CreateSQLWhere(tag string, propTags map[string][]int) string {
	ids := propTags[tag]
	switch len(ids) {
	case 0:
		return `propID like "NO PROP"`
	case 1:
		return fmt.Sprintf("propID = %d", ids[0])
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("propID = %d", id)
	}
	return "(" + strings.Join(parts, " or ") + ")"
}

func (d *DB) queryFloats(ctx context.Context, name, query string, ncols int) ([][]float64, error) {
	start := time.Now()
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		metrics.RecordDBError(name)
		return nil, fmt.Errorf("%w: %s: %w", ErrQuery, name, err)
	}
	defer rows.Close()

	out := make([][]float64, ncols)
	scan := make([]sql.NullFloat64, ncols)
	dest := make([]any, ncols)
	for i := range scan {
		dest[i] = &scan[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrQuery, name, err)
		}
		for i, v := range scan {
			if v.Valid {
				out[i] = append(out[i], v.Float64)
			} else {
				out[i] = append(out[i], math.NaN())
			}
		}
	}
	observe(name, start)
	if err := rows.Err(); err != nil {
		metrics.RecordDBError(name)
		return nil, fmt.Errorf("%w: %s: %w", ErrQuery, name, err)
	}
	return out, nil
}

func selectQuery(table string, cols []string, constraint string) (string, error) {
	if len(cols) == 0 {
		return "", fmt.Errorf("%w: no columns requested", ErrInvalidColumn)
	}
	for _, c := range cols {
		if !identifier.MatchString(c) {
			return "", fmt.Errorf("%w: %q", ErrInvalidColumn, c)
		}
	}
	query := "SELECT " + strings.Join(cols, ", ") + " FROM " + table
	if c := strings.TrimSpace(constraint); c != "" {
		query += " WHERE " + c
	}
	return query, nil
}

func isDeepDrilling(conf string) bool {
	for _, s := range []string{"deep", "Deep", "DD", "dd"} {
		if strings.Contains(conf, s) {
			return true
		}
	}
	return false
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func intArgs(ids []int) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func observe(query string, start time.Time) {
	metrics.RecordDBQueryLatency(query, float64(time.Since(start).Microseconds())/1000)
}
