package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okian/sciperf/internal/adapters/opsimdb"
	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/adapters/slicer"
	app "github.com/okian/sciperf/internal/app"
	"github.com/okian/sciperf/internal/config"
	"github.com/okian/sciperf/internal/domain/benchmark"
	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/scalar"
	"github.com/okian/sciperf/internal/domain/stats"
	"github.com/okian/sciperf/pkg/logger"
	"github.com/okian/sciperf/pkg/metrics"
)

// visitSource is the part of the simulation database a run reads.
type visitSource interface {
	FetchRunLength(ctx context.Context) (float64, error)
	FetchPropIDs(ctx context.Context) (opsimdb.PropIDs, error)
	FetchNVisits(ctx context.Context, propIDs ...int) (int, error)
	FetchRequestedNVisits(ctx context.Context, propIDs []int) (map[string]int, error)
	FetchMetricData(ctx context.Context, cols []string, constraint string) (model.DataSlice, error)
	Close() error
}

// openSource is replaced in tests.
var openSource = func(ctx context.Context, dsn string, cfg *config.Config) (visitSource, error) { //nolint:gochecknoglobals // test seam
	db, err := opsimdb.Open(ctx, dsn,
		opsimdb.WithSummaryTable(cfg.SummaryTable),
		opsimdb.WithDistinctExpMJD(cfg.DistinctExpMJD),
		opsimdb.WithMaxOpenConns(cfg.MaxOpenConns),
		opsimdb.WithConnMaxLifetime(cfg.ConnMaxLifetime),
		opsimdb.WithLogger(logger.Get().Named("opsimdb")),
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1) //nolint:gocritic // exitAfterDefer: stop is called above
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	flags := config.New()

	cmd := &cobra.Command{
		Use:   "sciperf <dsn>",
		Short: "Evaluate a science performance metric over an OpSim run",
		Long: "sciperf reads the visits of an OpSim simulation database, slices them on a " +
			"HEALPix grid, evaluates one metric per sky cell and writes the result as YAML.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd, flags, runOverrides())
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], stdout)
		},
	}
	cmd.AddCommand(newServeCmd())

	f := cmd.Flags()
	f.StringVar(&flags.OutDir, "out-dir", flags.OutDir, "directory for result files")
	f.IntVar(&flags.Nside, "nside", flags.Nside, "HEALPix resolution, a power of two")
	f.StringVar(&flags.Benchmark, "benchmark", flags.Benchmark, "benchmark profile: design, stretch or requested")
	f.StringVar(&flags.Metric, "metric", flags.Metric, "metric kind, e.g. Count, Median, CoaddedDepth")
	f.StringVar(&flags.Column, "column", flags.Column, "visit column the metric reduces")
	f.Float64Var(&flags.Percentile, "percentile", flags.Percentile, "percentile for the Percentile metric")
	f.StringVar(&flags.SQL, "sql", flags.SQL, "SQL constraint on the visits, without WHERE")
	f.StringVar(&flags.Prop, "prop", flags.Prop, "proposals to evaluate: all, WFD or DD")
	f.StringVar(&flags.LonCol, "lon-col", flags.LonCol, "longitude column, radians")
	f.StringVar(&flags.LatCol, "lat-col", flags.LatCol, "latitude column, radians")
	f.BoolVar(&flags.Degrees, "degrees", flags.Degrees, "coordinate columns hold degrees")
	f.IntVar(&flags.MaxOpenConns, "max-open-conns", flags.MaxOpenConns, "database connection pool size")
	f.DurationVar(&flags.ConnMaxLifetime, "conn-max-lifetime", flags.ConnMaxLifetime, "maximum lifetime of a database connection")
	f.StringVar(&flags.MetricsFile, "metrics-file", flags.MetricsFile, "write Prometheus metrics to this file")
	f.IntVar(&flags.WorkerCount, "workers", flags.WorkerCount, "slice evaluation workers")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "debug, info, warn or error")
	f.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "text or json")
	return cmd
}

// setup loads the configuration, applies the flags set on cmd through
// overrides, validates the result and initializes logging.
func setup(cmd *cobra.Command, flags *config.Config, overrides map[string]override) (*config.Config, error) {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg, flags, overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.InitWithWriter(cmd.ErrOrStderr(), cfg.LogFormat); err != nil {
		return nil, err
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(cmd.Context(), "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	return cfg, nil
}

// override copies one flag value from flags to cfg.
type override func(cfg, flags *config.Config)

// commonOverrides are the flags every command defines.
func commonOverrides() map[string]override {
	return map[string]override{
		"out-dir":    func(cfg, flags *config.Config) { cfg.OutDir = flags.OutDir },
		"log-level":  func(cfg, flags *config.Config) { cfg.LogLevel = flags.LogLevel },
		"log-format": func(cfg, flags *config.Config) { cfg.LogFormat = flags.LogFormat },
	}
}

// runOverrides are the flags of the root command.
func runOverrides() map[string]override {
	o := commonOverrides()
	o["nside"] = func(cfg, flags *config.Config) { cfg.Nside = flags.Nside }
	o["benchmark"] = func(cfg, flags *config.Config) { cfg.Benchmark = flags.Benchmark }
	o["metric"] = func(cfg, flags *config.Config) { cfg.Metric = flags.Metric }
	o["column"] = func(cfg, flags *config.Config) { cfg.Column = flags.Column }
	o["percentile"] = func(cfg, flags *config.Config) { cfg.Percentile = flags.Percentile }
	o["sql"] = func(cfg, flags *config.Config) { cfg.SQL = flags.SQL }
	o["prop"] = func(cfg, flags *config.Config) { cfg.Prop = flags.Prop }
	o["lon-col"] = func(cfg, flags *config.Config) { cfg.LonCol = flags.LonCol }
	o["lat-col"] = func(cfg, flags *config.Config) { cfg.LatCol = flags.LatCol }
	o["degrees"] = func(cfg, flags *config.Config) { cfg.Degrees = flags.Degrees }
	o["max-open-conns"] = func(cfg, flags *config.Config) { cfg.MaxOpenConns = flags.MaxOpenConns }
	o["conn-max-lifetime"] = func(cfg, flags *config.Config) { cfg.ConnMaxLifetime = flags.ConnMaxLifetime }
	o["metrics-file"] = func(cfg, flags *config.Config) { cfg.MetricsFile = flags.MetricsFile }
	o["workers"] = func(cfg, flags *config.Config) { cfg.WorkerCount = flags.WorkerCount }
	return o
}

// applyFlags copies the flags set on the command line over cfg.
func applyFlags(cmd *cobra.Command, cfg, flags *config.Config, overrides map[string]override) {
	for name, apply := range overrides {
		if cmd.Flags().Changed(name) {
			apply(cfg, flags)
		}
	}
}

// buildMetric turns the configured kind and column into a metric.
func buildMetric(cfg *config.Config) (*scalar.SimpleMetric, error) {
	kind := scalar.Kind(cfg.Metric)
	opts := []scalar.Option{
		scalar.WithColumns(cfg.Column),
		scalar.WithMetricName(fmt.Sprintf("%s %s", cfg.Metric, cfg.Column)),
	}
	if kind == scalar.KindPercentile {
		opts = append(opts, scalar.WithPercentile(cfg.Percentile))
	}
	return scalar.New(kind, opts...)
}

func run(ctx context.Context, cfg *config.Config, dsn string, stdout io.Writer) error {
	log := logger.Get().Named("sciperf")

	metric, err := buildMetric(cfg)
	if err != nil {
		return err
	}
	profile, err := benchmark.ParseProfile(cfg.Benchmark)
	if err != nil {
		return err
	}
	hpOpts := []slicer.Option{
		slicer.WithLonCol(cfg.LonCol),
		slicer.WithLatCol(cfg.LatCol),
		slicer.WithReporter(stats.NewLogReporter(logger.Get().Named("slicer"))),
	}
	if cfg.Degrees {
		hpOpts = append(hpOpts, slicer.WithDegrees())
	}
	hp, err := slicer.NewHealpix(cfg.Nside, hpOpts...)
	if err != nil {
		return err
	}

	src, err := openSource(ctx, dsn, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Warn(ctx, "closing database", logger.Error(err))
		}
	}()

	runLength, err := src.FetchRunLength(ctx)
	if err != nil {
		return err
	}
	ids, err := src.FetchPropIDs(ctx)
	if err != nil {
		return err
	}
	bench, err := scaleBenchmark(ctx, src, ids, runLength, profile)
	if err != nil {
		return err
	}
	propIDs, constraint := proposalFilter(cfg.Prop, cfg.SQL, ids)
	bench.NVisitsRun, err = countVisits(ctx, src, cfg.Prop, propIDs)
	if err != nil {
		return err
	}

	cols := []string{cfg.LonCol, cfg.LatCol}
	if !slices.Contains(cols, metric.Column()) {
		cols = append(cols, metric.Column())
	}
	visits, err := src.FetchMetricData(ctx, cols, constraint)
	if err != nil {
		return err
	}
	cells, err := hp.Slice(ctx, visits)
	if err != nil {
		return err
	}
	log.Info(ctx, "visits sliced",
		logger.String("prop", cfg.Prop),
		logger.Int("visits", visits.Len()),
		logger.Int("run_visits", bench.NVisitsRun),
		logger.Int("cells", len(cells)),
		logger.Int64("pixels", hp.NPix()),
	)

	svc := app.New(
		app.WithLogger(logger.Get().Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithClipPercentile(cfg.ClipPercentile),
	)
	result, err := svc.Evaluate(ctx, metric, cells, scalar.CommonSummary()...)
	if err != nil {
		return err
	}
	result.Nside = hp.Nside()
	result.Constraint = constraint
	result.Benchmark = &bench

	path, err := repository.WriteYAML(ctx, cfg.OutDir, &result)
	if err != nil {
		return err
	}
	log.Info(ctx, "result written", logger.String("path", path))
	_, _ = fmt.Fprintln(stdout, path)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

// scaleBenchmark scales the benchmark targets to the run length. The
// requested profile takes its visit counts from the wide-fast-deep
// proposals of the run.
func scaleBenchmark(ctx context.Context, src visitSource, ids opsimdb.PropIDs, runLength float64, profile benchmark.Profile) (benchmark.Values, error) {
	if profile != benchmark.Requested {
		return benchmark.Scale(runLength, profile)
	}
	requested, err := src.FetchRequestedNVisits(ctx, ids.WFD)
	if err != nil {
		return benchmark.Values{}, err
	}
	return benchmark.Scale(runLength, profile, benchmark.WithRequestedVisits(requested))
}

// proposalFilter returns the proposal ids selected by prop and the visit
// constraint restricting sql to them. PropAll selects every visit and
// leaves sql as given.
func proposalFilter(prop, sql string, ids opsimdb.PropIDs) ([]int, string) {
	var selected []int
	switch prop {
	case config.PropWFD:
		selected = ids.WFD
	case config.PropDD:
		selected = ids.DD
	default:
		return nil, sql
	}
	where := opsimdb.CreateSQLWhere(prop, ids.Tags())
	if sql == "" {
		return selected, where
	}
	return selected, fmt.Sprintf("(%s) and %s", sql, where)
}

// countVisits counts the visits the run performed in the selected
// proposals. A proposal group with no proposals performed none.
func countVisits(ctx context.Context, src visitSource, prop string, propIDs []int) (int, error) {
	if prop != config.PropAll && len(propIDs) == 0 {
		return 0, nil
	}
	return src.FetchNVisits(ctx, propIDs...)
}
