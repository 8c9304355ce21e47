// Package service evaluates a metric over every slice of a sky
// tessellation and assembles the run result.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/sciperf/internal/adapters/mq/queue"
	workerpool "github.com/okian/sciperf/internal/adapters/mq/worker"
	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/scalar"
	"github.com/okian/sciperf/internal/domain/stats"
	"github.com/okian/sciperf/pkg/logger"
	"github.com/okian/sciperf/pkg/metrics"
)

const defaultQueueSize = 4096

// ErrNoSlices is returned when Evaluate is given nothing to evaluate.
var ErrNoSlices = errors.New("no slices to evaluate")

// storeRecorder binds a store to one run for the workers.
type storeRecorder struct {
	store repository.Store
	runID string
}

func (r storeRecorder) Record(ctx context.Context, v repository.SliceValue) error {
	return r.store.Record(ctx, r.runID, v)
}

// Service runs metric evaluations.
type Service struct {
	store          repository.Store
	reporter       stats.Reporter
	workerCount    int
	queueSize      int
	clipPercentile float64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the slice queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore sets the result store. The default is an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithReporter sets where binning and clipping warnings go. The default
// logs them.
func WithReporter(r stats.Reporter) Option {
	return func(s *Service) {
		if r != nil {
			s.reporter = r
		}
	}
}

// WithClipPercentile sets the percentile used for the colour range hint.
func WithClipPercentile(p float64) Option {
	return func(s *Service) {
		if p > 0 && p <= 100 {
			s.clipPercentile = p
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU(),
		queueSize:      defaultQueueSize,
		clipPercentile: stats.DefaultClipPercentile,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.reporter == nil {
		s.reporter = stats.NewLogReporter(s.logger)
	}
	return s
}

// Store returns the result store.
func (s *Service) Store() repository.Store { return s.store }

// Evaluate runs metric on every slice, then each summary metric over the
// unmasked per-slice values. A slice whose evaluation fails is masked; it
// never aborts the run.
func (s *Service) Evaluate(ctx context.Context, metric scalar.Metric, slices []model.Slice, summary ...scalar.Metric) (repository.MetricResult, error) {
	if len(slices) == 0 {
		return repository.MetricResult{}, ErrNoSlices
	}

	runID := repository.NewRunID()
	header := repository.MetricResult{
		RunID:     runID,
		Metric:    metric.Name(),
		Column:    metric.Column(),
		Dtype:     string(metric.Dtype()),
		StartedAt: time.Now().UTC(),
	}
	if err := s.store.Begin(ctx, header); err != nil {
		return repository.MetricResult{}, fmt.Errorf("begin run: %w", err)
	}

	s.logger.Info(ctx, "evaluating metric",
		logger.String("run_id", runID),
		logger.String("metric", metric.Name()),
		logger.Int("slices", len(slices)),
		logger.Int("workers", s.workerCount),
	)

	if err := s.runSlices(ctx, metric, runID, slices); err != nil {
		return repository.MetricResult{}, err
	}

	values, err := s.store.Values(ctx, runID)
	if err != nil {
		return repository.MetricResult{}, err
	}
	data := unmasked(values)

	for _, sm := range summary {
		s.summarize(ctx, runID, metric.Name(), sm, data)
	}

	nbins := stats.OptimalBins(ctx, data, stats.WithReporter(s.reporter))
	clipMin, clipMax := stats.PercentileClipping(ctx, data, s.clipPercentile, stats.WithReporter(s.reporter))

	err = s.store.Annotate(ctx, runID, func(r *repository.MetricResult) {
		r.OptimalBins = nbins
		r.ClipMin = clipMin
		r.ClipMax = clipMax
		r.FinishedAt = time.Now().UTC()
	})
	if err != nil {
		return repository.MetricResult{}, err
	}

	result, err := s.store.Result(ctx, runID)
	if err != nil {
		return repository.MetricResult{}, err
	}
	metrics.RecordRunCompleted()
	s.logger.Info(ctx, "metric evaluated",
		logger.String("run_id", runID),
		logger.Int("slices", result.Slices),
		logger.Int("masked", result.Masked),
		logger.Int("bins", nbins),
	)
	return result, nil
}

// runSlices feeds every slice through a bounded queue to a worker pool and
// waits for the pool to drain it.
func (s *Service) runSlices(ctx context.Context, metric scalar.Metric, runID string, slices []model.Slice) error {
	q := queue.NewInMemoryQueue(queue.WithCapacity(min(s.queueSize, len(slices))))
	pool := workerpool.NewPool(s.workerCount, q, metric, storeRecorder{store: s.store, runID: runID},
		workerpool.WithLogger(s.logger.Named("worker")))
	pool.Start(ctx)

	for i, sl := range slices {
		if err := q.Enqueue(ctx, queue.Task{Seq: i, Slice: sl}); err != nil {
			_ = pool.Shutdown(context.WithoutCancel(ctx))
			return fmt.Errorf("enqueue slice %d: %w", sl.PixelID, err)
		}
	}
	if err := q.Close(); err != nil {
		return err
	}
	if err := pool.Wait(ctx); err != nil {
		_ = pool.Shutdown(context.WithoutCancel(ctx))
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("evaluation interrupted: %w", err)
	}
	metrics.UpdateWorkerCount(0)

	s.logger.Debug(ctx, "slices processed",
		logger.Int64("processed", pool.Processed()),
		logger.Int64("masked", pool.Failed()),
	)
	return nil
}

func (s *Service) summarize(ctx context.Context, runID, metricName string, sm scalar.Metric, data []float64) {
	v, err := sm.Run(model.SingleColumn(model.MetricDataColumn, data))
	if errors.Is(err, model.ErrEmptyInput) {
		s.reporter.Report(ctx, stats.Warning{
			Kind:    stats.EmptyInput,
			Op:      "summary",
			Message: err.Error(),
		})
		return
	}
	if err != nil {
		s.logger.Error(ctx, "summary failed", logger.String("stat", sm.Name()), logger.Error(err))
		return
	}
	if err := s.store.SetSummary(ctx, runID, sm.Name(), v.Float64()); err != nil {
		s.logger.Error(ctx, "store summary failed", logger.String("stat", sm.Name()), logger.Error(err))
		return
	}
	metrics.UpdateSummaryValue(metricName, sm.Name(), v.Float64())
}

func unmasked(values []repository.SliceValue) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !v.Masked {
			out = append(out, v.Value)
		}
	}
	return out
}
