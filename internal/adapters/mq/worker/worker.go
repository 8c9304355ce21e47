// Package worker evaluates a metric on queued slices and records one value
// per slice.
package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/sciperf/internal/adapters/mq/queue"
	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/domain/model"
	"github.com/okian/sciperf/internal/domain/scalar"
	"github.com/okian/sciperf/pkg/logger"
	"github.com/okian/sciperf/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Failure reasons stored on masked slices.
const (
	ReasonEmptyInput    = "empty_input"
	ReasonMissingColumn = "missing_column"
	ReasonPanic         = "panic"
	ReasonError         = "error"
	ReasonNonFinite     = "non_finite"
)

// Metric is what workers run on every slice.
type Metric interface {
	Name() string
	Run(s model.DataSlice) (scalar.Value, error)
}

// Recorder stores the outcome of one slice.
type Recorder interface {
	Record(ctx context.Context, v repository.SliceValue) error
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Worker processes tasks until its queue is drained.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown stops the worker after the task in flight.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	metric   Metric
	recorder Recorder
	name     string

	processed *atomic.Int64
	failed    *atomic.Int64

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, metric Metric, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		metric:    metric,
		recorder:  recorder,
		name:      "worker",
		processed: &atomic.Int64{},
		failed:    &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	tasks := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case t, ok := <-tasks:
			if !ok {
				return
			}
			if err := w.processTask(ctx, t); err != nil {
				w.logger.Error(ctx, "error recording slice", logger.Int64("pixel", t.Slice.PixelID), logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown implements Worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processTask evaluates one slice. A failing slice is recorded masked; only
// a recorder failure is returned.
func (w *InMemoryWorker) processTask(ctx context.Context, t queue.Task) error { //nolint:gocritic // hugeParam: Task is passed by value for channel semantics
	start := time.Now()
	value, err := w.evaluate(t.Slice.Data)
	metrics.RecordEvaluationLatency(float64(time.Since(start).Microseconds()) / 1000)
	if err == nil {
		if f := value.Float64(); math.IsNaN(f) || math.IsInf(f, 0) {
			err = errNonFinite
		}
	}
	w.processed.Add(1)

	sv := repository.SliceValue{PixelID: t.Slice.PixelID}
	if err != nil {
		reason := failureReason(err)
		sv.Masked = true
		sv.Reason = reason
		w.failed.Add(1)
		metrics.RecordSliceFailure(w.metric.Name(), reason)
		w.logger.Debug(ctx, "slice masked",
			logger.Int64("pixel", t.Slice.PixelID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	} else {
		sv.Value = value.Float64()
		metrics.RecordSliceEvaluated(w.metric.Name())
	}

	if err := w.recorder.Record(ctx, sv); err != nil {
		return fmt.Errorf("record pixel %d: %w", t.Slice.PixelID, err)
	}
	return nil
}

func (w *InMemoryWorker) evaluate(data model.DataSlice) (v scalar.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return w.metric.Run(data)
}

// errNonFinite masks a slice whose value is NaN or infinite, e.g. a
// reduction over a column holding NULL visits.
var errNonFinite = errors.New("metric value is not finite")

type panicError struct{ value any }

func (e *panicError) Error() string { return fmt.Sprintf("metric panicked: %v", e.value) }

func failureReason(err error) string {
	var p *panicError
	switch {
	case errors.As(err, &p):
		return ReasonPanic
	case errors.Is(err, model.ErrEmptyInput):
		return ReasonEmptyInput
	case errors.Is(err, model.ErrMissingColumn):
		return ReasonMissingColumn
	case errors.Is(err, errNonFinite):
		return ReasonNonFinite
	}
	return ReasonError
}

// Pool manages multiple workers sharing one queue and one metric.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed *atomic.Int64
	failed    *atomic.Int64

	logger logger.Logger
}

// NewPool creates a worker pool. A non-positive workerCount uses one worker
// per CPU.
func NewPool(workerCount int, q Queue, metric Metric, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers:   make([]*InMemoryWorker, workerCount),
		queue:     q,
		processed: &atomic.Int64{},
		failed:    &atomic.Int64{},
		logger:    logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		workerOpts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		w := NewInMemoryWorker(q, metric, recorder, workerOpts...)
		w.processed = pool.processed
		w.failed = pool.failed
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns how many slices were evaluated, failed ones included.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Failed returns how many slices were masked.
func (p *Pool) Failed() int64 { return p.failed.Load() }

// Wait blocks until every worker has returned, which happens once the queue
// is closed and drained.
func (p *Pool) Wait(ctx context.Context) error {
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			return fmt.Errorf("wait for workers: %w", ctx.Err())
		}
	}
	return nil
}

// Shutdown stops the queue if it can be stopped, then stops every worker.
// Tasks still buffered are not evaluated.
func (p *Pool) Shutdown(ctx context.Context) error {
	if stopper, ok := p.queue.(interface{ Stop() error }); ok {
		if err := stopper.Stop(); err != nil {
			p.logger.Error(ctx, "error stopping queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, err)
		}
	}
	metrics.UpdateWorkerCount(0)
	return errors.Join(errs...)
}
