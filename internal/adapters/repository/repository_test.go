package repository_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/domain/benchmark"
	"github.com/smartystreets/goconvey/convey"
)

func header(runID string) repository.MetricResult {
	return repository.MetricResult{
		RunID:     runID,
		Metric:    "Median fiveSigmaDepth",
		Column:    "fiveSigmaDepth",
		Dtype:     "float",
		Nside:     16,
		StartedAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

func TestMemoryStore(t *testing.T) {
	convey.Convey("Given an empty memory store", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()

		convey.Convey("Unknown runs are reported as not found", func() {
			_, err := store.Result(ctx, "missing")
			convey.So(errors.Is(err, repository.ErrRunNotFound), convey.ShouldBeTrue)
			convey.So(errors.Is(store.Record(ctx, "missing", repository.SliceValue{}), repository.ErrRunNotFound), convey.ShouldBeTrue)
			convey.So(errors.Is(store.SetSummary(ctx, "missing", "Mean", 1), repository.ErrRunNotFound), convey.ShouldBeTrue)
			_, err = store.Values(ctx, "missing")
			convey.So(errors.Is(err, repository.ErrRunNotFound), convey.ShouldBeTrue)
		})

		convey.Convey("When a run begins", func() {
			convey.So(store.Begin(ctx, header("r1")), convey.ShouldBeNil)

			convey.Convey("Beginning it again fails", func() {
				err := store.Begin(ctx, header("r1"))
				convey.So(errors.Is(err, repository.ErrRunExists), convey.ShouldBeTrue)
			})

			convey.Convey("Values come back ordered by pixel and later writes win", func() {
				convey.So(store.Record(ctx, "r1", repository.SliceValue{PixelID: 7, Value: 1}), convey.ShouldBeNil)
				convey.So(store.Record(ctx, "r1", repository.SliceValue{PixelID: 2, Value: 2}), convey.ShouldBeNil)
				convey.So(store.Record(ctx, "r1", repository.SliceValue{PixelID: 7, Value: 3}), convey.ShouldBeNil)

				values, err := store.Values(ctx, "r1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(values, convey.ShouldResemble, []repository.SliceValue{
					{PixelID: 2, Value: 2},
					{PixelID: 7, Value: 3},
				})
			})

			convey.Convey("Result counts masked slices and carries summaries", func() {
				_ = store.Record(ctx, "r1", repository.SliceValue{PixelID: 1, Value: 24.1})
				_ = store.Record(ctx, "r1", repository.SliceValue{PixelID: 2, Masked: true, Reason: "empty_input"})
				_ = store.SetSummary(ctx, "r1", "Mean", 24.1)
				err := store.Annotate(ctx, "r1", func(r *repository.MetricResult) {
					r.OptimalBins = 12
					r.RunID = "renamed"
				})
				convey.So(err, convey.ShouldBeNil)

				result, err := store.Result(ctx, "r1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(result.RunID, convey.ShouldEqual, "r1")
				convey.So(result.Slices, convey.ShouldEqual, 2)
				convey.So(result.Masked, convey.ShouldEqual, 1)
				convey.So(result.Summary["Mean"], convey.ShouldEqual, 24.1)
				convey.So(result.OptimalBins, convey.ShouldEqual, 12)

				result.Summary["Mean"] = 0
				again, _ := store.Result(ctx, "r1")
				convey.So(again.Summary["Mean"], convey.ShouldEqual, 24.1)
			})

			convey.Convey("Runs are listed in begin order", func() {
				_ = store.Begin(ctx, header("r0"))
				convey.So(store.Runs(ctx), convey.ShouldResemble, []string{"r1", "r0"})
			})
		})

		convey.Convey("Concurrent writers do not lose values", func() {
			convey.So(store.Begin(ctx, header("r2")), convey.ShouldBeNil)
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(base int) {
					defer wg.Done()
					for j := 0; j < 100; j++ {
						_ = store.Record(ctx, "r2", repository.SliceValue{PixelID: int64(base*100 + j)})
					}
				}(i)
			}
			wg.Wait()

			values, _ := store.Values(ctx, "r2")
			convey.So(len(values), convey.ShouldEqual, 800)
		})
	})
}

func TestYAML(t *testing.T) {
	convey.Convey("Given a finished result", t, func() {
		ctx := context.Background()
		dir := filepath.Join(t.TempDir(), "out")

		result := header(repository.NewRunID())
		result.FinishedAt = result.StartedAt.Add(time.Minute)
		result.Summary = map[string]float64{"Mean": 24.5, "Median": 24.4}
		result.OptimalBins = 9
		result.ClipMin, result.ClipMax = 23.9, 25.1
		result.Values = []repository.SliceValue{
			{PixelID: 0, Value: 24.5},
			{PixelID: 1, Masked: true, Reason: "empty_input"},
		}
		result.Slices, result.Masked = 2, 1
		values, err := benchmark.Scale(10, benchmark.Design)
		convey.So(err, convey.ShouldBeNil)
		result.Benchmark = &values

		convey.Convey("When it is written", func() {
			path, err := repository.WriteYAML(ctx, dir, &result)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the file name is derived from metric and run id", func() {
				convey.So(filepath.Base(path), convey.ShouldEqual, fmt.Sprintf("Median_fiveSigmaDepth_%s.yaml", result.RunID))
			})

			convey.Convey("Then reading it back gives the same result", func() {
				back, err := repository.ReadYAML(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(back.RunID, convey.ShouldEqual, result.RunID)
				convey.So(back.Summary, convey.ShouldResemble, result.Summary)
				convey.So(back.Values, convey.ShouldResemble, result.Values)
				convey.So(back.OptimalBins, convey.ShouldEqual, 9)
				convey.So(back.StartedAt.Equal(result.StartedAt), convey.ShouldBeTrue)
				convey.So(back.Benchmark, convey.ShouldNotBeNil)
				convey.So(back.Benchmark.NVisitsTotal, convey.ShouldEqual, result.Benchmark.NVisitsTotal)
			})
		})

		convey.Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := repository.WriteYAML(cctx, dir, &result)
			convey.So(errors.Is(err, context.Canceled), convey.ShouldBeTrue)
		})

		convey.Convey("When the directory cannot be created", func() {
			blocker := filepath.Join(t.TempDir(), "file")
			convey.So(os.WriteFile(blocker, []byte("x"), 0o600), convey.ShouldBeNil)
			_, err := repository.WriteYAML(ctx, filepath.Join(blocker, "sub"), &result)
			convey.So(errors.Is(err, repository.ErrPersist), convey.ShouldBeTrue)
		})

		convey.Convey("Reading a missing file fails", func() {
			_, err := repository.ReadYAML(filepath.Join(dir, "nope.yaml"))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestLoadDir(t *testing.T) {
	convey.Convey("Given a directory of written results", t, func() {
		ctx := context.Background()
		dir := t.TempDir()

		first := header(repository.NewRunID())
		first.Values = []repository.SliceValue{{PixelID: 4, Value: 2}, {PixelID: 5, Masked: true, Reason: "missing_column"}}
		first.Summary = map[string]float64{"Mean": 2}
		first.OptimalBins = 3
		second := header(repository.NewRunID())
		second.Metric = "Count expMJD"
		for _, r := range []*repository.MetricResult{&first, &second} {
			_, err := repository.WriteYAML(ctx, dir, r)
			convey.So(err, convey.ShouldBeNil)
		}
		convey.So(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600), convey.ShouldBeNil)

		convey.Convey("When they are loaded into a store", func() {
			store := repository.NewMemoryStore()
			n, err := repository.LoadDir(ctx, dir, store)
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 2)
			convey.So(store.Runs(ctx), convey.ShouldHaveLength, 2)

			convey.Convey("Then values, summaries and annotations survive", func() {
				got, err := store.Result(ctx, first.RunID)
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Slices, convey.ShouldEqual, 2)
				convey.So(got.Masked, convey.ShouldEqual, 1)
				convey.So(got.Summary["Mean"], convey.ShouldEqual, 2)
				convey.So(got.OptimalBins, convey.ShouldEqual, 3)
				convey.So(got.Values[1].Reason, convey.ShouldEqual, "missing_column")
			})

			convey.Convey("Then loading the same directory again reports duplicates", func() {
				_, err := repository.LoadDir(ctx, dir, store)
				convey.So(errors.Is(err, repository.ErrRunExists), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a file is not a result", func() {
			convey.So(os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("run_id: [oops"), 0o600), convey.ShouldBeNil)
			_, err := repository.LoadDir(ctx, dir, repository.NewMemoryStore())
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("An empty directory loads nothing", func() {
			n, err := repository.LoadDir(ctx, t.TempDir(), repository.NewMemoryStore())
			convey.So(err, convey.ShouldBeNil)
			convey.So(n, convey.ShouldEqual, 0)
		})
	})
}
