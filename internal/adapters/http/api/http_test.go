package api_test

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/okian/sciperf/internal/adapters/http/api"
	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/domain/benchmark"
	. "github.com/smartystreets/goconvey/convey"
)

func seededStore(ctx context.Context) *repository.MemoryStore {
	store := repository.NewMemoryStore()
	_ = store.Begin(ctx, repository.MetricResult{RunID: "run-a", Metric: "Count expMJD", Column: "metricdata", Dtype: "float"})
	_ = store.Record(ctx, "run-a", repository.SliceValue{PixelID: 3, Value: 12})
	_ = store.Record(ctx, "run-a", repository.SliceValue{PixelID: 1, Value: 4})
	_ = store.Record(ctx, "run-a", repository.SliceValue{PixelID: 2, Masked: true, Reason: "empty_input"})
	_ = store.SetSummary(ctx, "run-a", "Mean", 8)
	_ = store.SetSummary(ctx, "run-a", "Rms", math.NaN())
	bench, _ := benchmark.Scale(10, benchmark.Design)
	_ = store.Annotate(ctx, "run-a", func(r *repository.MetricResult) {
		r.OptimalBins = 2
		r.ClipMin = 4
		r.ClipMax = math.Inf(1)
		r.Benchmark = &bench
	})

	_ = store.Begin(ctx, repository.MetricResult{RunID: "run-b", Metric: "Median fiveSigmaDepth", Column: "metricdata"})
	return store
}

func newTestServer(store api.Results) *httptest.Server {
	mux := http.NewServeMux()
	api.NewServer(store).Register(context.Background(), mux)
	return httptest.NewServer(mux)
}

func getJSON(url string, out any) (int, error) {
	resp, err := http.Get(url) //nolint:noctx // test helper
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func TestRunsAPI(t *testing.T) {
	Convey("Given a server over a seeded result store", t, func() {
		ctx := context.Background()
		srv := newTestServer(seededStore(ctx))
		defer srv.Close()

		Convey("GET /runs lists runs in evaluation order", func() {
			var body struct {
				Runs []map[string]any `json:"runs"`
			}
			code, err := getJSON(srv.URL+"/runs", &body)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, http.StatusOK)
			So(body.Runs, ShouldHaveLength, 2)
			So(body.Runs[0]["run_id"], ShouldEqual, "run-a")
			So(body.Runs[0]["slices"], ShouldEqual, float64(3))
			So(body.Runs[0]["masked"], ShouldEqual, float64(1))
			So(body.Runs[1]["run_id"], ShouldEqual, "run-b")
		})

		Convey("GET /runs/{id} returns values sorted by pixel", func() {
			var body map[string]any
			code, err := getJSON(srv.URL+"/runs/run-a", &body)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, http.StatusOK)

			values, ok := body["values"].([]any)
			So(ok, ShouldBeTrue)
			So(values, ShouldHaveLength, 3)
			first := values[0].(map[string]any)
			So(first["pixel"], ShouldEqual, float64(1))
			So(first["value"], ShouldEqual, float64(4))
			masked := values[1].(map[string]any)
			So(masked["masked"], ShouldBeTrue)
			So(masked["reason"], ShouldEqual, "empty_input")
			So(masked["value"], ShouldBeNil)

			Convey("non-finite numbers are reported as null", func() {
				summary := body["summary"].(map[string]any)
				So(summary["Mean"], ShouldEqual, float64(8))
				So(summary["Rms"], ShouldBeNil)
				So(body["clip_min"], ShouldEqual, float64(4))
				So(body["clip_max"], ShouldBeNil)
			})

			Convey("the benchmark is attached", func() {
				bench := body["benchmark"].(map[string]any)
				So(bench["profile"], ShouldEqual, "design")
				So(bench["nvisits_total"], ShouldEqual, float64(825))
			})
		})

		Convey("values=false omits per-slice values", func() {
			var body map[string]any
			code, err := getJSON(srv.URL+"/runs/run-a?values=false", &body)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, http.StatusOK)
			So(body, ShouldNotContainKey, "values")
		})

		Convey("unknown runs give 404", func() {
			var body map[string]string
			code, err := getJSON(srv.URL+"/runs/missing", &body)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, http.StatusNotFound)
			So(body["code"], ShouldEqual, "not_found")
		})

		Convey("nested paths give 400", func() {
			var body map[string]string
			code, err := getJSON(srv.URL+"/runs/run-a/extra", &body)
			So(err, ShouldBeNil)
			So(code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("non-GET methods are rejected", func() {
			resp, err := http.Post(srv.URL+"/runs", "application/json", nil) //nolint:noctx // test
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("GET /healthz serves metrics", func() {
			resp, err := http.Get(srv.URL + "/healthz") //nolint:noctx // test
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
		})
	})
}

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler that writes a status", t, func() {
		h := api.MetricsMiddleware(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
			_, _ = w.Write([]byte("x"))
		}, "test")

		Convey("the status passes through", func() {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			So(rec.Code, ShouldEqual, http.StatusTeapot)
			So(rec.Body.String(), ShouldEqual, "x")
		})
	})
}
