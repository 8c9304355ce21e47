package api

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/okian/sciperf/internal/adapters/repository"
	"github.com/okian/sciperf/internal/domain/benchmark"
)

// runSummary is the list shape of a run. Non-finite numbers are null.
type runSummary struct {
	RunID       string              `json:"run_id"`
	Metric      string              `json:"metric"`
	Column      string              `json:"column"`
	Dtype       string              `json:"dtype"`
	Nside       int                 `json:"nside,omitempty"`
	Constraint  string              `json:"sql_constraint,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
	Slices      int                 `json:"slices"`
	Masked      int                 `json:"masked"`
	Summary     map[string]*float64 `json:"summary,omitempty"`
	OptimalBins int                 `json:"optimal_bins"`
	ClipMin     *float64            `json:"clip_min"`
	ClipMax     *float64            `json:"clip_max"`
}

type sliceValue struct {
	Pixel  int64    `json:"pixel"`
	Value  *float64 `json:"value"`
	Masked bool     `json:"masked,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

type runDetail struct {
	runSummary
	Benchmark *benchmark.Values `json:"benchmark,omitempty"`
	Values    []sliceValue      `json:"values,omitempty"`
}

type listResponse struct {
	Runs []runSummary `json:"runs"`
}

// RunsHandler handles result queries.
type RunsHandler struct {
	results Results
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(results Results) *RunsHandler {
	return &RunsHandler{results: results}
}

// HandleList handles GET /runs.
func (h *RunsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	ids := h.results.Runs(r.Context())
	resp := listResponse{Runs: make([]runSummary, 0, len(ids))}
	for _, id := range ids {
		res, err := h.results.Result(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err)
			return
		}
		resp.Runs = append(resp.Runs, summarize(&res))
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /runs/{run_id}. Per-slice values are included
// unless values=false is passed.
func (h *RunsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	res, err := h.results.Result(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}

	detail := runDetail{runSummary: summarize(&res), Benchmark: res.Benchmark}
	if r.URL.Query().Get("values") != "false" {
		detail.Values = make([]sliceValue, len(res.Values))
		for i, v := range res.Values {
			detail.Values[i] = sliceValue{Pixel: v.PixelID, Masked: v.Masked, Reason: v.Reason}
			if !v.Masked {
				detail.Values[i].Value = finite(v.Value)
			}
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func summarize(res *repository.MetricResult) runSummary {
	out := runSummary{
		RunID:       res.RunID,
		Metric:      res.Metric,
		Column:      res.Column,
		Dtype:       res.Dtype,
		Nside:       res.Nside,
		Constraint:  res.Constraint,
		StartedAt:   res.StartedAt,
		FinishedAt:  res.FinishedAt,
		Slices:      res.Slices,
		Masked:      res.Masked,
		OptimalBins: res.OptimalBins,
		ClipMin:     finite(res.ClipMin),
		ClipMax:     finite(res.ClipMax),
	}
	if len(res.Summary) > 0 {
		out.Summary = make(map[string]*float64, len(res.Summary))
		for stat, v := range res.Summary {
			out.Summary[stat] = finite(v)
		}
	}
	return out
}

// finite returns nil for NaN and infinities, which JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
