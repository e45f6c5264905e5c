package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/tracking"
	"github.com/maraichr/pipetrack/pkg/apierr"
)

// RunHandler serves the rerun command surface.
type RunHandler struct {
	logger *slog.Logger
	runner *tracking.Runner
}

func NewRunHandler(logger *slog.Logger, runner *tracking.Runner) *RunHandler {
	return &RunHandler{logger: logger, runner: runner}
}

// Run requests a (re)run of a set of step types for one (dataset, attempt).
// The decision outcome maps onto the HTTP status: 201 accepted, 409 already
// running, 400 unsupported steps.
func (h *RunHandler) Run(w http.ResponseWriter, r *http.Request) {
	key, apiErr := parseDatasetKey(chi.URLParam(r, "datasetKey"))
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}
	attempt, apiErr := parseAttempt(chi.URLParam(r, "attempt"))
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}

	var req struct {
		Steps             []string `json:"steps"`
		Reason            string   `json:"reason"`
		UseLastSuccessful bool     `json:"use_last_successful"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	steps := make([]pipelines.StepType, len(req.Steps))
	for i, s := range req.Steps {
		steps[i] = pipelines.StepType(s)
	}

	resp := h.runner.RequestRun(r.Context(), tracking.RunRequest{
		DatasetKey:        key,
		Attempt:           attempt,
		Steps:             steps,
		Reason:            req.Reason,
		UseLastSuccessful: req.UseLastSuccessful,
	})

	writeJSON(w, runStatusCode(resp.Status), resp)
}

func runStatusCode(status pipelines.ResponseStatus) int {
	switch status {
	case pipelines.RunOK:
		return http.StatusCreated
	case pipelines.RunPipelineInSubmitted:
		return http.StatusConflict
	case pipelines.RunUnsupportedStep:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
