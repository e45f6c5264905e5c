package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maraichr/pipetrack/internal/tracking"
	"github.com/maraichr/pipetrack/pkg/apierr"
)

// AdminHandler serves the operator recovery commands.
type AdminHandler struct {
	logger   *slog.Logger
	recorder *tracking.Recorder
}

func NewAdminHandler(logger *slog.Logger, recorder *tracking.Recorder) *AdminHandler {
	return &AdminHandler{logger: logger, recorder: recorder}
}

// Abort marks every non-terminal step of the execution ABORTED and the
// execution finished.
func (h *AdminHandler) Abort(w http.ResponseWriter, r *http.Request) {
	execKey, apiErr := parseExecutionKey(chi.URLParam(r, "executionKey"))
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}

	err := h.recorder.AbortExecution(r.Context(), execKey)
	if apierr.IsNotFound(err) {
		writeAPIError(w, h.logger, apierr.ExecutionNotFound())
		return
	}
	if err != nil {
		writeAPIError(w, h.logger, apierr.AbortFailed(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinishAll marks every unfinished execution finished.
func (h *AdminHandler) FinishAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.recorder.FinishAllExecutions(r.Context())
	if err != nil {
		writeAPIError(w, h.logger, apierr.FinishAllFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"finished": n})
}
