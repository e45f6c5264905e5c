package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maraichr/pipetrack/internal/tracking"
	"github.com/maraichr/pipetrack/pkg/apierr"
)

// ProcessHandler serves the ingestion history read surface.
type ProcessHandler struct {
	logger  *slog.Logger
	history *tracking.History
}

func NewProcessHandler(logger *slog.Logger, history *tracking.History) *ProcessHandler {
	return &ProcessHandler{logger: logger, history: history}
}

// Get returns the joined ingestion read model for one (dataset, attempt).
func (h *ProcessHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	ip, err := h.history.IngestionProcess(r.Context(), key, attempt)
	if apierr.IsNotFound(err) {
		writeAPIError(w, h.logger, apierr.ProcessNotFound())
		return
	}
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}

	writeJSON(w, http.StatusOK, ip)
}

// DatasetHistory returns the paged process history for one dataset.
func (h *ProcessHandler) DatasetHistory(w http.ResponseWriter, r *http.Request) {
	key, apiErr := parseDatasetKey(chi.URLParam(r, "datasetKey"))
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}
	limit, offset := parsePaging(r)

	page, err := h.history.DatasetHistory(r.Context(), key, limit, offset)
	if err != nil {
		writeAPIError(w, h.logger, apierr.HistoryListFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// AllHistory returns the paged process history across all datasets.
func (h *ProcessHandler) AllHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)

	page, err := h.history.AllHistory(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, h.logger, apierr.HistoryListFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Running returns processes that currently have an unfinished execution.
func (h *ProcessHandler) Running(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaging(r)

	page, err := h.history.Running(r.Context(), limit, offset)
	if err != nil {
		writeAPIError(w, h.logger, apierr.HistoryListFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// ExecutionSteps returns the steps recorded for one execution.
func (h *ProcessHandler) ExecutionSteps(w http.ResponseWriter, r *http.Request) {
	execKey, apiErr := parseExecutionKey(chi.URLParam(r, "executionKey"))
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}

	steps, err := h.history.ExecutionSteps(r.Context(), execKey)
	if apierr.IsNotFound(err) {
		writeAPIError(w, h.logger, apierr.ExecutionNotFound())
		return
	}
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// Search returns the filtered, paged step search surface.
func (h *ProcessHandler) Search(w http.ResponseWriter, r *http.Request) {
	f, apiErr := parseSearchFilter(r)
	if apiErr != nil {
		writeAPIError(w, h.logger, apiErr)
		return
	}

	page, err := h.history.Search(r.Context(), f)
	if err != nil {
		writeAPIError(w, h.logger, apierr.SearchFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, page)
}
