package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/registry"
	"github.com/maraichr/pipetrack/internal/store/memory"
	"github.com/maraichr/pipetrack/internal/tracking"
	"github.com/maraichr/pipetrack/pkg/apierr"
)

type stubRegistry struct {
	dataset *registry.Dataset
	crawl   *registry.CrawlStatus
}

func (s *stubRegistry) Dataset(ctx context.Context, key uuid.UUID) (*registry.Dataset, error) {
	if s.dataset == nil {
		return nil, registry.ErrNotFound
	}
	return s.dataset, nil
}

func (s *stubRegistry) CrawlStatus(ctx context.Context, key uuid.UUID, attempt int) (*registry.CrawlStatus, error) {
	if s.crawl == nil {
		return nil, registry.ErrNotFound
	}
	return s.crawl, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withURLParams(req *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierr.ErrorResponse {
	t.Helper()
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestProcessHandler_Get_InvalidDatasetKey(t *testing.T) {
	ph := NewProcessHandler(testLogger(), tracking.NewHistory(memory.New(), &stubRegistry{}, &stubRegistry{}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/not-a-uuid/1", nil)
	req = withURLParams(req, map[string]string{"datasetKey": "not-a-uuid", "attempt": "1"})
	w := httptest.NewRecorder()

	ph.Get(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidDatasetKey {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidDatasetKey, resp.Error.Code)
	}
}

func TestProcessHandler_Get_NotFound(t *testing.T) {
	ph := NewProcessHandler(testLogger(), tracking.NewHistory(memory.New(), &stubRegistry{}, &stubRegistry{}))
	key := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/"+key.String()+"/99", nil)
	req = withURLParams(req, map[string]string{"datasetKey": key.String(), "attempt": "99"})
	w := httptest.NewRecorder()

	ph.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeProcessNotFound {
		t.Errorf("expected code %s, got %s", apierr.CodeProcessNotFound, resp.Error.Code)
	}
}

func TestProcessHandler_Get_JoinsReadModel(t *testing.T) {
	st := memory.New()
	key := uuid.New()
	ctx := context.Background()

	if _, err := st.AppendExecution(ctx, key, 1, pipelines.NewExecution{
		StepsToRun: []pipelines.StepType{pipelines.StepFragmenter},
	}); err != nil {
		t.Fatalf("append execution: %v", err)
	}

	reg := &stubRegistry{
		dataset: &registry.Dataset{Key: key, Title: "Bird observations"},
		crawl:   &registry.CrawlStatus{DatasetKey: key, Attempt: 1, State: "FINISHED"},
	}
	ph := NewProcessHandler(testLogger(), tracking.NewHistory(st, reg, reg))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/"+key.String()+"/1", nil)
	req = withURLParams(req, map[string]string{"datasetKey": key.String(), "attempt": "1"})
	w := httptest.NewRecorder()

	ph.Get(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var ip tracking.IngestionProcess
	if err := json.NewDecoder(w.Body).Decode(&ip); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if ip.DatasetTitle != "Bird observations" {
		t.Errorf("title = %q", ip.DatasetTitle)
	}
	if len(ip.Process.Executions) != 1 {
		t.Errorf("executions = %d, want 1", len(ip.Process.Executions))
	}
}

func TestProcessHandler_Search_InvalidStatus(t *testing.T) {
	ph := NewProcessHandler(testLogger(), tracking.NewHistory(memory.New(), &stubRegistry{}, &stubRegistry{}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/search?status=MAYBE", nil)
	w := httptest.NewRecorder()

	ph.Search(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidSearchFilter {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidSearchFilter, resp.Error.Code)
	}
}

func TestProcessHandler_Search_FiltersByStatus(t *testing.T) {
	st := memory.New()
	key := uuid.New()
	ctx := context.Background()

	exKey, err := st.AppendExecution(ctx, key, 1, pipelines.NewExecution{
		StepsToRun: []pipelines.StepType{pipelines.StepFragmenter, pipelines.StepHdfsView},
	})
	if err != nil {
		t.Fatalf("append execution: %v", err)
	}
	now := time.Now().UTC()
	for stp, status := range map[pipelines.StepType]pipelines.Status{
		pipelines.StepFragmenter: pipelines.StatusCompleted,
		pipelines.StepHdfsView:   pipelines.StatusFailed,
	} {
		if err := st.RecordStep(ctx, exKey, pipelines.StepRecord{
			ExecutionKey: exKey, Type: stp, Status: status, Timestamp: now,
		}); err != nil {
			t.Fatalf("record step: %v", err)
		}
	}

	ph := NewProcessHandler(testLogger(), tracking.NewHistory(st, &stubRegistry{}, &stubRegistry{}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/search?status=FAILED", nil)
	w := httptest.NewRecorder()

	ph.Search(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var page tracking.SearchPage
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if page.Count != 1 {
		t.Fatalf("count = %d, want 1", page.Count)
	}
	if got := page.Results[0].Step.Type; got != pipelines.StepHdfsView {
		t.Errorf("step type = %s, want %s", got, pipelines.StepHdfsView)
	}
}

func TestProcessHandler_ExecutionSteps_NotFound(t *testing.T) {
	ph := NewProcessHandler(testLogger(), tracking.NewHistory(memory.New(), &stubRegistry{}, &stubRegistry{}))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/pipelines/executions/7/steps", nil)
	req = withURLParams(req, map[string]string{"executionKey": "7"})
	w := httptest.NewRecorder()

	ph.ExecutionSteps(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeExecutionNotFound {
		t.Errorf("expected code %s, got %s", apierr.CodeExecutionNotFound, resp.Error.Code)
	}
}
