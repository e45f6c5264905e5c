package tracking

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/registry"
	"github.com/maraichr/pipetrack/internal/store"
)

// IngestionProcess is the read model served to operators: one process joined
// with the crawler's view of the same attempt and the dataset's display title.
type IngestionProcess struct {
	DatasetKey   uuid.UUID             `json:"dataset_key"`
	DatasetTitle string                `json:"dataset_title,omitempty"`
	Attempt      int                   `json:"attempt"`
	CrawlStatus  *registry.CrawlStatus `json:"crawl_status,omitempty"`
	Process      pipelines.Process     `json:"process"`
}

// ProcessPage is a paged process listing.
type ProcessPage struct {
	Count   int64               `json:"count"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
	Results []pipelines.Process `json:"results"`
}

// SearchPage is a paged step search result.
type SearchPage struct {
	Count   int64                `json:"count"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
	Results []store.SearchResult `json:"results"`
}

// History answers read queries over the ingestion record. It owns no state:
// every answer is assembled from the store and the registry collaborators at
// call time.
type History struct {
	store    store.ProcessStore
	crawls   registry.CrawlStatusProvider
	datasets registry.DatasetService
}

func NewHistory(st store.ProcessStore, crawls registry.CrawlStatusProvider, datasets registry.DatasetService) *History {
	return &History{store: st, crawls: crawls, datasets: datasets}
}

// IngestionProcess joins the crawl status, the pipeline process and the
// dataset title for one (dataset, attempt). It returns store.ErrNotFound when
// either the crawl side or the process side has no record yet; "no history
// yet" is a valid state, not a failure.
func (h *History) IngestionProcess(ctx context.Context, datasetKey uuid.UUID, attempt int) (*IngestionProcess, error) {
	crawl, err := h.crawls.CrawlStatus(ctx, datasetKey, attempt)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	proc, err := h.store.GetProcess(ctx, datasetKey, attempt)
	if err != nil {
		return nil, err
	}

	out := &IngestionProcess{
		DatasetKey:  datasetKey,
		Attempt:     attempt,
		CrawlStatus: crawl,
		Process:     *proc,
	}

	// The title is decoration; a missing dataset record doesn't hide the
	// ingestion history.
	if ds, err := h.datasets.Dataset(ctx, datasetKey); err == nil {
		out.DatasetTitle = ds.Title
	}
	return out, nil
}

// DatasetHistory returns the paged process history for one dataset, newest
// first.
func (h *History) DatasetHistory(ctx context.Context, datasetKey uuid.UUID, limit, offset int) (*ProcessPage, error) {
	f := store.ListFilter{DatasetKey: &datasetKey, Limit: limit, Offset: offset}
	return h.page(ctx, f)
}

// AllHistory returns the paged process history across all datasets, newest
// first.
func (h *History) AllHistory(ctx context.Context, limit, offset int) (*ProcessPage, error) {
	return h.page(ctx, store.ListFilter{Limit: limit, Offset: offset})
}

// Running returns processes that currently have an unfinished execution.
func (h *History) Running(ctx context.Context, limit, offset int) (*ProcessPage, error) {
	return h.page(ctx, store.ListFilter{Running: true, Limit: limit, Offset: offset})
}

func (h *History) page(ctx context.Context, f store.ListFilter) (*ProcessPage, error) {
	procs, err := h.store.ListProcesses(ctx, f)
	if err != nil {
		return nil, err
	}
	count, err := h.store.CountProcesses(ctx, f)
	if err != nil {
		return nil, err
	}
	if procs == nil {
		procs = []pipelines.Process{}
	}
	return &ProcessPage{Count: count, Limit: f.Limit, Offset: f.Offset, Results: procs}, nil
}

// ExecutionSteps returns the steps of one execution, or store.ErrNotFound.
func (h *History) ExecutionSteps(ctx context.Context, executionKey int64) ([]pipelines.Step, error) {
	ex, err := h.store.GetExecution(ctx, executionKey)
	if err != nil {
		return nil, err
	}
	return ex.Steps, nil
}

// Search returns the paged, filtered step search surface.
func (h *History) Search(ctx context.Context, f store.SearchFilter) (*SearchPage, error) {
	results, err := h.store.SearchSteps(ctx, f)
	if err != nil {
		return nil, err
	}
	count, err := h.store.CountSteps(ctx, f)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	return &SearchPage{Count: count, Limit: f.Limit, Offset: f.Offset, Results: results}, nil
}

// LatestSuccessfulIngest returns the most recent successful run of a step type
// within the process, or store.ErrNotFound when none exists.
func (h *History) LatestSuccessfulIngest(ctx context.Context, datasetKey uuid.UUID, attempt int, stepType pipelines.StepType) (*pipelines.Step, error) {
	proc, err := h.store.GetProcess(ctx, datasetKey, attempt)
	if err != nil {
		return nil, err
	}
	st, ok := LatestSuccessfulStep(proc, stepType)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &st, nil
}

// LatestSuccessfulStep walks the executions newest-first and, within the first
// execution whose stepsToRun includes the type and that holds COMPLETED steps
// of it, returns the one with the earliest start. The earliest-start tie-break
// mirrors long-standing operator-visible behavior; do not change it without a
// product decision.
func LatestSuccessfulStep(proc *pipelines.Process, stepType pipelines.StepType) (pipelines.Step, bool) {
	execs := make([]*pipelines.Execution, 0, len(proc.Executions))
	for i := range proc.Executions {
		execs = append(execs, &proc.Executions[i])
	}
	sort.Slice(execs, func(i, j int) bool {
		return execs[i].Created.After(execs[j].Created)
	})

	for _, ex := range execs {
		if !containsStepType(ex.StepsToRun, stepType) {
			continue
		}
		var found *pipelines.Step
		for i := range ex.Steps {
			st := &ex.Steps[i]
			if st.Type != stepType || st.Status != pipelines.StatusCompleted {
				continue
			}
			if found == nil || st.Started.Before(found.Started) {
				found = st
			}
		}
		if found != nil {
			return *found, true
		}
	}
	return pipelines.Step{}, false
}

func containsStepType(steps []pipelines.StepType, st pipelines.StepType) bool {
	for _, s := range steps {
		if s == st {
			return true
		}
	}
	return false
}
