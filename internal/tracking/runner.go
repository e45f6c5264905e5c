package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/registry"
	"github.com/maraichr/pipetrack/internal/store"
)

// JobPublisher enqueues step instructions for the compute cluster.
type JobPublisher interface {
	Publish(ctx context.Context, msg StepInstruction) (string, error)
}

// RunRequest is an inbound request to (re)run a set of step types for one
// (dataset, attempt).
type RunRequest struct {
	DatasetKey uuid.UUID
	Attempt    int
	Steps      []pipelines.StepType
	Reason     string

	// UseLastSuccessful skips expanded step types whose output is already
	// current in the latest execution. Requested types are never skipped.
	UseLastSuccessful bool

	// Expanded marks the step set as already expanded; internal callers that
	// replay a previously accepted set use it to bypass the graph.
	Expanded bool
}

// Runner validates and authorizes rerun requests. It decides, it does not
// execute: an accepted request appends an execution record and enqueues one
// instruction per step, then returns without waiting for the work.
type Runner struct {
	store    store.ProcessStore
	datasets registry.DatasetService
	jobs     JobPublisher
	logger   *slog.Logger
}

func NewRunner(st store.ProcessStore, datasets registry.DatasetService, jobs JobPublisher, logger *slog.Logger) *Runner {
	return &Runner{store: st, datasets: datasets, jobs: jobs, logger: logger}
}

// RequestRun decides a rerun request and returns the outcome. Mutual exclusion
// with concurrent requests for the same (dataset, attempt) is delegated to the
// store's AppendExecution; a lost race comes back as PIPELINE_IN_SUBMITTED.
func (r *Runner) RequestRun(ctx context.Context, req RunRequest) pipelines.RunResponse {
	if len(req.Steps) == 0 {
		return pipelines.RunResponse{
			Status:  pipelines.RunError,
			Message: "no steps requested",
		}
	}

	if failed := unsupportedSteps(req.Steps); len(failed) > 0 {
		return pipelines.RunResponse{
			Status:      pipelines.RunUnsupportedStep,
			StepsFailed: failed,
			Message:     fmt.Sprintf("unsupported step types: %v", failed),
		}
	}

	accepted := req.Steps
	if !req.Expanded {
		category, err := r.datasetCategory(ctx, req.DatasetKey)
		if err != nil {
			return pipelines.RunResponse{
				Status:  pipelines.RunError,
				Message: fmt.Sprintf("dataset lookup failed: %v", err),
			}
		}
		accepted = pipelines.Expand(req.Steps, category)
	}

	if req.UseLastSuccessful {
		accepted = r.dropCurrentSteps(ctx, req, accepted)
	}

	execKey, err := r.store.AppendExecution(ctx, req.DatasetKey, req.Attempt, pipelines.NewExecution{
		StepsToRun:  accepted,
		RerunReason: req.Reason,
	})
	switch {
	case errors.Is(err, store.ErrExecutionRunning):
		return pipelines.RunResponse{
			Status:  pipelines.RunPipelineInSubmitted,
			Message: "an execution is already running for this process",
		}
	case err != nil:
		r.logger.Error("append execution", slog.String("error", err.Error()),
			slog.String("dataset_key", req.DatasetKey.String()),
			slog.Int("attempt", req.Attempt))
		return pipelines.RunResponse{
			Status:  pipelines.RunError,
			Message: "could not create execution",
		}
	}

	var published []pipelines.StepType
	var failed []pipelines.StepType
	for _, st := range accepted {
		_, err := r.jobs.Publish(ctx, StepInstruction{
			DatasetKey:   req.DatasetKey,
			Attempt:      req.Attempt,
			ExecutionKey: execKey,
			StepType:     st,
			Reason:       req.Reason,
		})
		if err != nil {
			r.logger.Error("publish step instruction", slog.String("error", err.Error()),
				slog.Int64("execution_key", execKey),
				slog.String("step_type", string(st)))
			failed = append(failed, st)
			continue
		}
		published = append(published, st)
	}

	if len(published) == 0 {
		return pipelines.RunResponse{
			Status:       pipelines.RunError,
			ExecutionKey: execKey,
			StepsFailed:  failed,
			Message:      "no step instruction could be enqueued",
		}
	}

	return pipelines.RunResponse{
		Status:       pipelines.RunOK,
		ExecutionKey: execKey,
		Steps:        accepted,
		StepsFailed:  failed,
	}
}

// datasetCategory resolves the dataset's category for expansion. An unknown
// dataset expands with occurrence rules only.
func (r *Runner) datasetCategory(ctx context.Context, datasetKey uuid.UUID) (pipelines.Category, error) {
	ds, err := r.datasets.Dataset(ctx, datasetKey)
	if errors.Is(err, registry.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ds.Category, nil
}

// dropCurrentSteps removes expansion-added step types whose latest run already
// completed in the process's newest execution. Explicitly requested types are
// kept so an operator can always force a step. Any lookup failure keeps the
// full set; skipping is an optimization, never a correctness requirement.
func (r *Runner) dropCurrentSteps(ctx context.Context, req RunRequest, accepted []pipelines.StepType) []pipelines.StepType {
	proc, err := r.store.GetProcess(ctx, req.DatasetKey, req.Attempt)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("skip check failed", slog.String("error", err.Error()),
				slog.String("dataset_key", req.DatasetKey.String()))
		}
		return accepted
	}
	latest := proc.LatestExecution()
	if latest == nil {
		return accepted
	}

	requested := make(map[pipelines.StepType]bool, len(req.Steps))
	for _, st := range req.Steps {
		requested[st] = true
	}

	kept := accepted[:0:0]
	for _, st := range accepted {
		if !requested[st] && stepCompletedIn(latest, st) {
			continue
		}
		kept = append(kept, st)
	}
	return kept
}

func stepCompletedIn(ex *pipelines.Execution, st pipelines.StepType) bool {
	for i := range ex.Steps {
		if ex.Steps[i].Type == st && ex.Steps[i].Status == pipelines.StatusCompleted {
			return true
		}
	}
	return false
}

func unsupportedSteps(steps []pipelines.StepType) []pipelines.StepType {
	var failed []pipelines.StepType
	for _, st := range steps {
		if !st.Supported() {
			failed = append(failed, st)
		}
	}
	return failed
}
