package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
)

var (
	// ErrNotFound is returned by point reads when no record exists. Callers
	// must treat it as "nothing known yet", not as a failure.
	ErrNotFound = errors.New("store: not found")

	// ErrExecutionRunning is returned by AppendExecution when the process
	// already has an unfinished execution.
	ErrExecutionRunning = errors.New("store: execution already running")
)

// ListFilter selects processes for history listings.
type ListFilter struct {
	DatasetKey *uuid.UUID
	Running    bool
	Limit      int
	Offset     int
}

// SearchFilter selects steps for the search surface. All fields are optional
// and combined with AND.
type SearchFilter struct {
	DatasetKey  *uuid.UUID
	Status      *pipelines.Status
	StepType    *pipelines.StepType
	StartedMin  *time.Time
	StartedMax  *time.Time
	FinishedMin *time.Time
	FinishedMax *time.Time
	RerunReason string
	Version     string
	Limit       int
	Offset      int
}

// SearchResult is one row of the step search surface.
type SearchResult struct {
	DatasetKey   uuid.UUID      `json:"dataset_key"`
	Attempt      int            `json:"attempt"`
	ExecutionKey int64          `json:"execution_key"`
	RerunReason  string         `json:"rerun_reason,omitempty"`
	Step         pipelines.Step `json:"step"`
}

// ProcessStore is the durable keyed storage for pipeline processes,
// executions and steps. It is the single source of truth; components perform
// no caching on top of it.
//
// Implementations carry two atomicity obligations:
//
//   - AppendExecution must check for an unfinished execution and create the
//     new one as a single atomic decision per (datasetKey, attempt), so two
//     concurrent rerun requests cannot both succeed.
//   - RecordStep must apply the step update and re-evaluate the execution's
//     finished state against the full current step set in the same
//     transaction, so concurrent completions of the last two steps still
//     produce exactly one finished transition.
type ProcessStore interface {
	// CreateProcessIfAbsent idempotently creates the process for the pair and
	// returns its key whether or not it already existed.
	CreateProcessIfAbsent(ctx context.Context, datasetKey uuid.UUID, attempt int) (int64, error)

	// GetProcess returns the process with all executions and steps, or
	// ErrNotFound.
	GetProcess(ctx context.Context, datasetKey uuid.UUID, attempt int) (*pipelines.Process, error)

	// GetExecution returns one execution with its steps, or ErrNotFound.
	GetExecution(ctx context.Context, executionKey int64) (*pipelines.Execution, error)

	// ListProcesses returns processes matching the filter, newest first.
	ListProcesses(ctx context.Context, f ListFilter) ([]pipelines.Process, error)

	// CountProcesses returns the total matching the filter, ignoring paging.
	CountProcesses(ctx context.Context, f ListFilter) (int64, error)

	// SearchSteps returns step rows matching the filter, newest first.
	SearchSteps(ctx context.Context, f SearchFilter) ([]SearchResult, error)

	// CountSteps returns the total matching the filter, ignoring paging.
	CountSteps(ctx context.Context, f SearchFilter) (int64, error)

	// AppendExecution creates the process if absent and appends a new
	// execution, or returns ErrExecutionRunning when the process has an
	// unfinished one.
	AppendExecution(ctx context.Context, datasetKey uuid.UUID, attempt int, exec pipelines.NewExecution) (int64, error)

	// CreateExecutionIfAbsent idempotently creates the process for the pair and
	// an execution under the caller-supplied key. Used for executions first seen
	// on the event stream, whose keys were issued by the producing system. A
	// no-op when the execution already exists.
	CreateExecutionIfAbsent(ctx context.Context, datasetKey uuid.UUID, attempt int, executionKey int64, exec pipelines.NewExecution) error

	// RecordStep upserts the (execution, step type) step per the forward-only
	// rule and marks the execution finished when every step type in its
	// stepsToRun has reached a terminal status. Returns ErrNotFound when the
	// execution does not exist.
	RecordStep(ctx context.Context, executionKey int64, rec pipelines.StepRecord) error

	// MarkExecutionAborted marks all non-terminal steps of the execution
	// ABORTED and the execution finished. Operator crash recovery.
	MarkExecutionAborted(ctx context.Context, executionKey int64) error

	// MarkAllExecutionsFinished marks every unfinished execution finished and
	// returns how many were updated. Operator crash recovery.
	MarkAllExecutionsFinished(ctx context.Context) (int64, error)
}
