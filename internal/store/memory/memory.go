package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/store"
)

// Store is a mutex-guarded in-memory ProcessStore. It implements the same
// atomicity contract as the Postgres store (one lock covers every
// check-and-mutate path) and backs unit tests and local development.
type Store struct {
	mu sync.Mutex

	processes  map[int64]*processRow
	byDataset  map[processKey]int64
	executions map[int64]*executionRow

	nextProcessKey   int64
	nextExecutionKey int64
	nextStepKey      int64
}

type processKey struct {
	datasetKey uuid.UUID
	attempt    int
}

type processRow struct {
	key        int64
	datasetKey uuid.UUID
	attempt    int
	created    time.Time
	executions []int64
}

type executionRow struct {
	processKey int64
	execution  pipelines.Execution
}

func New() *Store {
	return &Store{
		processes:  make(map[int64]*processRow),
		byDataset:  make(map[processKey]int64),
		executions: make(map[int64]*executionRow),
	}
}

func (s *Store) CreateProcessIfAbsent(ctx context.Context, datasetKey uuid.UUID, attempt int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createProcessLocked(datasetKey, attempt), nil
}

func (s *Store) createProcessLocked(datasetKey uuid.UUID, attempt int) int64 {
	pk := processKey{datasetKey, attempt}
	if key, ok := s.byDataset[pk]; ok {
		return key
	}
	s.nextProcessKey++
	row := &processRow{
		key:        s.nextProcessKey,
		datasetKey: datasetKey,
		attempt:    attempt,
		created:    time.Now().UTC(),
	}
	s.processes[row.key] = row
	s.byDataset[pk] = row.key
	return row.key
}

func (s *Store) GetProcess(ctx context.Context, datasetKey uuid.UUID, attempt int) (*pipelines.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byDataset[processKey{datasetKey, attempt}]
	if !ok {
		return nil, store.ErrNotFound
	}
	p := s.snapshotProcessLocked(s.processes[key])
	return &p, nil
}

func (s *Store) GetExecution(ctx context.Context, executionKey int64) (*pipelines.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.executions[executionKey]
	if !ok {
		return nil, store.ErrNotFound
	}
	ex := snapshotExecution(&row.execution)
	return &ex, nil
}

func (s *Store) ListProcesses(ctx context.Context, f store.ListFilter) ([]pipelines.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.matchingProcessesLocked(f)
	sort.Slice(rows, func(i, j int) bool { return rows[i].created.After(rows[j].created) })

	limit := f.Limit
	if limit <= 0 {
		limit = len(rows)
	}
	var out []pipelines.Process
	for i := f.Offset; i < len(rows) && len(out) < limit; i++ {
		out = append(out, s.snapshotProcessLocked(rows[i]))
	}
	return out, nil
}

func (s *Store) CountProcesses(ctx context.Context, f store.ListFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matchingProcessesLocked(f))), nil
}

func (s *Store) matchingProcessesLocked(f store.ListFilter) []*processRow {
	var rows []*processRow
	for _, row := range s.processes {
		if f.DatasetKey != nil && row.datasetKey != *f.DatasetKey {
			continue
		}
		if f.Running && !s.hasRunningExecutionLocked(row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

func (s *Store) hasRunningExecutionLocked(row *processRow) bool {
	for _, exKey := range row.executions {
		if !s.executions[exKey].execution.IsFinished() {
			return true
		}
	}
	return false
}

func (s *Store) SearchSteps(ctx context.Context, f store.SearchFilter) ([]store.SearchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.matchingStepsLocked(f)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Step.Started.After(rows[j].Step.Started) })

	limit := f.Limit
	if limit <= 0 {
		limit = len(rows)
	}
	var out []store.SearchResult
	for i := f.Offset; i < len(rows) && len(out) < limit; i++ {
		out = append(out, rows[i])
	}
	return out, nil
}

func (s *Store) CountSteps(ctx context.Context, f store.SearchFilter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.matchingStepsLocked(f))), nil
}

func (s *Store) matchingStepsLocked(f store.SearchFilter) []store.SearchResult {
	var out []store.SearchResult
	for exKey, row := range s.executions {
		proc := s.processes[row.processKey]
		if f.DatasetKey != nil && proc.datasetKey != *f.DatasetKey {
			continue
		}
		if f.RerunReason != "" && row.execution.RerunReason != f.RerunReason {
			continue
		}
		for _, st := range row.execution.Steps {
			if !stepMatches(st, f) {
				continue
			}
			out = append(out, store.SearchResult{
				DatasetKey:   proc.datasetKey,
				Attempt:      proc.attempt,
				ExecutionKey: exKey,
				RerunReason:  row.execution.RerunReason,
				Step:         st,
			})
		}
	}
	return out
}

func stepMatches(st pipelines.Step, f store.SearchFilter) bool {
	if f.Status != nil && st.Status != *f.Status {
		return false
	}
	if f.StepType != nil && st.Type != *f.StepType {
		return false
	}
	if f.StartedMin != nil && st.Started.Before(*f.StartedMin) {
		return false
	}
	if f.StartedMax != nil && st.Started.After(*f.StartedMax) {
		return false
	}
	if f.FinishedMin != nil && (st.Finished == nil || st.Finished.Before(*f.FinishedMin)) {
		return false
	}
	if f.FinishedMax != nil && (st.Finished == nil || st.Finished.After(*f.FinishedMax)) {
		return false
	}
	if f.Version != "" && st.Version != f.Version {
		return false
	}
	return true
}

func (s *Store) AppendExecution(ctx context.Context, datasetKey uuid.UUID, attempt int, exec pipelines.NewExecution) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	procKey := s.createProcessLocked(datasetKey, attempt)
	row := s.processes[procKey]
	if s.hasRunningExecutionLocked(row) {
		return 0, store.ErrExecutionRunning
	}

	s.nextExecutionKey++
	exKey := s.nextExecutionKey
	stepsToRun := make([]pipelines.StepType, len(exec.StepsToRun))
	copy(stepsToRun, exec.StepsToRun)

	s.executions[exKey] = &executionRow{
		processKey: procKey,
		execution: pipelines.Execution{
			Key:         exKey,
			Created:     time.Now().UTC(),
			StepsToRun:  stepsToRun,
			RerunReason: exec.RerunReason,
		},
	}
	row.executions = append(row.executions, exKey)
	return exKey, nil
}

func (s *Store) CreateExecutionIfAbsent(ctx context.Context, datasetKey uuid.UUID, attempt int, executionKey int64, exec pipelines.NewExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[executionKey]; ok {
		return nil
	}

	procKey := s.createProcessLocked(datasetKey, attempt)
	row := s.processes[procKey]

	stepsToRun := make([]pipelines.StepType, len(exec.StepsToRun))
	copy(stepsToRun, exec.StepsToRun)

	s.executions[executionKey] = &executionRow{
		processKey: procKey,
		execution: pipelines.Execution{
			Key:         executionKey,
			Created:     time.Now().UTC(),
			StepsToRun:  stepsToRun,
			RerunReason: exec.RerunReason,
		},
	}
	row.executions = append(row.executions, executionKey)

	// Keep the key generator ahead of imported keys.
	if executionKey > s.nextExecutionKey {
		s.nextExecutionKey = executionKey
	}
	return nil
}

func (s *Store) RecordStep(ctx context.Context, executionKey int64, rec pipelines.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.executions[executionKey]
	if !ok {
		return store.ErrNotFound
	}
	ex := &row.execution

	found := false
	for i := range ex.Steps {
		if ex.Steps[i].Type != rec.Type {
			continue
		}
		updated, changed := pipelines.ApplyStep(ex.Steps[i], rec)
		if changed {
			ex.Steps[i] = updated
		}
		found = true
		break
	}
	if !found {
		st := pipelines.NewStep(rec)
		s.nextStepKey++
		st.Key = s.nextStepKey
		ex.Steps = append(ex.Steps, st)
	}

	// Finish re-evaluation happens under the same lock as the step write.
	if ex.Finished == nil {
		if finished, done := pipelines.FinishTime(ex.StepsToRun, ex.Steps); done {
			ex.Finished = &finished
		}
	}
	return nil
}

func (s *Store) MarkExecutionAborted(ctx context.Context, executionKey int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.executions[executionKey]
	if !ok {
		return store.ErrNotFound
	}
	ex := &row.execution

	now := time.Now().UTC()
	for i := range ex.Steps {
		if !ex.Steps[i].Status.Terminal() {
			ex.Steps[i].Status = pipelines.StatusAborted
			ts := now
			ex.Steps[i].Finished = &ts
		}
	}
	if ex.Finished == nil {
		ex.Finished = &now
	}
	return nil
}

func (s *Store) MarkAllExecutionsFinished(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for _, row := range s.executions {
		if row.execution.Finished == nil {
			ts := now
			row.execution.Finished = &ts
			n++
		}
	}
	return n, nil
}

func (s *Store) snapshotProcessLocked(row *processRow) pipelines.Process {
	p := pipelines.Process{
		Key:        row.key,
		DatasetKey: row.datasetKey,
		Attempt:    row.attempt,
		Created:    row.created,
	}
	for _, exKey := range row.executions {
		p.Executions = append(p.Executions, snapshotExecution(&s.executions[exKey].execution))
	}
	sort.Slice(p.Executions, func(i, j int) bool {
		return p.Executions[i].Created.Before(p.Executions[j].Created)
	})
	return p
}

// snapshotExecution deep-copies an execution so callers never share mutable
// state with the store.
func snapshotExecution(ex *pipelines.Execution) pipelines.Execution {
	out := *ex
	out.StepsToRun = append([]pipelines.StepType(nil), ex.StepsToRun...)
	out.Steps = append([]pipelines.Step(nil), ex.Steps...)
	for i := range out.Steps {
		if f := out.Steps[i].Finished; f != nil {
			ts := *f
			out.Steps[i].Finished = &ts
		}
	}
	if ex.Finished != nil {
		ts := *ex.Finished
		out.Finished = &ts
	}
	return out
}

var _ store.ProcessStore = (*Store)(nil)
