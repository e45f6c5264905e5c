package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/store"
	"github.com/maraichr/pipetrack/internal/store/memory"
)

func appendExecution(t *testing.T, st *memory.Store, key uuid.UUID, attempt int, steps ...pipelines.StepType) int64 {
	t.Helper()
	exKey, err := st.AppendExecution(context.Background(), key, attempt, pipelines.NewExecution{StepsToRun: steps})
	if err != nil {
		t.Fatalf("append execution: %v", err)
	}
	return exKey
}

func TestRecordStepDiscardsInvalidEvents(t *testing.T) {
	st := memory.New()
	rec := NewRecorder(st, testLogger())
	ctx := context.Background()
	key := uuid.New()
	now := time.Now().UTC()

	// A malformed event is dropped without error so the consumer acks it and
	// it never wedges the group.
	for name, record := range map[string]pipelines.StepRecord{
		"unsupported step type": {
			DatasetKey: key, Attempt: 1, ExecutionKey: 1,
			Type: "BOGUS", Status: pipelines.StatusRunning, Timestamp: now,
		},
		"unknown status": {
			DatasetKey: key, Attempt: 1, ExecutionKey: 1,
			Type: pipelines.StepFragmenter, Status: "MAYBE", Timestamp: now,
		},
		"missing execution key": {
			DatasetKey: key, Attempt: 1,
			Type: pipelines.StepFragmenter, Status: pipelines.StatusRunning, Timestamp: now,
		},
		"missing dataset key": {
			Attempt: 1, ExecutionKey: 1,
			Type: pipelines.StepFragmenter, Status: pipelines.StatusRunning, Timestamp: now,
		},
		"missing attempt": {
			DatasetKey: key, ExecutionKey: 1,
			Type: pipelines.StepFragmenter, Status: pipelines.StatusRunning, Timestamp: now,
		},
	} {
		if err := rec.RecordStep(ctx, record); err != nil {
			t.Errorf("%s: expected the event to be dropped, got %v", name, err)
		}
	}

	// Nothing may have been written for the dropped events.
	if _, err := st.GetProcess(ctx, key, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("dropped events must not create records, got %v", err)
	}
}

func TestRecordStepCreatesProcessOnFirstEvent(t *testing.T) {
	st := memory.New()
	rec := NewRecorder(st, testLogger())
	ctx := context.Background()
	key := uuid.New()
	now := time.Now().UTC()

	// First event for a (dataset, attempt) and execution key we never issued:
	// an ingest started by the crawler rather than a rerun request.
	err := rec.RecordStep(ctx, pipelines.StepRecord{
		DatasetKey: key, Attempt: 3, ExecutionKey: 77,
		Type: pipelines.StepDwcaToVerbatim, Status: pipelines.StatusRunning, Timestamp: now,
	})
	if err != nil {
		t.Fatalf("record first event: %v", err)
	}

	proc, err := st.GetProcess(ctx, key, 3)
	if err != nil {
		t.Fatalf("process must exist after the first event: %v", err)
	}
	if len(proc.Executions) != 1 || proc.Executions[0].Key != 77 {
		t.Fatalf("expected one execution with key 77, got %+v", proc.Executions)
	}

	// Redelivery of the same event must not create a second execution.
	err = rec.RecordStep(ctx, pipelines.StepRecord{
		DatasetKey: key, Attempt: 3, ExecutionKey: 77,
		Type: pipelines.StepDwcaToVerbatim, Status: pipelines.StatusRunning, Timestamp: now,
	})
	if err != nil {
		t.Fatalf("record redelivered event: %v", err)
	}

	err = rec.RecordStep(ctx, pipelines.StepRecord{
		DatasetKey: key, Attempt: 3, ExecutionKey: 77,
		Type: pipelines.StepDwcaToVerbatim, Status: pipelines.StatusCompleted, Timestamp: now.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("record completion: %v", err)
	}

	ex, err := st.GetExecution(ctx, 77)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if len(ex.Steps) != 1 || ex.Steps[0].Status != pipelines.StatusCompleted {
		t.Fatalf("unexpected steps: %+v", ex.Steps)
	}
	// The execution has no declared step set, so it must stay open for
	// operators instead of finishing on the first terminal step.
	if ex.IsFinished() {
		t.Fatal("event-created execution must not be auto-finished")
	}
}

func TestRecordStepFinishesExecution(t *testing.T) {
	st := memory.New()
	rec := NewRecorder(st, testLogger())
	ctx := context.Background()
	key := uuid.New()

	exKey := appendExecution(t, st, key, 1,
		pipelines.StepDwcaToVerbatim, pipelines.StepFragmenter)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, stp := range []pipelines.StepType{pipelines.StepDwcaToVerbatim, pipelines.StepFragmenter} {
		err := rec.RecordStep(ctx, pipelines.StepRecord{
			DatasetKey: key, Attempt: 1, ExecutionKey: exKey,
			Type: stp, Status: pipelines.StatusCompleted,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("record %s: %v", stp, err)
		}
	}

	ex, err := st.GetExecution(ctx, exKey)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if !ex.IsFinished() {
		t.Fatal("execution must be finished after all steps are terminal")
	}
	want := base.Add(time.Minute)
	if !ex.Finished.Equal(want) {
		t.Fatalf("finished = %v, want max step finish %v", ex.Finished, want)
	}
}

func TestRecordStepRedeliveryKeepsTerminalStatus(t *testing.T) {
	st := memory.New()
	rec := NewRecorder(st, testLogger())
	ctx := context.Background()
	key := uuid.New()

	exKey := appendExecution(t, st, key, 1, pipelines.StepFragmenter, pipelines.StepHdfsView)

	now := time.Now().UTC()
	err := rec.RecordStep(ctx, pipelines.StepRecord{
		DatasetKey: key, Attempt: 1, ExecutionKey: exKey,
		Type: pipelines.StepFragmenter, Status: pipelines.StatusCompleted, Timestamp: now,
	})
	if err != nil {
		t.Fatalf("record completed: %v", err)
	}

	// A late RUNNING notification for the same step must not regress it.
	err = rec.RecordStep(ctx, pipelines.StepRecord{
		DatasetKey: key, Attempt: 1, ExecutionKey: exKey,
		Type: pipelines.StepFragmenter, Status: pipelines.StatusRunning, Timestamp: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("record late running: %v", err)
	}

	ex, err := st.GetExecution(ctx, exKey)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if got := ex.Steps[0].Status; got != pipelines.StatusCompleted {
		t.Fatalf("step status = %s, want %s", got, pipelines.StatusCompleted)
	}
}

func TestAbortExecution(t *testing.T) {
	st := memory.New()
	rec := NewRecorder(st, testLogger())
	ctx := context.Background()
	key := uuid.New()

	exKey := appendExecution(t, st, key, 1, pipelines.StepFragmenter)
	err := rec.RecordStep(ctx, pipelines.StepRecord{
		DatasetKey: key, Attempt: 1, ExecutionKey: exKey,
		Type: pipelines.StepFragmenter, Status: pipelines.StatusRunning, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("record running: %v", err)
	}

	if err := rec.AbortExecution(ctx, exKey); err != nil {
		t.Fatalf("abort: %v", err)
	}

	ex, err := st.GetExecution(ctx, exKey)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if !ex.IsFinished() {
		t.Fatal("aborted execution must be finished")
	}
	if got := ex.Steps[0].Status; got != pipelines.StatusAborted {
		t.Fatalf("step status = %s, want %s", got, pipelines.StatusAborted)
	}
}

func TestFinishAllExecutions(t *testing.T) {
	st := memory.New()
	rec := NewRecorder(st, testLogger())
	ctx := context.Background()

	appendExecution(t, st, uuid.New(), 1, pipelines.StepFragmenter)
	appendExecution(t, st, uuid.New(), 1, pipelines.StepHdfsView)

	n, err := rec.FinishAllExecutions(ctx)
	if err != nil {
		t.Fatalf("finish all: %v", err)
	}
	if n != 2 {
		t.Fatalf("finished %d executions, want 2", n)
	}

	n, err = rec.FinishAllExecutions(ctx)
	if err != nil {
		t.Fatalf("finish all again: %v", err)
	}
	if n != 0 {
		t.Fatalf("second pass finished %d executions, want 0", n)
	}
}
