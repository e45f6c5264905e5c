package pipelines

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyStep_TerminalNotRegressedByLateRunning(t *testing.T) {
	step := NewStep(StepRecord{Type: StepHdfsView, Status: StatusCompleted, Timestamp: t0})

	late := StepRecord{Type: StepHdfsView, Status: StatusRunning, Timestamp: t0.Add(time.Minute)}
	got, changed := ApplyStep(step, late)

	if changed {
		t.Error("late RUNNING notification should not change a terminal step")
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected status COMPLETED, got %s", got.Status)
	}
	if got.Finished == nil || !got.Finished.Equal(t0) {
		t.Errorf("finished timestamp changed: %v", got.Finished)
	}
}

func TestApplyStep_RunningMovesToTerminal(t *testing.T) {
	step := NewStep(StepRecord{Type: StepFragmenter, Status: StatusRunning, Timestamp: t0})
	if step.Finished != nil {
		t.Error("running step should have no finished timestamp")
	}

	got, changed := ApplyStep(step, StepRecord{
		Type: StepFragmenter, Status: StatusFailed, Timestamp: t0.Add(time.Minute), Message: "oom",
	})
	if !changed {
		t.Error("terminal notification should update a running step")
	}
	if got.Status != StatusFailed {
		t.Errorf("expected FAILED, got %s", got.Status)
	}
	if got.Finished == nil || !got.Finished.Equal(t0.Add(time.Minute)) {
		t.Errorf("unexpected finished timestamp: %v", got.Finished)
	}
	if got.Message != "oom" {
		t.Errorf("unexpected message: %q", got.Message)
	}
}

func TestApplyStep_TerminalMayReplaceTerminal(t *testing.T) {
	step := NewStep(StepRecord{Type: StepInterpretedToIndex, Status: StatusCompleted, Timestamp: t0})

	got, changed := ApplyStep(step, StepRecord{
		Type: StepInterpretedToIndex, Status: StatusAborted, Timestamp: t0.Add(time.Hour),
	})
	if !changed || got.Status != StatusAborted {
		t.Errorf("expected ABORTED after terminal update, got %s (changed=%v)", got.Status, changed)
	}
}

func TestApplyStep_Idempotent(t *testing.T) {
	rec := StepRecord{Type: StepHdfsView, Status: StatusCompleted, Timestamp: t0, Message: "done"}
	step := NewStep(rec)

	again, _ := ApplyStep(step, rec)
	if again.Status != step.Status || again.Message != step.Message {
		t.Errorf("redelivery changed the step: %+v vs %+v", again, step)
	}
	if again.Finished == nil || !again.Finished.Equal(*step.Finished) {
		t.Errorf("redelivery changed finished timestamp: %v vs %v", again.Finished, step.Finished)
	}
}

func TestFinishTime_AllTerminal(t *testing.T) {
	toRun := []StepType{StepVerbatimToInterpreted, StepInterpretedToIndex}

	steps := []Step{
		NewStep(StepRecord{Type: StepVerbatimToInterpreted, Status: StatusCompleted, Timestamp: t0}),
		NewStep(StepRecord{Type: StepInterpretedToIndex, Status: StatusRunning, Timestamp: t0}),
	}
	if _, done := FinishTime(toRun, steps); done {
		t.Error("execution with a running step must not be finished")
	}

	steps[1] = NewStep(StepRecord{Type: StepInterpretedToIndex, Status: StatusCompleted, Timestamp: t0.Add(time.Minute)})
	finished, done := FinishTime(toRun, steps)
	if !done {
		t.Fatal("execution with all steps terminal must be finished")
	}
	if !finished.Equal(t0.Add(time.Minute)) {
		t.Errorf("finished should be the max step finish time, got %v", finished)
	}
}

func TestFinishTime_NoDeclaredStepsNeverFinishes(t *testing.T) {
	steps := []Step{
		NewStep(StepRecord{Type: StepDwcaToVerbatim, Status: StatusCompleted, Timestamp: t0}),
	}
	if _, done := FinishTime(nil, steps); done {
		t.Error("execution without a declared step set must not be auto-finished")
	}
	if _, done := FinishTime([]StepType{}, nil); done {
		t.Error("empty step set with no steps must not be finished")
	}
}

func TestFinishTime_MissingStepNotFinished(t *testing.T) {
	toRun := []StepType{StepVerbatimToInterpreted, StepHdfsView}
	steps := []Step{
		NewStep(StepRecord{Type: StepVerbatimToInterpreted, Status: StatusCompleted, Timestamp: t0}),
	}
	if _, done := FinishTime(toRun, steps); done {
		t.Error("execution missing a reported step must not be finished")
	}
}
