package pipelines

import (
	"reflect"
	"sort"
	"testing"
)

func sorted(steps []StepType) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	sort.Strings(out)
	return out
}

func TestExpand_LegacyConversionPullsInFragmenter(t *testing.T) {
	got := Expand([]StepType{StepAbcdToVerbatim}, CategoryOccurrence)

	want := sorted([]StepType{StepAbcdToVerbatim, StepFragmenter})
	if !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("expected %v, got %v", want, sorted(got))
	}
}

func TestExpand_EventInterpretationPullsInEventSteps(t *testing.T) {
	got := Expand([]StepType{StepEventsVerbatimToInterpreted}, CategoryEvent)

	want := sorted([]StepType{
		StepEventsVerbatimToInterpreted,
		StepEventsHdfsView,
		StepEventsInterpretedToIndex,
	})
	if !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("expected %v, got %v", want, sorted(got))
	}
}

func TestExpand_EventRulesSkippedForOccurrenceDatasets(t *testing.T) {
	got := Expand([]StepType{StepEventsVerbatimToInterpreted}, CategoryOccurrence)

	want := sorted([]StepType{StepEventsVerbatimToInterpreted})
	if !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("expected %v, got %v", want, sorted(got))
	}
}

func TestExpand_InterpretationDoesNotPullInEventOrFragmenterSteps(t *testing.T) {
	got := Expand([]StepType{StepVerbatimToInterpreted}, CategoryOccurrence)

	for _, st := range got {
		switch st {
		case StepFragmenter, StepEventsVerbatimToInterpreted, StepEventsHdfsView, StepEventsInterpretedToIndex:
			t.Errorf("unexpected step %s in expansion", st)
		}
	}

	want := sorted([]StepType{StepVerbatimToInterpreted, StepInterpretedToIndex, StepHdfsView})
	if !reflect.DeepEqual(sorted(got), want) {
		t.Errorf("expected %v, got %v", want, sorted(got))
	}
}

func TestExpand_Idempotent(t *testing.T) {
	for _, st := range AllStepTypes {
		once := Expand([]StepType{st}, CategoryEvent)
		twice := Expand(once, CategoryEvent)
		if !reflect.DeepEqual(sorted(once), sorted(twice)) {
			t.Errorf("expand not idempotent for %s: %v vs %v", st, sorted(once), sorted(twice))
		}
	}
}

func TestExpand_ContainsDeclaredDependents(t *testing.T) {
	for st, deps := range stepDependents {
		got := Expand([]StepType{st}, CategoryOccurrence)
		set := make(map[StepType]bool)
		for _, g := range got {
			set[g] = true
		}
		if !set[st] {
			t.Errorf("expansion of %s does not contain itself", st)
		}
		for _, dep := range deps {
			if !set[dep] {
				t.Errorf("expansion of %s is missing dependent %s", st, dep)
			}
		}
	}
}

func TestExpand_Empty(t *testing.T) {
	if got := Expand(nil, CategoryEvent); len(got) != 0 {
		t.Errorf("expected empty expansion, got %v", got)
	}
}
