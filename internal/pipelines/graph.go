package pipelines

// stepDependents declares which step types are implied when a step type is
// requested. The legacy format conversions always need the fragmenter alongside
// them, and interpretation needs its downstream view and index steps.
var stepDependents = map[StepType][]StepType{
	StepDwcaToVerbatim:        {StepFragmenter},
	StepXMLToVerbatim:         {StepFragmenter},
	StepAbcdToVerbatim:        {StepFragmenter},
	StepVerbatimToInterpreted: {StepInterpretedToIndex, StepHdfsView},
}

// eventStepDependents holds expansions that only apply to event datasets.
var eventStepDependents = map[StepType][]StepType{
	StepEventsVerbatimToInterpreted: {StepEventsHdfsView, StepEventsInterpretedToIndex},
}

// Expand returns the full set of step types implied by the requested set,
// closing over the dependency table until a fixed point is reached. The graph
// is shallow today, but the closure keeps the result correct if deeper chains
// are ever declared. Event-specific rules are applied only when category is
// CategoryEvent; pass "" to skip them.
func Expand(requested []StepType, category Category) []StepType {
	result := make(map[StepType]bool, len(requested))
	queue := make([]StepType, len(requested))
	copy(queue, requested)

	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]
		if result[st] {
			continue
		}
		result[st] = true

		queue = append(queue, stepDependents[st]...)
		if category == CategoryEvent {
			queue = append(queue, eventStepDependents[st]...)
		}
	}

	out := make([]StepType, 0, len(result))
	for _, st := range AllStepTypes {
		if result[st] {
			out = append(out, st)
		}
	}
	return out
}
