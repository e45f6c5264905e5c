package pipelines

import "time"

// ApplyStep merges an incoming notification into an existing step and reports
// whether anything changed. The rule is that a step's status only moves
// forward: a terminal status is never overwritten by RUNNING, so redelivered
// or out-of-order notifications are absorbed here. A later terminal
// notification may replace an earlier terminal one.
//
// Every store implementation must route step updates through this function so
// the idempotence rules hold regardless of which caller recorded the step.
func ApplyStep(existing Step, incoming StepRecord) (Step, bool) {
	if existing.Status.Terminal() && !incoming.Status.Terminal() {
		return existing, false
	}

	existing.Status = incoming.Status
	existing.Message = incoming.Message
	if incoming.Version != "" {
		existing.Version = incoming.Version
	}
	if incoming.Status.Terminal() {
		ts := incoming.Timestamp
		existing.Finished = &ts
	} else {
		existing.Finished = nil
	}
	return existing, true
}

// NewStep builds the initial step for the first notification of a
// (execution, step type) pair.
func NewStep(incoming StepRecord) Step {
	s := Step{
		Type:    incoming.Type,
		Status:  incoming.Status,
		Started: incoming.Timestamp,
		Message: incoming.Message,
		Version: incoming.Version,
	}
	if incoming.Status.Terminal() {
		ts := incoming.Timestamp
		s.Finished = &ts
	}
	return s
}

// FinishTime decides whether an execution is finished: it is exactly when
// every step type in stepsToRun has reached a terminal status. The finished
// timestamp is the max of the steps' finish times. Callers must evaluate this
// against the execution's current full step set inside the same transaction
// that recorded a step, never against a cached snapshot.
func FinishTime(stepsToRun []StepType, steps []Step) (time.Time, bool) {
	// An execution with no declared step set (created from an inbound event
	// rather than a rerun) is finished by operators, never automatically.
	if len(stepsToRun) == 0 {
		return time.Time{}, false
	}

	byType := make(map[StepType]Step, len(steps))
	for _, s := range steps {
		byType[s.Type] = s
	}

	var finished time.Time
	for _, st := range stepsToRun {
		s, ok := byType[st]
		if !ok || !s.Status.Terminal() {
			return time.Time{}, false
		}
		if s.Finished != nil && s.Finished.After(finished) {
			finished = *s.Finished
		}
	}
	return finished, true
}
