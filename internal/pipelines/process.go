package pipelines

import (
	"time"

	"github.com/google/uuid"
)

// Process is the complete ingestion record for one (dataset, crawl attempt)
// pair. At most one process exists per pair; attempts are assigned by the
// crawler and are monotonically increasing per dataset, not necessarily
// contiguous. Processes are only ever appended to, never deleted.
type Process struct {
	Key        int64       `json:"key"`
	DatasetKey uuid.UUID   `json:"dataset_key"`
	Attempt    int         `json:"attempt"`
	Created    time.Time   `json:"created"`
	Executions []Execution `json:"executions"`
}

// LatestExecution returns the most recently created execution, or nil when the
// process has none yet.
func (p *Process) LatestExecution() *Execution {
	var latest *Execution
	for i := range p.Executions {
		ex := &p.Executions[i]
		if latest == nil || ex.Created.After(latest.Created) {
			latest = ex
		}
	}
	return latest
}

// Execution is one authorized run of a subset of pipeline steps within a
// process. Within a process at most one execution is unfinished at a time.
type Execution struct {
	Key         int64      `json:"key"`
	Created     time.Time  `json:"created"`
	StepsToRun  []StepType `json:"steps_to_run"`
	Steps       []Step     `json:"steps"`
	RerunReason string     `json:"rerun_reason,omitempty"`
	Finished    *time.Time `json:"finished,omitempty"`
}

// IsFinished reports whether the execution has been marked finished.
func (e *Execution) IsFinished() bool {
	return e.Finished != nil
}

// Step is one (execution, step type) unit of work, created by the first
// completion notification for that type and updated by later ones.
type Step struct {
	Key      int64      `json:"key"`
	Type     StepType   `json:"type"`
	Status   Status     `json:"status"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Message  string     `json:"message,omitempty"`
	Version  string     `json:"pipelines_version,omitempty"`
}

// StepRecord is the logical content of an inbound step-completion
// notification. Notifications may arrive out of order and may be redelivered.
type StepRecord struct {
	DatasetKey   uuid.UUID `json:"dataset_key"`
	Attempt      int       `json:"attempt"`
	ExecutionKey int64     `json:"execution_key"`
	Type         StepType  `json:"step_type"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message,omitempty"`
	Version      string    `json:"pipelines_version,omitempty"`
}

// NewExecution carries the fields of an execution about to be appended to a
// process by an authorized rerun.
type NewExecution struct {
	StepsToRun  []StepType
	RerunReason string
}
