package pipelines

// ResponseStatus tags the outcome of a rerun request.
type ResponseStatus string

const (
	// RunOK means the request was accepted and a new execution was created.
	RunOK ResponseStatus = "OK"
	// RunPipelineInSubmitted means an execution is already running for the
	// process; the request was rejected without any mutation.
	RunPipelineInSubmitted ResponseStatus = "PIPELINE_IN_SUBMITTED"
	// RunUnsupportedStep means the request named step types the system cannot
	// execute; the offending types are listed in StepsFailed.
	RunUnsupportedStep ResponseStatus = "UNSUPPORTED_STEP"
	// RunError means an unexpected failure prevented the request.
	RunError ResponseStatus = "ERROR"
)

// RunResponse describes the outcome of a rerun request. It is a transient
// value and is never persisted.
type RunResponse struct {
	Status       ResponseStatus `json:"status"`
	ExecutionKey int64          `json:"execution_key,omitempty"`
	Steps        []StepType     `json:"steps,omitempty"`
	StepsFailed  []StepType     `json:"steps_failed,omitempty"`
	Message      string         `json:"message,omitempty"`
}
