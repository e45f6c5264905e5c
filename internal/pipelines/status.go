package pipelines

import "fmt"

// Status is the lifecycle state of a pipeline step.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusAborted   Status = "ABORTED"
)

// Terminal reports whether the status is final. A terminal status is never
// regressed to RUNNING by a late or redelivered notification.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	}
	return false
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusRunning, StatusCompleted, StatusFailed, StatusAborted:
		return st, nil
	}
	return "", fmt.Errorf("unknown step status %q", s)
}
