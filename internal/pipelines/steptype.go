package pipelines

import "fmt"

// StepType identifies one kind of processing step a dataset goes through
// after it has been crawled.
type StepType string

const (
	StepDwcaToVerbatim              StepType = "DWCA_TO_VERBATIM"
	StepXMLToVerbatim               StepType = "XML_TO_VERBATIM"
	StepAbcdToVerbatim              StepType = "ABCD_TO_VERBATIM"
	StepFragmenter                  StepType = "FRAGMENTER"
	StepVerbatimToIdentifier        StepType = "VERBATIM_TO_IDENTIFIER"
	StepVerbatimToInterpreted       StepType = "VERBATIM_TO_INTERPRETED"
	StepInterpretedToIndex          StepType = "INTERPRETED_TO_INDEX"
	StepHdfsView                    StepType = "HDFS_VIEW"
	StepEventsVerbatimToInterpreted StepType = "EVENTS_VERBATIM_TO_INTERPRETED"
	StepEventsInterpretedToIndex    StepType = "EVENTS_INTERPRETED_TO_INDEX"
	StepEventsHdfsView              StepType = "EVENTS_HDFS_VIEW"
)

// AllStepTypes lists every step type the system is able to execute.
var AllStepTypes = []StepType{
	StepDwcaToVerbatim,
	StepXMLToVerbatim,
	StepAbcdToVerbatim,
	StepFragmenter,
	StepVerbatimToIdentifier,
	StepVerbatimToInterpreted,
	StepInterpretedToIndex,
	StepHdfsView,
	StepEventsVerbatimToInterpreted,
	StepEventsInterpretedToIndex,
	StepEventsHdfsView,
}

var stepTypeSet = func() map[StepType]bool {
	m := make(map[StepType]bool, len(AllStepTypes))
	for _, st := range AllStepTypes {
		m[st] = true
	}
	return m
}()

// Supported reports whether the step type is one the system can execute.
func (s StepType) Supported() bool {
	return stepTypeSet[s]
}

// ParseStepType converts a wire value into a StepType.
func ParseStepType(s string) (StepType, error) {
	st := StepType(s)
	if !st.Supported() {
		return "", fmt.Errorf("unknown step type %q", s)
	}
	return st, nil
}

// Category classifies a dataset for expansion purposes. Event datasets get the
// event-specific sub-pipeline, everything else runs the occurrence steps only.
type Category string

const (
	CategoryOccurrence Category = "OCCURRENCE"
	CategoryEvent      Category = "EVENT"
)
