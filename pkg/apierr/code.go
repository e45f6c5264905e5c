package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInvalidID          Code = "INVALID_ID"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Process & execution errors.
const (
	CodeProcessNotFound   Code = "PROCESS_NOT_FOUND"
	CodeExecutionNotFound Code = "EXECUTION_NOT_FOUND"
	CodeInvalidDatasetKey Code = "INVALID_DATASET_KEY"
	CodeInvalidAttempt    Code = "INVALID_ATTEMPT"
	CodeHistoryListFailed Code = "HISTORY_LIST_FAILED"
)

// Search errors.
const (
	CodeInvalidSearchFilter Code = "INVALID_SEARCH_FILTER"
	CodeSearchFailed        Code = "SEARCH_FAILED"
)

// Admin errors.
const (
	CodeAbortFailed     Code = "ABORT_FAILED"
	CodeFinishAllFailed Code = "FINISH_ALL_FAILED"
)

// Health errors.
const (
	CodeDatabaseNotReady Code = "DATABASE_NOT_READY"
)
