package apierr

import "net/http"

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InvalidID(entity string) *Error {
	return New(CodeInvalidID, http.StatusBadRequest, "Invalid "+entity+" ID")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Process & execution ---

func ProcessNotFound() *Error {
	return New(CodeProcessNotFound, http.StatusNotFound, "No ingestion history for this dataset and attempt")
}

func ExecutionNotFound() *Error {
	return New(CodeExecutionNotFound, http.StatusNotFound, "Execution not found")
}

func InvalidDatasetKey() *Error {
	return New(CodeInvalidDatasetKey, http.StatusBadRequest, "Dataset key must be a UUID")
}

func InvalidAttempt() *Error {
	return New(CodeInvalidAttempt, http.StatusBadRequest, "Attempt must be a positive integer")
}

func HistoryListFailed(cause error) *Error {
	return Wrap(CodeHistoryListFailed, http.StatusInternalServerError, "Failed to list ingestion history", cause)
}

// --- Search ---

func InvalidSearchFilter(message string) *Error {
	return New(CodeInvalidSearchFilter, http.StatusBadRequest, message)
}

func SearchFailed(cause error) *Error {
	return Wrap(CodeSearchFailed, http.StatusInternalServerError, "Search failed", cause)
}

// --- Admin ---

func AbortFailed(cause error) *Error {
	return Wrap(CodeAbortFailed, http.StatusInternalServerError, "Failed to abort execution", cause)
}

func FinishAllFailed(cause error) *Error {
	return Wrap(CodeFinishAllFailed, http.StatusInternalServerError, "Failed to finish executions", cause)
}

// --- Health ---

func DatabaseNotReady() *Error {
	return New(CodeDatabaseNotReady, http.StatusServiceUnavailable, "Database not ready")
}
