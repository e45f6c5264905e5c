package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
	"github.com/maraichr/pipetrack/internal/store"
	"github.com/maraichr/pipetrack/pkg/apierr"
)

func parseDatasetKey(raw string) (uuid.UUID, *apierr.Error) {
	key, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apierr.InvalidDatasetKey()
	}
	return key, nil
}

func parseAttempt(raw string) (int, *apierr.Error) {
	attempt, err := strconv.Atoi(raw)
	if err != nil || attempt <= 0 {
		return 0, apierr.InvalidAttempt()
	}
	return attempt, nil
}

func parseExecutionKey(raw string) (int64, *apierr.Error) {
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || key <= 0 {
		return 0, apierr.InvalidID("execution")
	}
	return key, nil
}

func parsePaging(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// parseSearchFilter builds a step search filter from query parameters. All
// parameters are optional; malformed values are rejected rather than ignored
// so typos don't silently widen a search.
func parseSearchFilter(r *http.Request) (store.SearchFilter, *apierr.Error) {
	q := r.URL.Query()
	var f store.SearchFilter

	if raw := q.Get("datasetKey"); raw != "" {
		key, err := uuid.Parse(raw)
		if err != nil {
			return f, apierr.InvalidDatasetKey()
		}
		f.DatasetKey = &key
	}
	if raw := q.Get("status"); raw != "" {
		status, err := pipelines.ParseStatus(raw)
		if err != nil {
			return f, apierr.InvalidSearchFilter(err.Error())
		}
		f.Status = &status
	}
	if raw := q.Get("stepType"); raw != "" {
		st, err := pipelines.ParseStepType(raw)
		if err != nil {
			return f, apierr.InvalidSearchFilter(err.Error())
		}
		f.StepType = &st
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{
		{"startedMin", &f.StartedMin},
		{"startedMax", &f.StartedMax},
		{"finishedMin", &f.FinishedMin},
		{"finishedMax", &f.FinishedMax},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return f, apierr.InvalidSearchFilter(p.name + " must be RFC3339")
		}
		*p.dst = &ts
	}

	f.RerunReason = q.Get("rerunReason")
	f.Version = q.Get("pipelinesVersion")
	f.Limit, f.Offset = parsePaging(r)
	return f, nil
}
