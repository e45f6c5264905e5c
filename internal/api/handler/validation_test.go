package handler

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestParseDatasetKey(t *testing.T) {
	key := uuid.New()
	got, apiErr := parseDatasetKey(key.String())
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if got != key {
		t.Errorf("parsed %s, want %s", got, key)
	}

	for _, raw := range []string{"", "not-a-uuid", "12345"} {
		if _, apiErr := parseDatasetKey(raw); apiErr == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestParseAttempt(t *testing.T) {
	got, apiErr := parseAttempt("7")
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if got != 7 {
		t.Errorf("parsed %d, want 7", got)
	}

	for _, raw := range []string{"", "0", "-1", "abc"} {
		if _, apiErr := parseAttempt(raw); apiErr == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestParsePagingDefaults(t *testing.T) {
	req := httptest.NewRequest("GET", "/?limit=0&offset=-5", nil)
	limit, offset := parsePaging(req)
	if limit != 20 || offset != 0 {
		t.Errorf("limit, offset = %d, %d; want defaults 20, 0", limit, offset)
	}

	req = httptest.NewRequest("GET", "/?limit=500", nil)
	limit, _ = parsePaging(req)
	if limit != 20 {
		t.Errorf("oversized limit = %d, want clamped to 20", limit)
	}

	req = httptest.NewRequest("GET", "/?limit=50&offset=10", nil)
	limit, offset = parsePaging(req)
	if limit != 50 || offset != 10 {
		t.Errorf("limit, offset = %d, %d; want 50, 10", limit, offset)
	}
}

func TestParseSearchFilter(t *testing.T) {
	key := uuid.New()
	req := httptest.NewRequest("GET",
		"/?datasetKey="+key.String()+"&status=FAILED&stepType=HDFS_VIEW&startedMin=2026-01-01T00:00:00Z&rerunReason=retry&pipelinesVersion=2.18.0", nil)

	f, apiErr := parseSearchFilter(req)
	if apiErr != nil {
		t.Fatalf("unexpected error: %v", apiErr)
	}
	if f.DatasetKey == nil || *f.DatasetKey != key {
		t.Errorf("dataset key = %v", f.DatasetKey)
	}
	if f.Status == nil || string(*f.Status) != "FAILED" {
		t.Errorf("status = %v", f.Status)
	}
	if f.StepType == nil || string(*f.StepType) != "HDFS_VIEW" {
		t.Errorf("step type = %v", f.StepType)
	}
	if f.StartedMin == nil {
		t.Error("started min not parsed")
	}
	if f.RerunReason != "retry" || f.Version != "2.18.0" {
		t.Errorf("rerun reason = %q, version = %q", f.RerunReason, f.Version)
	}

	if _, apiErr := parseSearchFilter(httptest.NewRequest("GET", "/?startedMin=yesterday", nil)); apiErr == nil {
		t.Error("expected error for malformed startedMin")
	}
}
