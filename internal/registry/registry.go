// Package registry holds the clients for the surrounding metadata registry:
// the crawler's status service and the dataset lookup. Both are consumed as
// narrow interfaces so tests can substitute fakes.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/maraichr/pipetrack/internal/pipelines"
)

// ErrNotFound is returned when the collaborator has no record for the key.
// "Nothing known yet" is a valid state, not a failure.
var ErrNotFound = errors.New("registry: not found")

// CrawlStatus is the crawler-side view of one (dataset, attempt).
type CrawlStatus struct {
	DatasetKey uuid.UUID  `json:"dataset_key"`
	Attempt    int        `json:"attempt"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	State      string     `json:"state"`
}

// CrawlStatusProvider looks up crawl/harvest status keyed by
// (datasetKey, attempt).
type CrawlStatusProvider interface {
	CrawlStatus(ctx context.Context, datasetKey uuid.UUID, attempt int) (*CrawlStatus, error)
}

// Dataset is the subset of dataset metadata the tracker needs.
type Dataset struct {
	Key      uuid.UUID          `json:"key"`
	Title    string             `json:"title"`
	Category pipelines.Category `json:"category"`
}

// DatasetService looks up dataset display metadata by key.
type DatasetService interface {
	Dataset(ctx context.Context, datasetKey uuid.UUID) (*Dataset, error)
}
