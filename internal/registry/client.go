package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Client calls the registry's HTTP API for crawl status and dataset lookups.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a registry client for the given base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CrawlStatus(ctx context.Context, datasetKey uuid.UUID, attempt int) (*CrawlStatus, error) {
	url := fmt.Sprintf("%s/crawls/%s/%d", c.baseURL, datasetKey, attempt)

	var status CrawlStatus
	if err := c.getJSON(ctx, url, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) Dataset(ctx context.Context, datasetKey uuid.UUID) (*Dataset, error) {
	url := fmt.Sprintf("%s/datasets/%s", c.baseURL, datasetKey)

	var ds Dataset
	if err := c.getJSON(ctx, url, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("registry request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("registry returned %d for %s", resp.StatusCode, url)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}

var (
	_ CrawlStatusProvider = (*Client)(nil)
	_ DatasetService      = (*Client)(nil)
)
