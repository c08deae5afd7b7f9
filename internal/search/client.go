// Package search talks to the search engine the ingestion tools write
// into. The orchestrator never indexes documents itself; it only checks
// reachability and reads per-index document counts.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/geodex-labs/geodex/internal/config"
)

// Client is a thin HTTP client for the search engine.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.SearchConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// Ping checks that the search engine answers at its root endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("search engine unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search engine error (status %d)", resp.StatusCode)
	}
	return nil
}

// DocumentCount returns the number of documents the search engine holds
// for the named index.
func (c *Client) DocumentCount(ctx context.Context, index string) (int64, error) {
	endpoint := fmt.Sprintf("%s/%s/_count", c.baseURL, url.PathEscape(index))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("search engine error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return 0, fmt.Errorf("unmarshal response: %w", err)
	}
	return result.Count, nil
}
