package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HTTPSearch queries a local search daemon over its HTTP API and decodes the
// candidate list it returns. The daemon performs the actual peer-network
// search; this client only shuttles the query and honors cancellation.
type HTTPSearch struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTPSearch builds a search client against the daemon at baseURL.
func NewHTTPSearch(baseURL string, logger *slog.Logger) *HTTPSearch {
	return &HTTPSearch{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 2 * time.Minute},
		logger:  logger,
	}
}

// Search issues GET {base}/api/search?q={query} and returns the decoded
// candidates. The context carries the caller's search timeout.
func (s *HTTPSearch) Search(ctx context.Context, query string) ([]Candidate, error) {
	u := fmt.Sprintf("%s/api/search?q=%s", s.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search returned status %s", resp.Status)
	}

	var candidates []Candidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	s.logger.Debug("search finished", "query", query, "candidates", len(candidates))
	return candidates, nil
}

var _ SearchProvider = (*HTTPSearch)(nil)
