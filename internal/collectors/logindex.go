package collectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/moolen/causeway/internal/config"
	"github.com/moolen/causeway/internal/logging"
)

// LogIndexClient searches an Elasticsearch-compatible log index.
type LogIndexClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	health     *endpointHealth
	logger     *logging.Logger
}

// NewLogIndexClient creates a log index client from a resolved profile.
func NewLogIndexClient(profile config.ResolvedProfile, queryTimeout time.Duration) *LogIndexClient {
	logger := logging.GetLogger("collectors.logindex")
	health := newEndpointHealth()

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxConnsPerHost:     20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &LogIndexClient{
		baseURL: strings.TrimSuffix(profile.Endpoint, "/"),
		token:   profile.Token,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   queryTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(breakerSettings(profile.Name, logger, health.set)),
		health:  health,
		logger:  logger,
	}
}

// SearchQuery is a structured log search request.
type SearchQuery struct {
	// Text is matched against the log message field
	Text string
	// Service filters on the service/app label
	Service string
	// Namespace filters on the namespace label
	Namespace string
	// Start and End bound the @timestamp field
	Start time.Time
	End   time.Time
	// Limit caps the number of returned entries
	Limit int
}

// LogEntry is one hit from the log index.
type LogEntry struct {
	Timestamp time.Time      `json:"@timestamp"`
	Message   string         `json:"message"`
	Level     string         `json:"level,omitempty"`
	Service   string         `json:"service,omitempty"`
	Namespace string         `json:"namespace,omitempty"`
	Fields    map[string]any `json:"-"`
}

type searchHit struct {
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// buildQueryBody assembles the bool-filter query document.
func buildQueryBody(q SearchQuery) map[string]any {
	filters := []map[string]any{
		{"range": map[string]any{"@timestamp": map[string]any{
			"gte": q.Start.Format(time.RFC3339),
			"lte": q.End.Format(time.RFC3339),
		}}},
	}
	if q.Service != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"service": q.Service}})
	}
	if q.Namespace != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"namespace": q.Namespace}})
	}

	boolQuery := map[string]any{"filter": filters}
	if q.Text != "" {
		boolQuery["must"] = []map[string]any{
			{"match": map[string]any{"message": q.Text}},
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  limit,
		"sort":  []map[string]any{{"@timestamp": map[string]any{"order": "desc"}}},
	}
}

// Search executes a structured query and extracts hits.hits[]._source.
// The second return value reports whether the result was truncated at
// the limit.
func (c *LogIndexClient) Search(ctx context.Context, q SearchQuery) ([]LogEntry, bool, error) {
	body, err := json.Marshal(buildQueryBody(q))
	if err != nil {
		return nil, false, fmt.Errorf("marshal search query: %w", err)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		reqURL := fmt.Sprintf("%s/_search", c.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("create search request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute search: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			c.logger.Error("log search failed: status=%d", resp.StatusCode)
			return nil, fmt.Errorf("search failed (status %d)", resp.StatusCode)
		}

		var parsed searchResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("parse search response: %w", err)
		}
		return &parsed, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, false, ErrEndpointOpen
		}
		c.health.set(config.EndpointConnError)
		return nil, false, err
	}
	c.health.set(config.EndpointOK)

	parsed := out.(*searchResponse)
	entries := make([]LogEntry, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		var entry LogEntry
		if err := json.Unmarshal(hit.Source, &entry); err != nil {
			// Keep unparsable sources as raw messages rather than dropping them.
			entry = LogEntry{Message: string(hit.Source)}
		}
		entries = append(entries, entry)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	truncated := parsed.Hits.Total.Value > len(entries) || len(entries) >= limit
	return entries, truncated, nil
}

// Status returns the last known endpoint reachability.
func (c *LogIndexClient) Status() config.EndpointStatus {
	return c.health.get()
}
