package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/moolen/causeway/internal/config"
	"github.com/moolen/causeway/internal/logging"
)

// SourceHostClient reads commit history from a GitLab/GitHub-style API.
// Only read operations are exposed; the change-domain agent uses commit
// metadata to correlate deploys with incident onset.
type SourceHostClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	health     *endpointHealth
	logger     *logging.Logger
}

// NewSourceHostClient creates a source host client from a resolved profile.
func NewSourceHostClient(profile config.ResolvedProfile, queryTimeout time.Duration) *SourceHostClient {
	logger := logging.GetLogger("collectors.sourcehost")
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

	return &SourceHostClient{
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

// Commit is one commit from the repository history.
type Commit struct {
	SHA       string    `json:"id"`
	ShortSHA  string    `json:"short_id,omitempty"`
	Title     string    `json:"title"`
	Message   string    `json:"message,omitempty"`
	Author    string    `json:"author_name,omitempty"`
	Timestamp time.Time `json:"created_at"`
}

// ListCommits returns commits for a project since the given time,
// newest first. Project is the URL-encoded repository path.
func (c *SourceHostClient) ListCommits(ctx context.Context, project string, since time.Time, limit int) ([]Commit, error) {
	if limit <= 0 {
		limit = 50
	}
	query := url.Values{}
	query.Set("since", since.Format(time.RFC3339))
	query.Set("per_page", fmt.Sprintf("%d", limit))

	out, err := c.breaker.Execute(func() (any, error) {
		reqURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/commits?%s",
			c.baseURL, url.PathEscape(project), query.Encode())
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create commits request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute commits request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			c.logger.Error("commit listing failed: status=%d", resp.StatusCode)
			return nil, fmt.Errorf("commit listing failed (status %d)", resp.StatusCode)
		}

		var commits []Commit
		if err := json.Unmarshal(body, &commits); err != nil {
			return nil, fmt.Errorf("parse commits response: %w", err)
		}
		return commits, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrEndpointOpen
		}
		c.health.set(config.EndpointConnError)
		return nil, err
	}
	c.health.set(config.EndpointOK)
	return out.([]Commit), nil
}

// FileAt fetches one file's content at a ref. Used by the code-domain
// agent to inspect configuration that shipped with a suspect commit.
func (c *SourceHostClient) FileAt(ctx context.Context, project, path, ref string) (string, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		reqURL := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s/raw?ref=%s",
			c.baseURL, url.PathEscape(project), url.PathEscape(path), url.QueryEscape(ref))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create file request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("PRIVATE-TOKEN", c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute file request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("file fetch failed (status %d)", resp.StatusCode)
		}
		return string(body), nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", ErrEndpointOpen
		}
		c.health.set(config.EndpointConnError)
		return "", err
	}
	c.health.set(config.EndpointOK)
	return out.(string), nil
}

// Status returns the last known endpoint reachability.
func (c *SourceHostClient) Status() config.EndpointStatus {
	return c.health.get()
}
