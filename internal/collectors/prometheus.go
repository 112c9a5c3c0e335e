package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/moolen/causeway/internal/config"
	"github.com/moolen/causeway/internal/logging"
)

// PrometheusClient queries a Prometheus-compatible range API.
type PrometheusClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	health     *endpointHealth
	logger     *logging.Logger
}

// NewPrometheusClient creates a client with tuned connection pooling.
func NewPrometheusClient(profile config.ResolvedProfile, queryTimeout time.Duration) *PrometheusClient {
	logger := logging.GetLogger("collectors.prometheus")
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

	return &PrometheusClient{
		baseURL: strings.TrimSuffix(profile.Endpoint, "/"),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   queryTimeout,
		},
		breaker: gobreaker.NewCircuitBreaker(breakerSettings(profile.Name, logger, health.set)),
		health:  health,
		logger:  logger,
	}
}

// SeriesPoint is one (timestamp, value) sample.
type SeriesPoint struct {
	Timestamp float64
	Value     float64
}

// UnmarshalJSON parses the Prometheus [ts, "value"] pair encoding.
func (p *SeriesPoint) UnmarshalJSON(data []byte) error {
	var raw [2]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &p.Timestamp); err != nil {
		return err
	}
	var valueStr string
	if err := json.Unmarshal(raw[1], &valueStr); err != nil {
		return err
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return fmt.Errorf("parse sample value %q: %w", valueStr, err)
	}
	p.Value = value
	return nil
}

// MarshalJSON renders the Prometheus pair encoding back out.
func (p SeriesPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Timestamp, strconv.FormatFloat(p.Value, 'f', -1, 64)})
}

// Series is one labeled time series from a range query.
type Series struct {
	Metric map[string]string `json:"metric"`
	Values []SeriesPoint     `json:"values"`
}

// RangeResult is the payload of a successful range query.
type RangeResult struct {
	Result []Series `json:"result"`
}

type rangeResponse struct {
	Status string      `json:"status"`
	Data   RangeResult `json:"data"`
	Error  string      `json:"error,omitempty"`
}

// QueryRange executes a range query. Any non-empty data.result is
// treated as success by callers.
func (c *PrometheusClient) QueryRange(ctx context.Context, query string, start, end time.Time, step time.Duration) (*RangeResult, error) {
	form := url.Values{}
	form.Set("query", query)
	form.Set("start", strconv.FormatInt(start.Unix(), 10))
	form.Set("end", strconv.FormatInt(end.Unix(), 10))
	form.Set("step", strconv.FormatInt(int64(step.Seconds()), 10))

	out, err := c.breaker.Execute(func() (any, error) {
		reqURL := fmt.Sprintf("%s/api/v1/query_range", c.baseURL)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL,
			strings.NewReader(form.Encode()))
		if err != nil {
			return nil, fmt.Errorf("create range query request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute range query: %w", err)
		}
		defer resp.Body.Close()

		// Always read the body to completion for connection reuse.
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			c.logger.Error("prometheus range query failed: status=%d", resp.StatusCode)
			return nil, fmt.Errorf("range query failed (status %d)", resp.StatusCode)
		}

		var parsed rangeResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parse range query response: %w", err)
		}
		if parsed.Status != "success" {
			return nil, fmt.Errorf("range query returned status %q", parsed.Status)
		}
		return &parsed.Data, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrEndpointOpen
		}
		c.health.set(config.EndpointConnError)
		return nil, err
	}
	c.health.set(config.EndpointOK)
	return out.(*RangeResult), nil
}

// Status returns the last known endpoint reachability.
func (c *PrometheusClient) Status() config.EndpointStatus {
	return c.health.get()
}
