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

// TracingClient reads from a Jaeger-compatible query API.
type TracingClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	health     *endpointHealth
	logger     *logging.Logger
}

// NewTracingClient creates a tracing backend client from a resolved profile.
func NewTracingClient(profile config.ResolvedProfile, queryTimeout time.Duration) *TracingClient {
	logger := logging.GetLogger("collectors.tracing")
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

	return &TracingClient{
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

// TraceSpan is one span within a trace.
type TraceSpan struct {
	SpanID        string        `json:"spanID"`
	OperationName string        `json:"operationName"`
	StartTime     int64         `json:"startTime"` // microseconds since epoch
	Duration      int64         `json:"duration"`  // microseconds
	Tags          []SpanTag     `json:"tags,omitempty"`
	References    []SpanRef     `json:"references,omitempty"`
	ProcessID     string        `json:"processID,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	Logs          []SpanLogLine `json:"logs,omitempty"`
}

// SpanTag is a key/value annotation on a span.
type SpanTag struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// SpanRef links a span to its parent.
type SpanRef struct {
	RefType string `json:"refType"`
	TraceID string `json:"traceID"`
	SpanID  string `json:"spanID"`
}

// SpanLogLine is one structured log record attached to a span.
type SpanLogLine struct {
	Timestamp int64     `json:"timestamp"`
	Fields    []SpanTag `json:"fields,omitempty"`
}

// Trace is one distributed trace.
type Trace struct {
	TraceID string      `json:"traceID"`
	Spans   []TraceSpan `json:"spans"`
}

type tracesResponse struct {
	Data   []Trace `json:"data"`
	Errors []struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"errors,omitempty"`
}

type servicesResponse struct {
	Data []string `json:"data"`
}

// HasError reports whether any span in the trace carries an error tag.
func (t Trace) HasError() bool {
	for _, span := range t.Spans {
		for _, tag := range span.Tags {
			if tag.Key == "error" {
				if b, ok := tag.Value.(bool); ok && b {
					return true
				}
			}
		}
	}
	return false
}

func (c *TracingClient) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	out, err := c.breaker.Execute(func() (any, error) {
		reqURL := c.baseURL + path
		if len(query) > 0 {
			reqURL += "?" + query.Encode()
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create trace request: %w", err)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute trace request: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			c.logger.Error("trace query failed: status=%d path=%s", resp.StatusCode, path)
			return nil, fmt.Errorf("trace query failed (status %d)", resp.StatusCode)
		}
		return body, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, ErrEndpointOpen
		}
		c.health.set(config.EndpointConnError)
		return nil, err
	}
	c.health.set(config.EndpointOK)
	return out.([]byte), nil
}

// Services lists the service names known to the tracing backend.
func (c *TracingClient) Services(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/api/services", nil)
	if err != nil {
		return nil, err
	}
	var parsed servicesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse services response: %w", err)
	}
	return parsed.Data, nil
}

// FindTraces returns recent traces for a service within the window,
// newest first, capped at limit.
func (c *TracingClient) FindTraces(ctx context.Context, service string, start, end time.Time, limit int) ([]Trace, error) {
	if limit <= 0 {
		limit = 20
	}
	query := url.Values{}
	query.Set("service", service)
	query.Set("start", fmt.Sprintf("%d", start.UnixMicro()))
	query.Set("end", fmt.Sprintf("%d", end.UnixMicro()))
	query.Set("limit", fmt.Sprintf("%d", limit))

	body, err := c.get(ctx, "/api/traces", query)
	if err != nil {
		return nil, err
	}
	var parsed tracesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse traces response: %w", err)
	}
	return parsed.Data, nil
}

// GetTrace fetches one trace by id.
func (c *TracingClient) GetTrace(ctx context.Context, traceID string) (*Trace, error) {
	body, err := c.get(ctx, "/api/traces/"+url.PathEscape(traceID), nil)
	if err != nil {
		return nil, err
	}
	var parsed tracesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse trace response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("trace %s not found", traceID)
	}
	return &parsed.Data[0], nil
}

// Status returns the last known endpoint reachability.
func (c *TracingClient) Status() config.EndpointStatus {
	return c.health.get()
}
