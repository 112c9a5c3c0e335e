package collectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/config"
)

func testProfile(t *testing.T, endpoint string, ctype config.CollectorType) config.ResolvedProfile {
	t.Helper()
	return config.ResolveProfile(config.CollectorProfile{
		Name:     "test-" + string(ctype),
		Type:     ctype,
		Enabled:  true,
		Endpoint: endpoint,
	})
}

func TestPrometheusQueryRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/query_range", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, `up{job="api"}`, r.PostForm.Get("query"))
		assert.NotEmpty(t, r.PostForm.Get("start"))
		assert.NotEmpty(t, r.PostForm.Get("step"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"status": "success",
			"data": {"result": [
				{"metric": {"pod": "api-0"}, "values": [[1700000000, "0.5"], [1700000060, "0.75"]]}
			]}
		}`))
	}))
	defer server.Close()

	client := NewPrometheusClient(testProfile(t, server.URL, config.CollectorPrometheus), 5*time.Second)
	result, err := client.QueryRange(context.Background(), `up{job="api"}`,
		time.Unix(1700000000, 0), time.Unix(1700000300, 0), time.Minute)
	require.NoError(t, err)
	require.Len(t, result.Result, 1)

	series := result.Result[0]
	assert.Equal(t, "api-0", series.Metric["pod"])
	require.Len(t, series.Values, 2)
	assert.Equal(t, float64(1700000000), series.Values[0].Timestamp)
	assert.Equal(t, 0.5, series.Values[0].Value)
	assert.Equal(t, 0.75, series.Values[1].Value)
	assert.Equal(t, config.EndpointOK, client.Status())
}

func TestPrometheusQueryRangeErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewPrometheusClient(testProfile(t, server.URL, config.CollectorPrometheus), 5*time.Second)
	_, err := client.QueryRange(context.Background(), "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	require.Error(t, err)
	assert.Equal(t, config.EndpointConnError, client.Status())
}

func TestPrometheusBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewPrometheusClient(testProfile(t, server.URL, config.CollectorPrometheus), 5*time.Second)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := client.QueryRange(ctx, "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
		require.Error(t, err)
	}

	// Sixth call hits the open breaker without touching the endpoint.
	_, err := client.QueryRange(ctx, "up", time.Now().Add(-time.Hour), time.Now(), time.Minute)
	assert.ErrorIs(t, err, ErrEndpointOpen)
	assert.Equal(t, config.EndpointUnreachable, client.Status())
}

func TestSeriesPointRoundTrip(t *testing.T) {
	var p SeriesPoint
	require.NoError(t, json.Unmarshal([]byte(`[1700000000.5, "42.25"]`), &p))
	assert.Equal(t, 1700000000.5, p.Timestamp)
	assert.Equal(t, 42.25, p.Value)

	out, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `[1700000000.5, "42.25"]`, string(out))
}

func TestSeriesPointRejectsGarbage(t *testing.T) {
	var p SeriesPoint
	assert.Error(t, json.Unmarshal([]byte(`[1700000000, "not-a-number"]`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"ts": 1}`), &p))
}

func TestLogIndexSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_search", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "query")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 2},
				"hits": [
					{"_source": {"@timestamp": "2026-08-24T10:00:00Z", "message": "connection refused", "level": "error", "service": "api"}},
					{"_source": {"@timestamp": "2026-08-24T09:59:00Z", "message": "retrying", "level": "warn", "service": "api"}}
				]
			}
		}`))
	}))
	defer server.Close()

	t.Setenv("LOG_INDEX_TOKEN", "secret-token")
	profile := config.ResolveProfile(config.CollectorProfile{
		Name:     "logs",
		Type:     config.CollectorLogIndex,
		Enabled:  true,
		Endpoint: server.URL,
		TokenEnv: "LOG_INDEX_TOKEN",
	})

	client := NewLogIndexClient(profile, 5*time.Second)
	entries, truncated, err := client.Search(context.Background(), SearchQuery{
		Text:    "connection",
		Service: "api",
		Start:   time.Now().Add(-time.Hour),
		End:     time.Now(),
		Limit:   50,
	})
	require.NoError(t, err)
	assert.False(t, truncated)
	require.Len(t, entries, 2)
	assert.Equal(t, "connection refused", entries[0].Message)
	assert.Equal(t, "error", entries[0].Level)
}

func TestLogIndexSearchTruncation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"hits": {
				"total": {"value": 5000},
				"hits": [{"_source": {"message": "x"}}]
			}
		}`))
	}))
	defer server.Close()

	client := NewLogIndexClient(testProfile(t, server.URL, config.CollectorLogIndex), 5*time.Second)
	entries, truncated, err := client.Search(context.Background(), SearchQuery{
		Start: time.Now().Add(-time.Hour),
		End:   time.Now(),
		Limit: 1,
	})
	require.NoError(t, err)
	assert.True(t, truncated)
	assert.Len(t, entries, 1)
}

func TestTracingFindTraces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/services":
			_, _ = w.Write([]byte(`{"data": ["api", "checkout"]}`))
		case "/api/traces":
			assert.Equal(t, "checkout", r.URL.Query().Get("service"))
			_, _ = w.Write([]byte(`{
				"data": [{
					"traceID": "abc123",
					"spans": [
						{"spanID": "s1", "operationName": "HTTP GET", "startTime": 1700000000000000, "duration": 250000,
						 "tags": [{"key": "error", "value": true}]}
					]
				}]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewTracingClient(testProfile(t, server.URL, config.CollectorTracing), 5*time.Second)

	services, err := client.Services(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "checkout"}, services)

	traces, err := client.FindTraces(context.Background(), "checkout",
		time.Now().Add(-time.Hour), time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, traces, 1)
	assert.Equal(t, "abc123", traces[0].TraceID)
	assert.True(t, traces[0].HasError())
}

func TestTracingGetTraceNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": []}`))
	}))
	defer server.Close()

	client := NewTracingClient(testProfile(t, server.URL, config.CollectorTracing), 5*time.Second)
	_, err := client.GetTrace(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestSourceHostListCommits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/projects/team%2Fapi/repository/commits", r.URL.EscapedPath())
		assert.Equal(t, "deploy-token", r.Header.Get("PRIVATE-TOKEN"))
		assert.NotEmpty(t, r.URL.Query().Get("since"))

		_, _ = w.Write([]byte(`[
			{"id": "deadbeef", "short_id": "deadbee", "title": "Bump connection pool size",
			 "author_name": "dev", "created_at": "2026-08-24T08:00:00Z"}
		]`))
	}))
	defer server.Close()

	t.Setenv("SOURCE_HOST_TOKEN", "deploy-token")
	profile := config.ResolveProfile(config.CollectorProfile{
		Name:     "gitlab",
		Type:     config.CollectorSourceHost,
		Enabled:  true,
		Endpoint: server.URL,
		TokenEnv: "SOURCE_HOST_TOKEN",
	})

	client := NewSourceHostClient(profile, 5*time.Second)
	commits, err := client.ListCommits(context.Background(), "team/api",
		time.Now().Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, "deadbeef", commits[0].SHA)
	assert.Equal(t, "Bump connection pool size", commits[0].Title)
}

func TestClampTailLines(t *testing.T) {
	assert.Equal(t, int64(1), ClampTailLines(0))
	assert.Equal(t, int64(1), ClampTailLines(-5))
	assert.Equal(t, int64(100), ClampTailLines(100))
	assert.Equal(t, int64(5000), ClampTailLines(5000))
	assert.Equal(t, int64(5000), ClampTailLines(99999))
}
