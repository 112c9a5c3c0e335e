package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/moolen/causeway/internal/collectors"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/metrics"
	"github.com/moolen/causeway/internal/models"
)

// Bounds for clamped numeric parameters.
const (
	MinRangeMinutes = 1
	MaxRangeMinutes = 1440
)

// ClampMinutes bounds a minutes parameter to [1, 1440].
func ClampMinutes(n int) int {
	if n < MinRangeMinutes {
		return MinRangeMinutes
	}
	if n > MaxRangeMinutes {
		return MaxRangeMinutes
	}
	return n
}

// Params is the parameter map passed with an intent.
type Params map[string]any

func (p Params) str(key string) string {
	if v, ok := p[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (p Params) num(key string, fallback int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return fallback
}

func (p Params) boolean(key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

// IntentSchema declares an intent's parameters for the tool registry
// endpoint and for request validation.
type IntentSchema struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Required    []string `json:"required"`
	Optional    []string `json:"optional,omitempty"`
}

type handlerFunc func(ctx context.Context, params Params) models.ToolResult

type registeredIntent struct {
	schema  IntentSchema
	handler handlerFunc
}

// Executor dispatches intents to collector clients and normalizes the
// outcomes. Collector clients may be nil when the matching profile is
// not configured; intents that need them fail with a fixed phrase.
type Executor struct {
	prometheus *collectors.PrometheusClient
	logIndex   *collectors.LogIndexClient
	cluster    *collectors.ClusterClient
	tracing    *collectors.TracingClient
	sourceHost *collectors.SourceHostClient

	intents map[string]registeredIntent
	logger  *logging.Logger
}

// Options carries the collector clients for an executor.
type Options struct {
	Prometheus *collectors.PrometheusClient
	LogIndex   *collectors.LogIndexClient
	Cluster    *collectors.ClusterClient
	Tracing    *collectors.TracingClient
	SourceHost *collectors.SourceHostClient
}

// NewExecutor creates an executor with the standard intent registry.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		prometheus: opts.Prometheus,
		logIndex:   opts.LogIndex,
		cluster:    opts.Cluster,
		tracing:    opts.Tracing,
		sourceHost: opts.SourceHost,
		intents:    make(map[string]registeredIntent),
		logger:     logging.GetLogger("tools"),
	}

	e.register(IntentSchema{
		Name:        "fetch_pod_logs",
		Label:       "Fetch Pod Logs",
		Description: "Tail a container's logs and extract error lines.",
		Required:    []string{"namespace", "pod"},
		Optional:    []string{"container", "tail_lines", "previous"},
	}, e.fetchPodLogs)

	e.register(IntentSchema{
		Name:        "describe_resource",
		Label:       "Describe Resource",
		Description: "Render a resource's current state as YAML.",
		Required:    []string{"kind", "name"},
		Optional:    []string{"namespace"},
	}, e.describeResource)

	e.register(IntentSchema{
		Name:        "query_prometheus",
		Label:       "Query Metrics",
		Description: "Run a PromQL range query over a recent window.",
		Required:    []string{"query"},
		Optional:    []string{"range_minutes", "step_seconds"},
	}, e.queryPrometheus)

	e.register(IntentSchema{
		Name:        "search_logs",
		Label:       "Search Logs",
		Description: "Search the log index for matching entries.",
		Required:    []string{"text"},
		Optional:    []string{"service", "namespace", "since_minutes", "limit"},
	}, e.searchLogs)

	e.register(IntentSchema{
		Name:        "check_pod_status",
		Label:       "Check Pod Status",
		Description: "Summarize a pod's phase and container states.",
		Required:    []string{"namespace", "pod"},
	}, e.checkPodStatus)

	e.register(IntentSchema{
		Name:        "get_events",
		Label:       "Get Events",
		Description: "List recent events in a namespace, newest first.",
		Required:    []string{"namespace"},
		Optional:    []string{"kind", "name"},
	}, e.getEvents)

	e.register(IntentSchema{
		Name:        "find_traces",
		Label:       "Find Traces",
		Description: "Find recent distributed traces for a service, or fetch one by id.",
		Required:    []string{"service"},
		Optional:    []string{"trace_id", "since_minutes", "limit"},
	}, e.findTraces)

	e.register(IntentSchema{
		Name:        "list_recent_commits",
		Label:       "List Recent Commits",
		Description: "List recent commits of the service repository.",
		Required:    []string{"repo"},
		Optional:    []string{"since_minutes", "limit"},
	}, e.listRecentCommits)

	e.register(IntentSchema{
		Name:        "re_investigate_service",
		Label:       "Re-investigate Service",
		Description: "Queue a focused follow-up investigation for one service.",
		Required:    []string{"service"},
	}, e.reInvestigateService)

	return e
}

func (e *Executor) register(schema IntentSchema, handler handlerFunc) {
	e.intents[schema.Name] = registeredIntent{schema: schema, handler: handler}
}

// Registry returns the declared intent schemas. Order is not
// guaranteed; callers sort for display.
func (e *Executor) Registry() []IntentSchema {
	out := make([]IntentSchema, 0, len(e.intents))
	for _, reg := range e.intents {
		out = append(out, reg.schema)
	}
	return out
}

// Execute validates parameters and runs one intent. Every outcome is a
// ToolResult; errors never escape as Go errors.
func (e *Executor) Execute(ctx context.Context, intent string, params Params) models.ToolResult {
	reg, ok := e.intents[intent]
	if !ok {
		return models.ToolResult{
			Success: false,
			Intent:  intent,
			Error:   fmt.Sprintf("unknown intent: %s", intent),
			Domain:  models.DomainUnknown,
		}
	}

	var missing []string
	for _, name := range reg.schema.Required {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		metrics.ToolExecutions.WithLabelValues(intent, "invalid").Inc()
		return models.ToolResult{
			Success: false,
			Intent:  intent,
			Error:   missingParamsError(missing),
			Domain:  models.DomainUnknown,
		}
	}

	result := reg.handler(ctx, params)
	result.Intent = intent
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	metrics.ToolExecutions.WithLabelValues(intent, outcome).Inc()
	return result
}

func failure(category string, err error, domain models.Domain, evType models.EvidenceType) models.ToolResult {
	return models.ToolResult{
		Success:      false,
		Error:        sanitizeError(category, err),
		Domain:       domain,
		EvidenceType: evType,
	}
}

func clusterFailure(err error, domain models.Domain, evType models.EvidenceType, namespace, resource string) models.ToolResult {
	return models.ToolResult{
		Success:      false,
		Error:        sanitizeClusterError(err, namespace, resource),
		Domain:       domain,
		EvidenceType: evType,
	}
}

func (e *Executor) fetchPodLogs(ctx context.Context, params Params) models.ToolResult {
	if e.cluster == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainCompute, EvidenceType: models.EvidenceTypeLog}
	}

	namespace := params.str("namespace")
	pod := params.str("pod")
	tail := collectors.ClampTailLines(int64(params.num("tail_lines", 500)))

	logs, clipped, err := e.cluster.GetPodLogs(ctx, namespace, pod,
		params.str("container"), tail, params.boolean("previous"))
	if err != nil {
		e.logger.Debug("fetch_pod_logs failed: %v", err)
		return clusterFailure(err, models.DomainCompute, models.EvidenceTypeLog, namespace, "pod")
	}

	snippets := ExtractErrorSnippets(logs, 20)
	return models.ToolResult{
		Success:          true,
		RawOutput:        logs,
		Summary:          fmt.Sprintf("fetched logs for pod %s/%s (%d error lines)", namespace, pod, len(snippets)),
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeLog,
		Domain:           models.DomainCompute,
		Severity:         ClassifySeverity(logs),
		Metadata: map[string]any{
			"namespace":  namespace,
			"pod":        pod,
			"tail_lines": tail,
			"truncated":  clipped,
		},
	}
}

func (e *Executor) queryPrometheus(ctx context.Context, params Params) models.ToolResult {
	if e.prometheus == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainUnknown, EvidenceType: models.EvidenceTypeMetric}
	}

	query := params.str("query")
	rangeMinutes := ClampMinutes(params.num("range_minutes", 60))
	stepSeconds := params.num("step_seconds", 60)
	if stepSeconds < 1 {
		stepSeconds = 60
	}
	end := time.Now()
	start := end.Add(-time.Duration(rangeMinutes) * time.Minute)

	result, err := e.prometheus.QueryRange(ctx, query, start, end,
		time.Duration(stepSeconds)*time.Second)
	if err != nil {
		e.logger.Debug("query_prometheus failed: %v", err)
		return failure(ErrCategoryPrometheus, err, ClassifyDomain(query), models.EvidenceTypeMetric)
	}

	downsampled := false
	for i := range result.Result {
		if len(result.Result[i].Values) > MaxSeriesPoints {
			result.Result[i].Values = DownsampleLTTB(result.Result[i].Values, MaxSeriesPoints)
			downsampled = true
		}
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return failure(ErrCategoryPrometheus, err, ClassifyDomain(query), models.EvidenceTypeMetric)
	}

	var snippets []string
	for _, series := range result.Result {
		if len(series.Values) == 0 {
			continue
		}
		last := series.Values[len(series.Values)-1]
		snippets = append(snippets, fmt.Sprintf("%s: latest=%g", formatLabels(series.Metric), last.Value))
	}

	return models.ToolResult{
		Success:          true,
		RawOutput:        string(raw),
		Summary:          fmt.Sprintf("range query returned %d series over %dm", len(result.Result), rangeMinutes),
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeMetric,
		Domain:           ClassifyDomain(query),
		Severity:         models.SeverityInfo,
		Metadata: map[string]any{
			"series":        len(result.Result),
			"range_minutes": rangeMinutes,
			"downsampled":   downsampled,
		},
	}
}

func (e *Executor) searchLogs(ctx context.Context, params Params) models.ToolResult {
	if e.logIndex == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainUnknown, EvidenceType: models.EvidenceTypeLog}
	}

	sinceMinutes := ClampMinutes(params.num("since_minutes", 60))
	end := time.Now()
	query := collectors.SearchQuery{
		Text:      params.str("text"),
		Service:   params.str("service"),
		Namespace: params.str("namespace"),
		Start:     end.Add(-time.Duration(sinceMinutes) * time.Minute),
		End:       end,
		Limit:     params.num("limit", 100),
	}

	entries, truncated, err := e.logIndex.Search(ctx, query)
	if err != nil {
		e.logger.Debug("search_logs failed: %v", err)
		return failure(ErrCategoryLogSearch, err, ClassifyDomain(query.Text), models.EvidenceTypeLog)
	}

	var lines []string
	for _, entry := range entries {
		lines = append(lines, entry.Message)
	}
	text := strings.Join(lines, "\n")

	return models.ToolResult{
		Success:          true,
		RawOutput:        text,
		Summary:          fmt.Sprintf("log search matched %d entries over %dm", len(entries), sinceMinutes),
		EvidenceSnippets: ExtractErrorSnippets(text, 20),
		EvidenceType:     models.EvidenceTypeLog,
		Domain:           ClassifyDomain(query.Text + " " + query.Service),
		Severity:         ClassifySeverity(text),
		Metadata: map[string]any{
			"entries":       len(entries),
			"since_minutes": sinceMinutes,
			"truncated":     truncated,
		},
	}
}

func (e *Executor) checkPodStatus(ctx context.Context, params Params) models.ToolResult {
	if e.cluster == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainCompute, EvidenceType: models.EvidenceTypeK8sResource}
	}

	namespace := params.str("namespace")
	name := params.str("pod")
	pod, err := e.cluster.GetPod(ctx, namespace, name)
	if err != nil {
		e.logger.Debug("check_pod_status failed: %v", err)
		return clusterFailure(err, models.DomainCompute, models.EvidenceTypeK8sResource, namespace, "pod")
	}

	var snippets []string
	restarts := int32(0)
	for _, cs := range pod.Status.ContainerStatuses {
		restarts += cs.RestartCount
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			snippets = append(snippets, fmt.Sprintf("container %s waiting: %s", cs.Name, cs.State.Waiting.Reason))
		}
		if cs.State.Terminated != nil && cs.State.Terminated.Reason != "" {
			snippets = append(snippets, fmt.Sprintf("container %s terminated: %s (exit %d)",
				cs.Name, cs.State.Terminated.Reason, cs.State.Terminated.ExitCode))
		}
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Status != "True" && cond.Reason != "" {
			snippets = append(snippets, fmt.Sprintf("condition %s=%s: %s", cond.Type, cond.Status, cond.Reason))
		}
	}

	summary := fmt.Sprintf("pod %s/%s phase=%s restarts=%d", namespace, name, pod.Status.Phase, restarts)
	severity := models.SeverityInfo
	if pod.Status.Phase == "Failed" {
		severity = models.SeverityCritical
	} else if len(snippets) > 0 {
		severity = models.SeverityMedium
	}

	return models.ToolResult{
		Success:          true,
		RawOutput:        summary + "\n" + strings.Join(snippets, "\n"),
		Summary:          summary,
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeK8sResource,
		Domain:           models.DomainCompute,
		Severity:         severity,
		Metadata: map[string]any{
			"phase":    string(pod.Status.Phase),
			"restarts": restarts,
			"node":     pod.Spec.NodeName,
		},
	}
}

func (e *Executor) getEvents(ctx context.Context, params Params) models.ToolResult {
	if e.cluster == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainUnknown, EvidenceType: models.EvidenceTypeK8sEvent}
	}

	namespace := params.str("namespace")
	kind := params.str("kind")
	name := params.str("name")

	var lines []string
	var truncated bool
	if kind != "" && name != "" {
		events, err := e.cluster.EventsForObject(ctx, namespace, kind, name)
		if err != nil {
			e.logger.Debug("get_events failed: %v", err)
			return clusterFailure(err, ClassifyDomain(kind), models.EvidenceTypeK8sEvent, "", "")
		}
		for _, ev := range events {
			lines = append(lines, formatEvent(ev.Type, ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message))
		}
	} else {
		events, trunc, err := e.cluster.ListEvents(ctx, namespace)
		if err != nil {
			e.logger.Debug("get_events failed: %v", err)
			return clusterFailure(err, models.DomainUnknown, models.EvidenceTypeK8sEvent, "", "")
		}
		truncated = trunc
		for _, ev := range events {
			lines = append(lines, formatEvent(ev.Type, ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message))
		}
	}

	text := strings.Join(lines, "\n")
	var snippets []string
	for _, line := range lines {
		if strings.HasPrefix(line, "Warning") {
			snippets = append(snippets, line)
			if len(snippets) >= 20 {
				break
			}
		}
	}

	return models.ToolResult{
		Success:          true,
		RawOutput:        text,
		Summary:          fmt.Sprintf("%d events in namespace %s (%d warnings)", len(lines), namespace, len(snippets)),
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeK8sEvent,
		Domain:           ClassifyDomain(kind),
		Severity:         ClassifySeverity(text),
		Metadata: map[string]any{
			"events":    len(lines),
			"truncated": truncated,
		},
	}
}

func (e *Executor) findTraces(ctx context.Context, params Params) models.ToolResult {
	if e.tracing == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainUnknown, EvidenceType: models.EvidenceTypeTrace}
	}

	service := params.str("service")
	var traces []collectors.Trace
	if traceID := params.str("trace_id"); traceID != "" {
		trace, err := e.tracing.GetTrace(ctx, traceID)
		if err != nil {
			e.logger.Debug("find_traces failed: %v", err)
			return failure(ErrCategoryTracing, err, models.DomainUnknown, models.EvidenceTypeTrace)
		}
		traces = []collectors.Trace{*trace}
	} else {
		sinceMinutes := ClampMinutes(params.num("since_minutes", 60))
		end := time.Now()
		found, err := e.tracing.FindTraces(ctx, service,
			end.Add(-time.Duration(sinceMinutes)*time.Minute), end, params.num("limit", 20))
		if err != nil {
			e.logger.Debug("find_traces failed: %v", err)
			return failure(ErrCategoryTracing, err, models.DomainUnknown, models.EvidenceTypeTrace)
		}
		traces = found
	}

	errored := 0
	var snippets []string
	var lines []string
	for _, trace := range traces {
		slowest := ""
		var slowestDur int64
		for _, span := range trace.Spans {
			if span.Duration > slowestDur {
				slowestDur = span.Duration
				slowest = span.OperationName
			}
		}
		line := fmt.Sprintf("trace %s: %d spans, slowest %s (%dms)",
			trace.TraceID, len(trace.Spans), slowest, slowestDur/1000)
		lines = append(lines, line)
		if trace.HasError() {
			errored++
			snippets = append(snippets, line+" [error]")
		}
	}

	severity := models.SeverityInfo
	if errored > 0 {
		severity = models.SeverityMedium
	}
	return models.ToolResult{
		Success:          true,
		RawOutput:        strings.Join(lines, "\n"),
		Summary:          fmt.Sprintf("found %d traces for %s (%d with errors)", len(traces), service, errored),
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeTrace,
		Domain:           models.DomainNetwork,
		Severity:         severity,
		Metadata: map[string]any{
			"traces":  len(traces),
			"errored": errored,
		},
	}
}

func (e *Executor) listRecentCommits(ctx context.Context, params Params) models.ToolResult {
	if e.sourceHost == nil {
		return models.ToolResult{Success: false, Error: ErrCategoryUnconfig,
			Domain: models.DomainUnknown, EvidenceType: models.EvidenceTypeChange}
	}

	repo := params.str("repo")
	sinceMinutes := ClampMinutes(params.num("since_minutes", 1440))
	since := time.Now().Add(-time.Duration(sinceMinutes) * time.Minute)

	commits, err := e.sourceHost.ListCommits(ctx, repo, since, params.num("limit", 20))
	if err != nil {
		e.logger.Debug("list_recent_commits failed: %v", err)
		return failure(ErrCategorySourceHost, err, models.DomainUnknown, models.EvidenceTypeChange)
	}

	var lines []string
	for _, commit := range commits {
		lines = append(lines, fmt.Sprintf("%s %s (%s, %s)",
			commit.ShortSHA, commit.Title, commit.Author, commit.Timestamp.Format(time.RFC3339)))
	}

	// Recent deploy-window commits are change evidence by themselves.
	var snippets []string
	if len(lines) > 0 {
		snippets = lines
		if len(snippets) > 5 {
			snippets = snippets[:5]
		}
	}

	return models.ToolResult{
		Success:          true,
		RawOutput:        strings.Join(lines, "\n"),
		Summary:          fmt.Sprintf("%d commits in the last %dm", len(commits), sinceMinutes),
		EvidenceSnippets: snippets,
		EvidenceType:     models.EvidenceTypeChange,
		Domain:           models.DomainUnknown,
		Severity:         models.SeverityInfo,
		Metadata: map[string]any{
			"repo":    repo,
			"commits": len(commits),
		},
	}
}

func (e *Executor) reInvestigateService(ctx context.Context, params Params) models.ToolResult {
	return models.ToolResult{
		Success:      false,
		Error:        "re_investigate_service is not implemented",
		Domain:       models.DomainUnknown,
		EvidenceType: models.EvidenceTypeLog,
		Metadata:     map[string]any{"service": params.str("service")},
	}
}

func formatEvent(evType, reason, kind, name, message string) string {
	return fmt.Sprintf("%s %s %s/%s: %s", evType, reason, kind, name, message)
}

func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
