package agents

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
	"github.com/moolen/causeway/internal/provider"
)

// EventSink receives notable agent events; the session event emitter
// implements it. A nil sink is valid.
type EventSink interface {
	Emit(agentName, eventType, message string)
}

// Agent analyzes one infrastructure domain.
type Agent struct {
	domain     models.Domain
	platform   models.Platform
	llm        provider.Provider
	cluster    *collectors.ClusterClient
	prometheus *collectors.PrometheusClient
	sink       EventSink
	logger     *logging.Logger
}

// New creates a domain agent. The cluster and prometheus clients may be
// nil; the payload then carries topology only.
func New(domain models.Domain, platform models.Platform, llm provider.Provider,
	cluster *collectors.ClusterClient, prometheus *collectors.PrometheusClient, sink EventSink) *Agent {
	return &Agent{
		domain:     domain,
		platform:   platform,
		llm:        llm,
		cluster:    cluster,
		prometheus: prometheus,
		sink:       sink,
		logger:     logging.GetLogger("agents." + string(domain)),
	}
}

// Domain returns the domain this agent covers.
func (a *Agent) Domain() models.Domain { return a.domain }

func (a *Agent) name() string { return string(a.domain) + "_agent" }

// payload is the fixed-shape data document sent to the model.
type payload struct {
	Domain     models.Domain          `json:"domain"`
	Platform   models.Platform        `json:"platform"`
	Scope      models.DiagnosticScope `json:"scope"`
	Resources  []models.TopologyNode  `json:"resources"`
	Events     []string               `json:"events,omitempty"`
	LogLines   []string               `json:"log_lines,omitempty"`
	Metrics    []string               `json:"metrics,omitempty"`
	PVCs       []string               `json:"pvcs,omitempty"`
	Truncation models.TruncationFlags `json:"truncation"`
	Edges      []models.TopologyEdge  `json:"edges,omitempty"`
}

// agentResponse is the strict JSON shape the prompt demands.
type agentResponse struct {
	Anomalies  []models.DomainAnomaly `json:"anomalies"`
	RuledOut   []string               `json:"ruled_out"`
	Confidence int                    `json:"confidence"`
}

// Run collects the domain payload and asks the model for findings.
// The returned report always carries a terminal status; model parse
// failures degrade to an empty SUCCESS with confidence 0.
func (a *Agent) Run(ctx context.Context, scope models.DiagnosticScope, snap *models.TopologySnapshot) models.DomainReport {
	started := time.Now()
	report := models.DomainReport{Domain: a.domain, Status: models.StatusRunning}

	data := a.collect(ctx, scope, snap)
	report.Truncation = data.Truncation

	body, err := json.Marshal(data)
	if err != nil {
		report.Status = models.StatusFailed
		report.FailureReason = models.FailureException
		report.DurationMs = time.Since(started).Milliseconds()
		return report
	}

	llmStart := time.Now()
	var parsed agentResponse
	_, err = provider.ChatJSON(ctx, a.llm, systemPrompt(a.domain, a.platform),
		string(body), &parsed)
	metrics.LLMRequestDuration.WithLabelValues(a.name()).Observe(time.Since(llmStart).Seconds())

	switch {
	case err == nil:
		metrics.LLMRequests.WithLabelValues(a.name(), "success").Inc()
		report.Status = models.StatusSuccess
		report.Confidence = clampConfidence(parsed.Confidence)
		report.Anomalies = a.ownAnomalies(parsed.Anomalies)
		report.RuledOut = parsed.RuledOut
		for _, anomaly := range report.Anomalies {
			if anomaly.EvidenceRef != "" {
				report.EvidenceRefs = append(report.EvidenceRefs, anomaly.EvidenceRef)
			}
		}
	case ctx.Err() != nil:
		metrics.LLMRequests.WithLabelValues(a.name(), "timeout").Inc()
		report.Status = models.StatusFailed
		report.FailureReason = models.FailureTimeout
	default:
		// Unparsable model output is not a pipeline failure: synthesis
		// still runs over the other domains.
		metrics.LLMRequests.WithLabelValues(a.name(), "parse_error").Inc()
		a.logger.Warn("%s produced unparsable output: %v", a.name(), err)
		if a.sink != nil {
			a.sink.Emit(a.name(), "llm_parse_error", "model output was not valid JSON; reporting empty findings")
		}
		report.Status = models.StatusSuccess
		report.Confidence = 0
		report.Anomalies = []models.DomainAnomaly{}
	}

	report.DurationMs = time.Since(started).Milliseconds()
	return report
}

// collect assembles the bounded payload: scoped topology, events, and
// the domain's own deep data (log tails, metric series, claim listings).
// Every section has a hard cap and a matching truncation flag.
func (a *Agent) collect(ctx context.Context, scope models.DiagnosticScope, snap *models.TopologySnapshot) payload {
	data := payload{
		Domain:   a.domain,
		Platform: a.platform,
		Scope:    scope,
	}

	nodeKinds := 0
	for _, node := range snap.Nodes {
		if !a.relevantKind(node.Kind) {
			continue
		}
		if node.Kind == "node" {
			if nodeKinds >= collectors.MaxNodes {
				data.Truncation.Nodes = true
				continue
			}
			nodeKinds++
		}
		data.Resources = append(data.Resources, node)
	}
	if len(data.Resources) > collectors.MaxPods {
		data.Resources = data.Resources[:collectors.MaxPods]
		data.Truncation.Pods = true
	}
	data.Edges = snap.Edges

	if a.cluster != nil {
		for _, ns := range scopeNamespaces(scope) {
			events, truncated, err := a.cluster.ListEvents(ctx, ns)
			if err != nil {
				a.logger.Warn("event fetch in %s failed: %v", ns, err)
				continue
			}
			if truncated {
				data.Truncation.Events = true
			}
			for _, ev := range events {
				data.Events = append(data.Events, fmt.Sprintf("%s %s %s/%s: %s",
					ev.Type, ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message))
			}
		}
		if len(data.Events) > collectors.MaxEvents {
			data.Events = data.Events[:collectors.MaxEvents]
			data.Truncation.Events = true
		}

		switch a.domain {
		case models.DomainCompute:
			a.collectPodLogs(ctx, &data)
		case models.DomainStorage:
			a.collectPVCs(ctx, scope, &data)
		}
	}

	if a.prometheus != nil {
		a.collectMetrics(ctx, &data)
	}

	return data
}

// scopeNamespaces returns the namespaces to fetch from; a cluster-wide
// scope fetches across all namespaces in one call.
func scopeNamespaces(scope models.DiagnosticScope) []string {
	if len(scope.Namespaces) == 0 {
		return []string{""}
	}
	return scope.Namespaces
}

// maxTailedPods bounds how many unhealthy pods get a log tail per run.
const maxTailedPods = 10

// collectPodLogs tails the logs of unhealthy pods already in the
// payload. The combined output is capped at MaxLogLines lines.
func (a *Agent) collectPodLogs(ctx context.Context, data *payload) {
	const tailPerPod = 50
	tailed := 0
	for _, node := range data.Resources {
		if node.Kind != "pod" || podHealthy(node.Status) {
			continue
		}
		if tailed >= maxTailedPods {
			data.Truncation.LogLines = true
			return
		}
		logs, clipped, err := a.cluster.GetPodLogs(ctx, node.Namespace, node.Name, "", tailPerPod, false)
		if err != nil {
			a.logger.Warn("log tail for pod %s/%s failed: %v", node.Namespace, node.Name, err)
			continue
		}
		tailed++
		if clipped {
			data.Truncation.LogLines = true
		}
		for _, line := range strings.Split(strings.TrimRight(logs, "\n"), "\n") {
			if line == "" {
				continue
			}
			if len(data.LogLines) >= collectors.MaxLogLines {
				data.Truncation.LogLines = true
				return
			}
			data.LogLines = append(data.LogLines, fmt.Sprintf("%s/%s: %s", node.Namespace, node.Name, line))
		}
	}
}

func podHealthy(status string) bool {
	switch status {
	case "Running", "Succeeded", "Ready", "Active", "":
		return true
	}
	return false
}

// collectPVCs lists the claims in scope for the storage payload, capped
// at MaxPVCs.
func (a *Agent) collectPVCs(ctx context.Context, scope models.DiagnosticScope, data *payload) {
	for _, ns := range scopeNamespaces(scope) {
		claims, truncated, err := a.cluster.ListPVCs(ctx, ns)
		if err != nil {
			a.logger.Warn("pvc list in %s failed: %v", ns, err)
			continue
		}
		if truncated {
			data.Truncation.PVCs = true
		}
		for _, claim := range claims {
			if len(data.PVCs) >= collectors.MaxPVCs {
				data.Truncation.PVCs = true
				return
			}
			data.PVCs = append(data.PVCs, fmt.Sprintf("pvc %s/%s phase=%s",
				claim.Namespace, claim.Name, claim.Status.Phase))
		}
	}
}

// domainQueries are the per-domain health series shipped with the
// payload when a metrics endpoint is configured.
var domainQueries = map[models.Domain]string{
	models.DomainControlPlane: `sum(rate(apiserver_request_total{code=~"5.."}[5m]))`,
	models.DomainCompute:      `sum by (namespace) (increase(kube_pod_container_status_restarts_total[30m]))`,
	models.DomainNetwork:      `sum(rate(coredns_dns_responses_total{rcode!="NOERROR"}[5m]))`,
	models.DomainStorage:      `min by (persistentvolumeclaim) (kubelet_volume_stats_available_bytes / kubelet_volume_stats_capacity_bytes)`,
}

// collectMetrics runs the domain's health query over the last half hour
// and flattens the series, capped at MaxMetricPoints samples in total.
func (a *Agent) collectMetrics(ctx context.Context, data *payload) {
	query, ok := domainQueries[a.domain]
	if !ok {
		return
	}
	end := time.Now()
	result, err := a.prometheus.QueryRange(ctx, query, end.Add(-30*time.Minute), end, time.Minute)
	if err != nil {
		a.logger.Warn("metric query failed: %v", err)
		return
	}

	points := 0
	for _, series := range result.Result {
		if points >= collectors.MaxMetricPoints {
			data.Truncation.MetricPoints = true
			return
		}
		values := series.Values
		if points+len(values) > collectors.MaxMetricPoints {
			values = values[:collectors.MaxMetricPoints-points]
			data.Truncation.MetricPoints = true
		}
		points += len(values)
		if len(values) == 0 {
			continue
		}
		last := values[len(values)-1]
		data.Metrics = append(data.Metrics, fmt.Sprintf("%s: %d samples, latest=%g",
			formatMetricLabels(series.Metric), len(values), last.Value))
	}
}

func formatMetricLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return "series"
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+labels[k])
	}
	return strings.Join(parts, ",")
}

// relevantKind filters topology nodes down to the agent's domain.
func (a *Agent) relevantKind(kind string) bool {
	switch a.domain {
	case models.DomainControlPlane:
		return kind == "operator" || kind == "node"
	case models.DomainCompute:
		return kind == "node" || kind == "pod" || kind == "deploy"
	case models.DomainNetwork:
		return kind == "svc" || kind == "pod" || kind == "ingress"
	case models.DomainStorage:
		return kind == "pvc" || kind == "pv" || kind == "sc" || kind == "pod"
	default:
		return false
	}
}

// ownAnomalies keeps only anomalies the model attributed to this
// agent's domain, stamping the domain when the model left it blank.
func (a *Agent) ownAnomalies(anomalies []models.DomainAnomaly) []models.DomainAnomaly {
	out := make([]models.DomainAnomaly, 0, len(anomalies))
	for _, anomaly := range anomalies {
		if anomaly.Domain == "" {
			anomaly.Domain = a.domain
		}
		if anomaly.Domain != a.domain {
			continue
		}
		if anomaly.Severity == "" {
			anomaly.Severity = models.SeverityInfo
		}
		out = append(out, anomaly)
	}
	return out
}

func clampConfidence(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}
