package supervisor

import (
	"fmt"
	"strings"

	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/tools"
)

// AgentName identifies one application-diagnosis agent.
type AgentName string

const (
	AgentLog     AgentName = "log_agent"
	AgentMetrics AgentName = "metrics_agent"
	AgentK8s     AgentName = "k8s_agent"
	AgentTracing AgentName = "tracing_agent"
	AgentCode    AgentName = "code_agent"
)

// Dispatch is the deterministic, state-driven dispatch policy: which
// agents run next given the current phase and the incident pointer.
func Dispatch(phase models.Phase, incident models.IncidentPointer) []AgentName {
	switch phase {
	case models.PhaseInitial:
		return []AgentName{AgentLog}
	case models.PhaseLogsAnalyzed:
		batch := []AgentName{AgentMetrics}
		if incident.Namespace != "" {
			batch = append(batch, AgentK8s)
		}
		return batch
	case models.PhaseMetricsAnalyzed, models.PhaseK8sAnalyzed:
		if incident.TraceID != "" {
			return []AgentName{AgentTracing}
		}
		if incident.RepoURL != "" {
			return []AgentName{AgentCode}
		}
		return nil
	case models.PhaseTracingAnalyzed:
		if incident.RepoURL != "" {
			return []AgentName{AgentCode}
		}
		return nil
	default:
		return nil
	}
}

// phaseRank orders agents along the workflow so a mixed batch lands on
// the furthest phase it reached.
var phaseRank = map[AgentName]int{
	AgentLog:     1,
	AgentMetrics: 2,
	AgentK8s:     3,
	AgentTracing: 4,
	AgentCode:    5,
}

var rankPhase = map[int]models.Phase{
	1: models.PhaseLogsAnalyzed,
	2: models.PhaseMetricsAnalyzed,
	3: models.PhaseK8sAnalyzed,
	4: models.PhaseTracingAnalyzed,
	5: models.PhaseCodeAnalyzed,
}

func phaseAfter(batch []AgentName) models.Phase {
	best := 0
	for _, agent := range batch {
		if r := phaseRank[agent]; r > best {
			best = r
		}
	}
	return rankPhase[best]
}

// plannedCall is one tool-executor invocation an agent performs.
type plannedCall struct {
	intent string
	params tools.Params
}

// planFor maps an agent to its intent calls for this incident. Plans
// are fixed per agent; the parameters come from the incident pointer.
func planFor(agent AgentName, incident models.IncidentPointer) []plannedCall {
	since := windowMinutes(incident.Window)

	switch agent {
	case AgentLog:
		return []plannedCall{{
			intent: "search_logs",
			params: tools.Params{
				"text":          "error",
				"service":       incident.Service,
				"namespace":     incident.Namespace,
				"since_minutes": since,
			},
		}}

	case AgentMetrics:
		calls := []plannedCall{{
			intent: "query_prometheus",
			params: tools.Params{
				"query": fmt.Sprintf(
					`sum(rate(http_requests_total{service=%q,code=~"5.."}[5m]))`, incident.Service),
				"range_minutes": since,
			},
		}}
		if incident.Namespace != "" {
			calls = append(calls, plannedCall{
				intent: "query_prometheus",
				params: tools.Params{
					"query": fmt.Sprintf(
						`sum(increase(kube_pod_container_status_restarts_total{namespace=%q}[30m]))`, incident.Namespace),
					"range_minutes": since,
				},
			})
		}
		return calls

	case AgentK8s:
		return []plannedCall{{
			intent: "get_events",
			params: tools.Params{"namespace": incident.Namespace},
		}}

	case AgentTracing:
		params := tools.Params{"service": incident.Service, "since_minutes": since}
		if incident.TraceID != "" {
			params["trace_id"] = incident.TraceID
		}
		return []plannedCall{{intent: "find_traces", params: params}}

	case AgentCode:
		return []plannedCall{{
			intent: "list_recent_commits",
			params: tools.Params{"repo": repoProject(incident.RepoURL), "since_minutes": 1440},
		}}
	}
	return nil
}

func windowMinutes(window *models.TimeWindow) int {
	if window == nil || !window.End.After(window.Start) {
		return 60
	}
	return tools.ClampMinutes(int(window.End.Sub(window.Start).Minutes()))
}

// repoProject reduces a repository URL to the host's project path,
// e.g. https://git.example/team/api.git -> team/api.
func repoProject(repoURL string) string {
	s := repoURL
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.Trim(s, "/"), ".git")
}
