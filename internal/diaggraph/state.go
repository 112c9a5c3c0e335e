// Package diaggraph runs the cluster diagnostic graph: topology
// resolution, alert correlation, the causal firewall, the four domain
// agents fanned out in parallel, synthesis, and the optional guard
// formatter. Every node runs behind a traced decorator with its own
// timeout; one graph run never exceeds the graph deadline.
package diaggraph

import (
	"sync"
	"time"

	"github.com/moolen/causeway/internal/causal"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/synthesis"
)

// Mode selects between one-shot diagnosis and a guard scan.
type Mode = models.ScanMode

// Per-node timeout defaults.
const (
	TimeoutTopology    = 30 * time.Second
	TimeoutCorrelator  = 10 * time.Second
	TimeoutFirewall    = 10 * time.Second
	TimeoutCtrlPlane   = 30 * time.Second
	TimeoutNodeAgent   = 45 * time.Second
	TimeoutNetwork     = 45 * time.Second
	TimeoutStorage     = 60 * time.Second
	TimeoutSynthesize  = 60 * time.Second
	TimeoutGuardFormat = 10 * time.Second

	// MaxReDispatches bounds how often synthesis may send the domain
	// agents back out.
	MaxReDispatches = 1
)

// State is the typed shared state threaded through the graph nodes.
type State struct {
	mu sync.Mutex

	SessionID string
	Scope     models.DiagnosticScope
	Mode      Mode

	Snapshot    *models.TopologySnapshot
	Pruned      *models.TopologySnapshot
	Coverage    float64
	Alerts      []models.ClusterAlert
	Clusters    []models.IssueCluster
	SearchSpace causal.SearchSpace

	Reports   map[models.Domain]models.DomainReport
	Synthesis synthesis.Result
	Guard     *models.GuardScanResult

	Traces          []models.NodeTrace
	ReDispatchCount int
}

func newState(sessionID string, scope models.DiagnosticScope, mode Mode) *State {
	return &State{
		SessionID: sessionID,
		Scope:     scope,
		Mode:      mode,
		Reports:   make(map[models.Domain]models.DomainReport),
	}
}

func (s *State) addTrace(trace models.NodeTrace) {
	s.mu.Lock()
	s.Traces = append(s.Traces, trace)
	s.mu.Unlock()
}

func (s *State) setReport(report models.DomainReport) {
	s.mu.Lock()
	s.Reports[report.Domain] = report
	s.mu.Unlock()
}

// ReportList returns the domain reports in the fixed domain order.
func (s *State) ReportList() []models.DomainReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DomainReport, 0, len(s.Reports))
	for _, domain := range GraphDomains {
		if report, ok := s.Reports[domain]; ok {
			out = append(out, report)
		}
	}
	return out
}

// GraphDomains is the fan-out order of the domain agents.
var GraphDomains = []models.Domain{
	models.DomainControlPlane,
	models.DomainCompute,
	models.DomainNetwork,
	models.DomainStorage,
}

func agentTimeout(domain models.Domain) time.Duration {
	switch domain {
	case models.DomainControlPlane:
		return TimeoutCtrlPlane
	case models.DomainCompute:
		return TimeoutNodeAgent
	case models.DomainNetwork:
		return TimeoutNetwork
	case models.DomainStorage:
		return TimeoutStorage
	default:
		return TimeoutCtrlPlane
	}
}
