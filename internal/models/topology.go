package models

import (
	"fmt"
	"strings"
	"time"
)

// EdgeRelation names a directed relationship between topology nodes.
type EdgeRelation string

const (
	RelationHosts     EdgeRelation = "hosts"
	RelationOwns      EdgeRelation = "owns"
	RelationRoutesTo  EdgeRelation = "routes_to"
	RelationMountedBy EdgeRelation = "mounted_by"
	RelationManages   EdgeRelation = "manages"
	RelationDependsOn EdgeRelation = "depends_on"
)

// TopologyNode is one resource in the dependency graph. Nodes are kept
// in a map keyed by Key(); edges hold keys, not pointers, so the graph
// has no cyclic ownership.
type TopologyNode struct {
	Kind      string            `json:"kind"`
	Name      string            `json:"name"`
	Namespace string            `json:"namespace,omitempty"`
	Status    string            `json:"status"`
	Labels    map[string]string `json:"labels,omitempty"`
	HostNode  string            `json:"host_node,omitempty"`
}

// Key returns the canonical resource key: kind/[ns/]name.
func (n TopologyNode) Key() string {
	if n.Namespace == "" {
		return n.Kind + "/" + n.Name
	}
	return n.Kind + "/" + n.Namespace + "/" + n.Name
}

// KindFromKey extracts the resource kind prefix from a resource key.
func KindFromKey(key string) string {
	if i := strings.IndexByte(key, '/'); i > 0 {
		return key[:i]
	}
	return key
}

// TopologyEdge is a directed relationship between two resource keys.
type TopologyEdge struct {
	From     string       `json:"from"`
	To       string       `json:"to"`
	Relation EdgeRelation `json:"relation"`
}

// TopologySnapshot is a point-in-time resource graph cached per session.
type TopologySnapshot struct {
	Nodes           map[string]TopologyNode `json:"nodes"`
	Edges           []TopologyEdge          `json:"edges"`
	BuiltAt         time.Time               `json:"built_at"`
	Stale           bool                    `json:"stale"`
	ResourceVersion string                  `json:"resource_version,omitempty"`
}

// Clone returns a deep copy so scope pruning never mutates a cached snapshot.
func (s *TopologySnapshot) Clone() *TopologySnapshot {
	out := &TopologySnapshot{
		Nodes:           make(map[string]TopologyNode, len(s.Nodes)),
		Edges:           make([]TopologyEdge, len(s.Edges)),
		BuiltAt:         s.BuiltAt,
		Stale:           s.Stale,
		ResourceVersion: s.ResourceVersion,
	}
	for k, v := range s.Nodes {
		out.Nodes[k] = v
	}
	copy(out.Edges, s.Edges)
	return out
}

// ClusterAlert is a problem-status observation on one topology node.
type ClusterAlert struct {
	ResourceKey string    `json:"resource_key"`
	AlertType   string    `json:"alert_type"`
	Severity    Severity  `json:"severity"`
	Timestamp   time.Time `json:"timestamp"`
}

// RootCandidate is a hypothesized root cause inside an issue cluster.
type RootCandidate struct {
	ResourceKey       string   `json:"resource_key"`
	Hypothesis        string   `json:"hypothesis"`
	SupportingSignals []string `json:"supporting_signals,omitempty"`
	Confidence        float64  `json:"confidence"`
}

// IssueCluster is a topologically connected set of alerts with
// root-cause hypotheses.
type IssueCluster struct {
	ID                string          `json:"id"`
	Alerts            []ClusterAlert  `json:"alerts"`
	RootCandidates    []RootCandidate `json:"root_candidates,omitempty"`
	Confidence        float64         `json:"confidence"`
	CorrelationBasis  []string        `json:"correlation_basis,omitempty"`
	AffectedResources []string        `json:"affected_resources,omitempty"`
}

// String implements fmt.Stringer for debug logging.
func (c IssueCluster) String() string {
	return fmt.Sprintf("IssueCluster(%s, %d alerts)", c.ID, len(c.Alerts))
}
