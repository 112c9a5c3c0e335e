package evidence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moolen/causeway/internal/models"
)

// NodeType classifies an evidence node's role in the incident graph.
type NodeType string

const (
	NodeTypeSymptom            NodeType = "symptom"
	NodeTypeCause              NodeType = "cause"
	NodeTypeContributingFactor NodeType = "contributing_factor"
	NodeTypeContext            NodeType = "context"
)

// GraphNode is one evidence pin placed in the causal graph.
type GraphNode struct {
	ID       string             `json:"id"`
	NodeType NodeType           `json:"node_type"`
	Pin      models.EvidencePin `json:"pin"`
}

// GraphEdge is a directed causal relationship between two nodes.
type GraphEdge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	Relationship string  `json:"relationship"`
	Confidence   float64 `json:"confidence"`
	Reasoning    string  `json:"reasoning,omitempty"`
}

// TimelineEvent is one entry of the rendered incident timeline.
type TimelineEvent struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
	Severity  string    `json:"severity"`
	Claim     string    `json:"claim"`
	NodeType  NodeType  `json:"node_type"`
}

// Graph is a per-session evidence graph. Node ids are assigned
// sequentially and never reused.
type Graph struct {
	mu         sync.Mutex
	nodes      []GraphNode
	edges      []GraphEdge
	nextID     int
	rootCauses []string
}

// NewGraph creates an empty evidence graph.
func NewGraph() *Graph {
	return &Graph{}
}

// AddEvidence appends a pin as a node and returns the new node id.
func (g *Graph) AddEvidence(pin models.EvidencePin, nodeType NodeType) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("ev-%d", g.nextID)
	g.nodes = append(g.nodes, GraphNode{ID: id, NodeType: nodeType, Pin: pin})
	return id
}

// AddCausalLink appends a directed edge between two existing nodes.
func (g *Graph) AddCausalLink(src, dst, relationship string, confidence float64, reasoning string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges = append(g.edges, GraphEdge{
		Source:       src,
		Target:       dst,
		Relationship: relationship,
		Confidence:   confidence,
		Reasoning:    reasoning,
	})
}

// IdentifyRootCauses returns nodes that appear as an edge source but
// never as a target, together with isolated nodes. The result is
// stored on the graph for later snapshots.
func (g *Graph) IdentifyRootCauses() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	isSource := make(map[string]bool)
	isTarget := make(map[string]bool)
	for _, e := range g.edges {
		isSource[e.Source] = true
		isTarget[e.Target] = true
	}

	var roots []string
	for _, n := range g.nodes {
		if isSource[n.ID] && !isTarget[n.ID] {
			roots = append(roots, n.ID)
			continue
		}
		if !isSource[n.ID] && !isTarget[n.ID] {
			roots = append(roots, n.ID)
		}
	}
	g.rootCauses = roots
	return roots
}

// BuildTimeline returns the nodes sorted by pin timestamp. Cause and
// symptom nodes render at error severity, everything else at info.
func (g *Graph) BuildTimeline() []TimelineEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	events := make([]TimelineEvent, 0, len(g.nodes))
	for _, n := range g.nodes {
		severity := "info"
		if n.NodeType == NodeTypeCause || n.NodeType == NodeTypeSymptom {
			severity = "error"
		}
		events = append(events, TimelineEvent{
			NodeID:    n.ID,
			Timestamp: n.Pin.Timestamp,
			Severity:  severity,
			Claim:     n.Pin.Claim,
			NodeType:  n.NodeType,
		})
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// GraphSnapshot is the full graph state for API responses.
type GraphSnapshot struct {
	Nodes      []GraphNode `json:"nodes"`
	Edges      []GraphEdge `json:"edges"`
	RootCauses []string    `json:"root_causes,omitempty"`
}

// Snapshot copies the current graph state.
func (g *Graph) Snapshot() GraphSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return GraphSnapshot{
		Nodes:      append([]GraphNode(nil), g.nodes...),
		Edges:      append([]GraphEdge(nil), g.edges...),
		RootCauses: append([]string(nil), g.rootCauses...),
	}
}

// UpdatePin replaces the pin stored on a node, used when the critic
// revises a pin's validation status or causal role.
func (g *Graph) UpdatePin(nodeID string, pin models.EvidencePin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.nodes {
		if g.nodes[i].ID == nodeID {
			g.nodes[i].Pin = pin
			return true
		}
	}
	return false
}
