package topology

import (
	"github.com/moolen/causeway/internal/models"
)

// DefaultWorkloadDepth bounds the BFS when pruning to a workload scope.
const DefaultWorkloadDepth = 3

// Attachment relations pull cluster-scoped resources into a namespace
// scope; traversal relations define the workload neighborhood.
var (
	attachmentRelations = map[models.EdgeRelation]bool{
		models.RelationHosts:     true,
		models.RelationMountedBy: true,
	}
	traversalRelations = map[models.EdgeRelation]bool{
		models.RelationOwns:      true,
		models.RelationRoutesTo:  true,
		models.RelationHosts:     true,
		models.RelationMountedBy: true,
	}
)

// Prune returns the subgraph a diagnostic scope is allowed to see.
// The input snapshot is never mutated.
func Prune(snap *models.TopologySnapshot, scope models.DiagnosticScope) *models.TopologySnapshot {
	switch scope.Level {
	case models.ScopeCluster:
		return snap.Clone()
	case models.ScopeNamespace:
		return pruneNamespace(snap, scope.Namespaces)
	case models.ScopeWorkload:
		return pruneBFS(snap, scope.WorkloadKey, DefaultWorkloadDepth, traversalRelations)
	case models.ScopeComponent:
		return pruneBFS(snap, scope.ComponentKey, 1, nil)
	default:
		return snap.Clone()
	}
}

func pruneNamespace(snap *models.TopologySnapshot, namespaces []string) *models.TopologySnapshot {
	inScope := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		inScope[ns] = true
	}

	retained := make(map[string]bool)
	for key, node := range snap.Nodes {
		if node.Namespace != "" && inScope[node.Namespace] {
			retained[key] = true
		}
	}

	// Pull in cluster-scoped resources the scope references through
	// attachment edges, transitively (pvc -> pv -> sc chains).
	for changed := true; changed; {
		changed = false
		for _, edge := range snap.Edges {
			if !attachmentRelations[edge.Relation] {
				continue
			}
			for _, pair := range [][2]string{{edge.From, edge.To}, {edge.To, edge.From}} {
				candidate, anchor := pair[0], pair[1]
				if !retained[anchor] || retained[candidate] {
					continue
				}
				if node, ok := snap.Nodes[candidate]; ok && node.Namespace == "" {
					retained[candidate] = true
					changed = true
				}
			}
		}
	}

	return subgraph(snap, retained)
}

// pruneBFS keeps the undirected neighborhood of root up to depth hops.
// A nil relation set follows every edge.
func pruneBFS(snap *models.TopologySnapshot, root string, depth int, relations map[models.EdgeRelation]bool) *models.TopologySnapshot {
	retained := make(map[string]bool)
	if _, ok := snap.Nodes[root]; !ok {
		return subgraph(snap, retained)
	}

	adjacency := make(map[string][]string)
	for _, edge := range snap.Edges {
		if relations != nil && !relations[edge.Relation] {
			continue
		}
		adjacency[edge.From] = append(adjacency[edge.From], edge.To)
		adjacency[edge.To] = append(adjacency[edge.To], edge.From)
	}

	retained[root] = true
	frontier := []string{root}
	for hop := 0; hop < depth && len(frontier) > 0; hop++ {
		var next []string
		for _, key := range frontier {
			for _, neighbor := range adjacency[key] {
				if !retained[neighbor] {
					retained[neighbor] = true
					next = append(next, neighbor)
				}
			}
		}
		frontier = next
	}

	return subgraph(snap, retained)
}

func subgraph(snap *models.TopologySnapshot, retained map[string]bool) *models.TopologySnapshot {
	out := &models.TopologySnapshot{
		Nodes:           make(map[string]models.TopologyNode, len(retained)),
		BuiltAt:         snap.BuiltAt,
		Stale:           snap.Stale,
		ResourceVersion: snap.ResourceVersion,
	}
	for key := range retained {
		out.Nodes[key] = snap.Nodes[key]
	}
	for _, edge := range snap.Edges {
		if retained[edge.From] && retained[edge.To] {
			out.Edges = append(out.Edges, edge)
		}
	}
	return out
}

// Coverage reports the fraction of alert-bearing nodes the pruned
// graph retained. No alerts yields full coverage.
func Coverage(pruned *models.TopologySnapshot, alerts []models.ClusterAlert) float64 {
	if len(alerts) == 0 {
		return 1.0
	}
	kept := 0
	for _, alert := range alerts {
		if _, ok := pruned.Nodes[alert.ResourceKey]; ok {
			kept++
		}
	}
	return float64(kept) / float64(len(alerts))
}
