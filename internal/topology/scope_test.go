package topology

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/models"
)

// fixtureSnapshot builds a two-namespace cluster with a storage chain
// and a monitoring daemonset outside both namespaces.
func fixtureSnapshot() *models.TopologySnapshot {
	nodes := []models.TopologyNode{
		{Kind: "node", Name: "worker-1", Status: "Ready"},
		{Kind: "pod", Name: "api-0", Namespace: "prod", Status: "Running", HostNode: "worker-1"},
		{Kind: "pod", Name: "api-1", Namespace: "prod", Status: "CrashLoopBackOff", HostNode: "worker-1"},
		{Kind: "deploy", Name: "api", Namespace: "prod", Status: "Degraded"},
		{Kind: "svc", Name: "api", Namespace: "prod", Status: "Active"},
		{Kind: "pvc", Name: "data", Namespace: "prod", Status: "Bound"},
		{Kind: "pv", Name: "pv-data", Status: "Bound"},
		{Kind: "sc", Name: "gp2", Status: "Active"},
		{Kind: "pod", Name: "web-0", Namespace: "stg", Status: "Running", HostNode: "worker-1"},
		{Kind: "ds", Name: "fluentd", Namespace: "mon", Status: "Available"},
	}
	snap := &models.TopologySnapshot{
		Nodes:   make(map[string]models.TopologyNode, len(nodes)),
		BuiltAt: time.Now(),
	}
	for _, n := range nodes {
		snap.Nodes[n.Key()] = n
	}
	snap.Edges = []models.TopologyEdge{
		{From: "node/worker-1", To: "pod/prod/api-0", Relation: models.RelationHosts},
		{From: "node/worker-1", To: "pod/prod/api-1", Relation: models.RelationHosts},
		{From: "node/worker-1", To: "pod/stg/web-0", Relation: models.RelationHosts},
		{From: "deploy/prod/api", To: "pod/prod/api-0", Relation: models.RelationOwns},
		{From: "deploy/prod/api", To: "pod/prod/api-1", Relation: models.RelationOwns},
		{From: "svc/prod/api", To: "pod/prod/api-0", Relation: models.RelationRoutesTo},
		{From: "pvc/prod/data", To: "pod/prod/api-0", Relation: models.RelationMountedBy},
		{From: "pv/pv-data", To: "pvc/prod/data", Relation: models.RelationMountedBy},
		{From: "sc/gp2", To: "pv/pv-data", Relation: models.RelationMountedBy},
	}
	return snap
}

func TestPruneClusterIsIdentity(t *testing.T) {
	snap := fixtureSnapshot()
	pruned := Prune(snap, models.DiagnosticScope{Level: models.ScopeCluster})
	assert.Len(t, pruned.Nodes, len(snap.Nodes))
	assert.Len(t, pruned.Edges, len(snap.Edges))

	// Identity is a copy, not an alias.
	delete(pruned.Nodes, "node/worker-1")
	assert.Contains(t, snap.Nodes, "node/worker-1")
}

func TestPruneNamespaceRetainsTransitiveClusterScoped(t *testing.T) {
	pruned := Prune(fixtureSnapshot(), models.DiagnosticScope{
		Level:      models.ScopeNamespace,
		Namespaces: []string{"prod"},
	})

	for _, key := range []string{
		"pod/prod/api-0", "pod/prod/api-1", "deploy/prod/api", "svc/prod/api",
		"pvc/prod/data", "pv/pv-data", "sc/gp2", "node/worker-1",
	} {
		assert.Contains(t, pruned.Nodes, key)
	}
	assert.NotContains(t, pruned.Nodes, "pod/stg/web-0")
	assert.NotContains(t, pruned.Nodes, "ds/mon/fluentd")

	// Edges into dropped nodes are gone.
	for _, edge := range pruned.Edges {
		assert.Contains(t, pruned.Nodes, edge.From)
		assert.Contains(t, pruned.Nodes, edge.To)
	}
}

func TestPruneWorkloadBFS(t *testing.T) {
	pruned := Prune(fixtureSnapshot(), models.DiagnosticScope{
		Level:       models.ScopeWorkload,
		WorkloadKey: "deploy/prod/api",
	})

	assert.Contains(t, pruned.Nodes, "deploy/prod/api")
	assert.Contains(t, pruned.Nodes, "pod/prod/api-0")
	assert.Contains(t, pruned.Nodes, "node/worker-1")
	assert.Contains(t, pruned.Nodes, "pvc/prod/data")
	// The monitoring daemonset has no traversal path from the workload.
	assert.NotContains(t, pruned.Nodes, "ds/mon/fluentd")
}

func TestPruneWorkloadMissingRoot(t *testing.T) {
	pruned := Prune(fixtureSnapshot(), models.DiagnosticScope{
		Level:       models.ScopeWorkload,
		WorkloadKey: "deploy/prod/ghost",
	})
	assert.Empty(t, pruned.Nodes)
	assert.Empty(t, pruned.Edges)
}

func TestPruneComponentNeighbors(t *testing.T) {
	pruned := Prune(fixtureSnapshot(), models.DiagnosticScope{
		Level:        models.ScopeComponent,
		ComponentKey: "pod/prod/api-0",
	})

	assert.Contains(t, pruned.Nodes, "pod/prod/api-0")
	assert.Contains(t, pruned.Nodes, "node/worker-1")
	assert.Contains(t, pruned.Nodes, "deploy/prod/api")
	assert.Contains(t, pruned.Nodes, "svc/prod/api")
	assert.Contains(t, pruned.Nodes, "pvc/prod/data")
	// Two hops away.
	assert.NotContains(t, pruned.Nodes, "pv/pv-data")
	assert.NotContains(t, pruned.Nodes, "pod/prod/api-1")
}

func TestCoverage(t *testing.T) {
	pruned := Prune(fixtureSnapshot(), models.DiagnosticScope{
		Level:      models.ScopeNamespace,
		Namespaces: []string{"prod"},
	})

	alerts := []models.ClusterAlert{
		{ResourceKey: "pod/prod/api-1", AlertType: "CrashLoopBackOff"},
		{ResourceKey: "pod/stg/web-0", AlertType: "Evicted"},
	}
	assert.InDelta(t, 0.5, Coverage(pruned, alerts), 1e-9)
	assert.Equal(t, 1.0, Coverage(pruned, nil))
}

func TestPruneComponentIncludesHostEdge(t *testing.T) {
	pruned := Prune(fixtureSnapshot(), models.DiagnosticScope{
		Level:        models.ScopeComponent,
		ComponentKey: "node/worker-1",
	})
	require.Contains(t, pruned.Nodes, "pod/stg/web-0")
	assert.Len(t, pruned.Nodes, 4) // node + its three hosted pods
}
