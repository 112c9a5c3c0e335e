package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/models"
)

func snapshotWith(nodes []models.TopologyNode, edges []models.TopologyEdge) *models.TopologySnapshot {
	snap := &models.TopologySnapshot{
		Nodes:   make(map[string]models.TopologyNode, len(nodes)),
		Edges:   edges,
		BuiltAt: time.Now(),
	}
	for _, n := range nodes {
		snap.Nodes[n.Key()] = n
	}
	return snap
}

func TestExtractAlertsSortedAndFiltered(t *testing.T) {
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "pod", Name: "z", Namespace: "prod", Status: "CrashLoopBackOff"},
		{Kind: "pod", Name: "a", Namespace: "prod", Status: "Running"},
		{Kind: "node", Name: "worker-1", Status: "NotReady"},
	}, nil)

	alerts := NewCorrelator().ExtractAlerts(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, "node/worker-1", alerts[0].ResourceKey)
	assert.Equal(t, "pod/prod/z", alerts[1].ResourceKey)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
}

func TestCorrelateCrashloopOnNotReadyNode(t *testing.T) {
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "node", Name: "worker-1", Status: "NotReady"},
		{Kind: "pod", Name: "auth-5b6q", Namespace: "payments", Status: "CrashLoopBackOff"},
	}, []models.TopologyEdge{
		{From: "node/worker-1", To: "pod/payments/auth-5b6q", Relation: models.RelationHosts},
	})

	correlator := NewCorrelator()
	alerts := correlator.ExtractAlerts(snap)
	clusters := correlator.Correlate(snap, alerts)

	require.Len(t, clusters, 1)
	cluster := clusters[0]
	assert.Len(t, cluster.Alerts, 2)

	require.NotEmpty(t, cluster.RootCandidates)
	top := cluster.RootCandidates[0]
	assert.Equal(t, "node/worker-1", top.ResourceKey)
	assert.InDelta(t, 0.85, top.Confidence, 1e-9) // 0.4 + 0.15 + 0.3
	assert.Equal(t, []string{"CrashLoopBackOff"}, top.SupportingSignals)
}

func TestCorrelateIsolatedAlertsAreSingletons(t *testing.T) {
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "pod", Name: "a", Namespace: "prod", Status: "OOMKilled"},
		{Kind: "pod", Name: "b", Namespace: "stg", Status: "Pending"},
	}, nil)

	correlator := NewCorrelator()
	clusters := correlator.Correlate(snap, correlator.ExtractAlerts(snap))
	require.Len(t, clusters, 2)
	assert.Len(t, clusters[0].Alerts, 1)
	assert.Len(t, clusters[1].Alerts, 1)
}

func TestCorrelateTransitiveReachability(t *testing.T) {
	// Two alerting pods connected only through a healthy intermediate
	// service still join one cluster.
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "pod", Name: "a", Namespace: "prod", Status: "Error"},
		{Kind: "svc", Name: "api", Namespace: "prod", Status: "Active"},
		{Kind: "pod", Name: "b", Namespace: "prod", Status: "Error"},
	}, []models.TopologyEdge{
		{From: "svc/prod/api", To: "pod/prod/a", Relation: models.RelationRoutesTo},
		{From: "svc/prod/api", To: "pod/prod/b", Relation: models.RelationRoutesTo},
	})

	correlator := NewCorrelator()
	clusters := correlator.Correlate(snap, correlator.ExtractAlerts(snap))
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Alerts, 2)
	assert.Equal(t, []string{"namespace"}, clusters[0].CorrelationBasis)
}

func TestCorrelateBasisRecordsEveryMatchingRule(t *testing.T) {
	// A node alert linked to pod alerts across two namespaces matches
	// both the topology-spread rule and the node-affinity rule.
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "node", Name: "worker-1", Status: "NotReady"},
		{Kind: "pod", Name: "a", Namespace: "prod", Status: "Error"},
		{Kind: "pod", Name: "b", Namespace: "stg", Status: "Error"},
	}, []models.TopologyEdge{
		{From: "node/worker-1", To: "pod/prod/a", Relation: models.RelationHosts},
		{From: "node/worker-1", To: "pod/stg/b", Relation: models.RelationHosts},
	})

	correlator := NewCorrelator()
	clusters := correlator.Correlate(snap, correlator.ExtractAlerts(snap))
	require.Len(t, clusters, 1)
	assert.Equal(t, []string{"topology", "node_affinity"}, clusters[0].CorrelationBasis)
}

func TestCorrelateZeroAlerts(t *testing.T) {
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "pod", Name: "a", Namespace: "prod", Status: "Running"},
	}, nil)

	correlator := NewCorrelator()
	alerts := correlator.ExtractAlerts(snap)
	assert.Empty(t, alerts)
	assert.Empty(t, correlator.Correlate(snap, alerts))
}

func TestRootCandidatesCappedAtTwo(t *testing.T) {
	snap := snapshotWith([]models.TopologyNode{
		{Kind: "pod", Name: "a", Namespace: "prod", Status: "Error"},
		{Kind: "pod", Name: "b", Namespace: "prod", Status: "Error"},
		{Kind: "pod", Name: "c", Namespace: "prod", Status: "Error"},
		{Kind: "svc", Name: "api", Namespace: "prod", Status: "Unavailable"},
	}, []models.TopologyEdge{
		{From: "svc/prod/api", To: "pod/prod/a", Relation: models.RelationRoutesTo},
		{From: "svc/prod/api", To: "pod/prod/b", Relation: models.RelationRoutesTo},
		{From: "svc/prod/api", To: "pod/prod/c", Relation: models.RelationRoutesTo},
	})

	correlator := NewCorrelator()
	clusters := correlator.Correlate(snap, correlator.ExtractAlerts(snap))
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].RootCandidates, 2)
	// The service's kind weight puts it on top.
	assert.Equal(t, "svc/prod/api", clusters[0].RootCandidates[0].ResourceKey)
}
