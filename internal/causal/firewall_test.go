package causal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/models"
)

func crashloopCluster() models.IssueCluster {
	now := time.Now()
	return models.IssueCluster{
		ID: "cluster-1",
		Alerts: []models.ClusterAlert{
			{ResourceKey: "node/worker-1", AlertType: "NotReady", Severity: models.SeverityCritical, Timestamp: now},
			{ResourceKey: "pod/payments/auth-5b6q", AlertType: "CrashLoopBackOff", Severity: models.SeverityHigh, Timestamp: now},
		},
	}
}

func TestFirewallBlocksPodToNode(t *testing.T) {
	fw := NewFirewall()
	space := fw.BuildSearchSpace([]models.IssueCluster{crashloopCluster()}, TopologyContext{
		NodeHasCascadingEffects: map[string]bool{"node/worker-1": true},
	})

	require.Len(t, space.BlockedLinks, 1)
	blocked := space.BlockedLinks[0]
	assert.Equal(t, "pod/payments/auth-5b6q", blocked.From.ResourceKey)
	assert.Equal(t, "node/worker-1", blocked.To.ResourceKey)
	assert.Equal(t, ReasonTopologyDirection, blocked.ReasonCode)
	assert.Equal(t, "INV-CP-006", blocked.InvariantID)

	// The physically plausible direction survives.
	require.Len(t, space.ValidLinks, 1)
	assert.Equal(t, "node/worker-1", space.ValidLinks[0].From.ResourceKey)
	assert.Equal(t, "pod/payments/auth-5b6q", space.ValidLinks[0].To.ResourceKey)

	assert.Equal(t, 2, space.TotalLinks)
}

func TestFirewallAnnotatesTransientNode(t *testing.T) {
	fw := NewFirewall()
	// No cascading effects recorded for the node.
	space := fw.BuildSearchSpace([]models.IssueCluster{crashloopCluster()}, TopologyContext{})

	require.Len(t, space.AnnotatedLinks, 1)
	annotated := space.AnnotatedLinks[0]
	assert.Equal(t, "node/worker-1", annotated.From.ResourceKey)
	assert.Equal(t, 0.2, annotated.ConfidenceHint)
	assert.Contains(t, annotated.Reason, "transient")
}

func TestFirewallAnnotatesPendingPVCWithHealthyBackend(t *testing.T) {
	now := time.Now()
	cluster := models.IssueCluster{
		ID: "cluster-2",
		Alerts: []models.ClusterAlert{
			{ResourceKey: "pvc/prod/data-0", AlertType: "Pending", Severity: models.SeverityMedium, Timestamp: now},
			{ResourceKey: "deployment/prod/api", AlertType: "Degraded", Severity: models.SeverityMedium, Timestamp: now},
		},
	}

	fw := NewFirewall()
	space := fw.BuildSearchSpace([]models.IssueCluster{cluster}, TopologyContext{
		StorageBackendHealthy: map[string]bool{"pvc/prod/data-0": true},
	})

	require.Len(t, space.AnnotatedLinks, 1)
	assert.Equal(t, 0.25, space.AnnotatedLinks[0].ConfidenceHint)
	require.Len(t, space.ValidLinks, 1)
	assert.Equal(t, "deployment/prod/api", space.ValidLinks[0].From.ResourceKey)
}

func TestFirewallBucketsArePartition(t *testing.T) {
	now := time.Now()
	cluster := models.IssueCluster{
		ID: "cluster-3",
		Alerts: []models.ClusterAlert{
			{ResourceKey: "node/worker-1", AlertType: "NotReady", Timestamp: now},
			{ResourceKey: "pod/prod/a", AlertType: "CrashLoopBackOff", Timestamp: now},
			{ResourceKey: "pvc/prod/data-0", AlertType: "Pending", Timestamp: now},
			{ResourceKey: "service/prod/api", AlertType: "Unavailable", Timestamp: now},
		},
	}

	fw := NewFirewall()
	space := fw.BuildSearchSpace([]models.IssueCluster{cluster}, TopologyContext{})

	// 4 alerts yield 12 ordered pairs, each in exactly one bucket.
	assert.Equal(t, 12, space.TotalLinks)
	assert.Equal(t, space.TotalLinks,
		len(space.ValidLinks)+len(space.AnnotatedLinks)+len(space.BlockedLinks))
}

func TestFirewallEmptyInput(t *testing.T) {
	fw := NewFirewall()
	space := fw.BuildSearchSpace(nil, TopologyContext{})
	assert.Zero(t, space.TotalLinks)
	assert.Empty(t, space.ValidLinks)
	assert.Empty(t, space.BlockedLinks)
}

func TestLookupBlockTableIsClosed(t *testing.T) {
	_, blocked := LookupBlock("pod", "node")
	assert.True(t, blocked)
	_, blocked = LookupBlock("node", "pod")
	assert.False(t, blocked)
	_, blocked = LookupBlock("service", "node")
	assert.True(t, blocked)
	_, blocked = LookupBlock("deployment", "pv")
	assert.True(t, blocked)
	_, blocked = LookupBlock("pod", "service")
	assert.False(t, blocked)

	assert.Len(t, Invariants(), 10)
}
