package synthesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
)

func TestMergeAnomaliesDeduplicates(t *testing.T) {
	reports := []models.DomainReport{
		{Domain: models.DomainCompute, Anomalies: []models.DomainAnomaly{
			{AnomalyID: "a1", Description: "Pod api-0 is crash looping"},
			{AnomalyID: "a2", Description: "Node worker-1 NotReady"},
		}},
		{Domain: models.DomainNetwork, Anomalies: []models.DomainAnomaly{
			{AnomalyID: "b1", Description: "  pod API-0 is  crash looping "},
			{AnomalyID: "b2", Description: "CoreDNS resolution failures"},
		}},
	}

	merged := MergeAnomalies(reports)
	require.Len(t, merged, 3)
	assert.Equal(t, "a1", merged[0].AnomalyID)
	assert.Equal(t, "a2", merged[1].AnomalyID)
	assert.Equal(t, "b2", merged[2].AnomalyID)
}

func TestDataCompleteness(t *testing.T) {
	reports := []models.DomainReport{
		{Status: models.StatusSuccess},
		{Status: models.StatusSuccess},
		{Status: models.StatusFailed},
		{Status: models.StatusSkipped},
	}
	assert.InDelta(t, 2.0/3.0, DataCompleteness(reports), 1e-9)

	assert.InDelta(t, 1.0, DataCompleteness([]models.DomainReport{
		{Status: models.StatusPartial},
	}), 1e-9)

	assert.Equal(t, 0.0, DataCompleteness([]models.DomainReport{
		{Status: models.StatusSkipped},
	}))
}

func TestRunHealthyWhenNoAnomalies(t *testing.T) {
	s := New(provider.NewMockProvider())
	result := s.Run(context.Background(), Input{
		Reports: []models.DomainReport{
			{Domain: models.DomainCompute, Status: models.StatusSuccess},
		},
	})
	assert.Equal(t, models.HealthHealthy, result.Report.PlatformHealth)
	assert.False(t, result.ReDispatchNeeded)
	// No model calls are made for a clean cluster.
}

func TestRunFullPipeline(t *testing.T) {
	mock := provider.NewMockProvider(
		provider.MockResponse{Content: `{
			"causal_chains": [{
				"root": "node-notready",
				"links": [
					{"from": "node-notready", "to": "crashloop-api", "link_type": "node_failure -> workload_rescheduling",
					 "mechanism": "kubelet stopped posting status", "confidence": 0.9},
					{"from": "crashloop-api", "to": "svc-unavailable", "link_type": "unknown",
					 "mechanism": "no ready endpoints", "confidence": 0.6}
				],
				"confidence": 0.95,
				"summary": "node failure cascaded to the api service"
			}],
			"uncorrelated_findings": []
		}`},
		provider.MockResponse{Content: `{
			"platform_health": "DEGRADED",
			"blast_radius": {"namespaces": 1, "pods": 3, "nodes": 1, "summary": "prod namespace degraded"},
			"remediation": {"immediate": ["cordon worker-1"], "long_term": ["add node capacity"]},
			"re_dispatch_needed": true,
			"re_dispatch_domains": ["storage"]
		}`},
	)

	s := New(mock)
	result := s.Run(context.Background(), Input{
		Reports: []models.DomainReport{
			{Domain: models.DomainCompute, Status: models.StatusSuccess, Anomalies: []models.DomainAnomaly{
				{AnomalyID: "node-notready", Description: "worker-1 NotReady", Severity: models.SeverityCritical},
				{AnomalyID: "crashloop-api", Description: "api-0 crash looping", Severity: models.SeverityHigh},
			}},
			{Domain: models.DomainNetwork, Status: models.StatusSuccess, Anomalies: []models.DomainAnomaly{
				{AnomalyID: "svc-unavailable", Description: "api service has no endpoints", Severity: models.SeverityHigh},
			}},
		},
	})

	assert.Equal(t, models.HealthDegraded, result.Report.PlatformHealth)
	require.Len(t, result.Report.CausalChains, 1)
	// Weakest link overrides the model's claimed chain confidence.
	assert.InDelta(t, 0.6, result.Report.CausalChains[0].Confidence, 1e-9)
	assert.Equal(t, 1, result.Report.BlastRadius.Namespaces)
	assert.True(t, result.ReDispatchNeeded)
	assert.Equal(t, []models.Domain{models.DomainStorage}, result.ReDispatchDomains)
	assert.Equal(t, []string{"cordon worker-1"}, result.Report.Remediation.Immediate)
}

func TestRunReasoningFailureDegradesToUncorrelated(t *testing.T) {
	mock := provider.NewMockProvider(provider.MockResponse{Content: "Not JSON"})
	s := New(mock)

	result := s.Run(context.Background(), Input{
		Reports: []models.DomainReport{
			{Domain: models.DomainCompute, Status: models.StatusSuccess, Anomalies: []models.DomainAnomaly{
				{AnomalyID: "a1", Description: "something broke"},
			}},
		},
	})

	assert.Equal(t, models.HealthUnknown, result.Report.PlatformHealth)
	require.Len(t, result.Report.UncorrelatedFindings, 1)
	assert.Empty(t, result.Report.CausalChains)
}

func TestRunInvalidVerdictHealthFallsBack(t *testing.T) {
	mock := provider.NewMockProvider(
		provider.MockResponse{Content: `{"causal_chains": [], "uncorrelated_findings": []}`},
		provider.MockResponse{Content: `{"platform_health": "ON_FIRE"}`},
	)
	s := New(mock)

	result := s.Run(context.Background(), Input{
		Reports: []models.DomainReport{
			{Domain: models.DomainCompute, Status: models.StatusSuccess, Anomalies: []models.DomainAnomaly{
				{AnomalyID: "a1", Description: "x"},
			}},
		},
	})
	assert.Equal(t, models.HealthUnknown, result.Report.PlatformHealth)
}
