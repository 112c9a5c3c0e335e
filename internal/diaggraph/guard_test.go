package diaggraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/synthesis"
)

func guardState() *State {
	state := newState("s1", models.DiagnosticScope{Level: models.ScopeCluster}, models.ScanModeGuard)
	state.setReport(models.DomainReport{
		Domain: models.DomainCompute,
		Status: models.StatusSuccess,
		Anomalies: []models.DomainAnomaly{
			{AnomalyID: "a1", Description: "worker-1 NotReady", Severity: models.SeverityCritical},
			{AnomalyID: "a2", Description: "api-0 crash looping", Severity: models.SeverityHigh},
		},
	})
	state.Clusters = []models.IssueCluster{{
		ID: "issue-1",
		Alerts: []models.ClusterAlert{
			{ResourceKey: "node/worker-1", AlertType: "NotReady", Severity: models.SeverityCritical},
			{ResourceKey: "pod/prod/api-0", AlertType: "CrashLoopBackOff", Severity: models.SeverityHigh},
		},
		RootCandidates: []models.RootCandidate{{ResourceKey: "node/worker-1", Confidence: 0.85}},
	}}
	state.Synthesis = synthesis.Result{Report: models.ClusterHealthReport{
		Remediation: models.RemediationPlan{LongTerm: []string{"add node capacity"}},
	}}
	return state
}

func TestFormatGuardScanLayers(t *testing.T) {
	scan := FormatGuardScan(guardState(), nil)

	// Two anomaly risks plus one cluster risk.
	require.Len(t, scan.CurrentRisks, 3)
	assert.Equal(t, "node/worker-1", scan.CurrentRisks[2].ResourceKey)

	require.Len(t, scan.PredictiveRisks, 1)
	assert.Equal(t, "add node capacity", scan.PredictiveRisks[0].Description)
	assert.Equal(t, models.SeverityInfo, scan.PredictiveRisks[0].Severity)

	assert.Equal(t, models.HealthCritical, scan.OverallHealth)
	// critical 0.4 + high 0.2 + critical cluster 0.4
	assert.InDelta(t, 1.0, scan.RiskScore, 1e-9)

	// With no previous scan everything is new.
	assert.Len(t, scan.NewRisks, 3)
	assert.Empty(t, scan.ResolvedRisks)
	assert.False(t, scan.ScannedAt.IsZero())
}

func TestFormatGuardScanDelta(t *testing.T) {
	prev := &models.GuardScanResult{CurrentRisks: []models.GuardRisk{
		{Description: "api-0 crash looping"},
		{Description: "pvc data stuck Pending"},
	}}

	scan := FormatGuardScan(guardState(), prev)
	assert.Equal(t, []string{
		"issue cluster issue-1: 2 correlated alerts",
		"worker-1 NotReady",
	}, scan.NewRisks)
	assert.Equal(t, []string{"pvc data stuck Pending"}, scan.ResolvedRisks)
}

func TestFormatGuardScanHealthyWhenQuiet(t *testing.T) {
	state := newState("s1", models.DiagnosticScope{Level: models.ScopeCluster}, models.ScanModeGuard)
	scan := FormatGuardScan(state, nil)
	assert.Equal(t, models.HealthHealthy, scan.OverallHealth)
	assert.Zero(t, scan.RiskScore)
	assert.Empty(t, scan.CurrentRisks)
}

func TestOverallHealthDegradedWithoutCritical(t *testing.T) {
	health := overallHealth([]models.GuardRisk{
		{Severity: models.SeverityMedium},
		{Severity: models.SeverityHigh},
	})
	assert.Equal(t, models.HealthDegraded, health)
}
