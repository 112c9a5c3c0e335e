package diaggraph

import (
	"fmt"
	"sort"
	"time"

	"github.com/moolen/causeway/internal/models"
)

// Severity weights feeding the guard risk score.
var severityWeights = map[models.Severity]float64{
	models.SeverityCritical: 0.4,
	models.SeverityHigh:     0.2,
	models.SeverityMedium:   0.1,
	models.SeverityInfo:     0.02,
}

// FormatGuardScan builds the three guard layers from a finished graph
// run: current risks, predictive risks, and the delta against the
// previous scan.
func FormatGuardScan(state *State, prev *models.GuardScanResult) models.GuardScanResult {
	result := models.GuardScanResult{ScannedAt: time.Now().UTC()}

	// Layer 1: current risks, one per anomaly plus one per issue cluster.
	for _, report := range state.ReportList() {
		for _, anomaly := range report.Anomalies {
			result.CurrentRisks = append(result.CurrentRisks, models.GuardRisk{
				Description: anomaly.Description,
				Severity:    anomaly.Severity,
			})
		}
	}
	for _, cluster := range state.Clusters {
		severity := models.SeverityMedium
		for _, alert := range cluster.Alerts {
			if alert.Severity == models.SeverityCritical {
				severity = models.SeverityCritical
				break
			}
			if alert.Severity == models.SeverityHigh {
				severity = models.SeverityHigh
			}
		}
		key := ""
		if len(cluster.RootCandidates) > 0 {
			key = cluster.RootCandidates[0].ResourceKey
		}
		result.CurrentRisks = append(result.CurrentRisks, models.GuardRisk{
			Description: fmt.Sprintf("issue cluster %s: %d correlated alerts", cluster.ID, len(cluster.Alerts)),
			Severity:    severity,
			ResourceKey: key,
		})
	}

	// Layer 2: predictive risks come from long-term remediation items.
	for _, item := range state.Synthesis.Report.Remediation.LongTerm {
		result.PredictiveRisks = append(result.PredictiveRisks, models.GuardRisk{
			Description: item,
			Severity:    models.SeverityInfo,
		})
	}

	// Layer 3: delta against the previous scan as a sorted string-set
	// difference of risk descriptions.
	current := riskDescriptions(result.CurrentRisks)
	if prev != nil {
		previous := riskDescriptions(prev.CurrentRisks)
		result.NewRisks = setDifference(current, previous)
		result.ResolvedRisks = setDifference(previous, current)
	} else {
		result.NewRisks = current
	}

	result.OverallHealth = overallHealth(result.CurrentRisks)
	result.RiskScore = riskScore(result.CurrentRisks)
	return result
}

func riskDescriptions(risks []models.GuardRisk) []string {
	set := make(map[string]bool, len(risks))
	for _, risk := range risks {
		set[risk.Description] = true
	}
	out := make([]string, 0, len(set))
	for desc := range set {
		out = append(out, desc)
	}
	sort.Strings(out)
	return out
}

func setDifference(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if !inB[s] {
			out = append(out, s)
		}
	}
	return out
}

func overallHealth(risks []models.GuardRisk) models.PlatformHealth {
	if len(risks) == 0 {
		return models.HealthHealthy
	}
	health := models.HealthDegraded
	for _, risk := range risks {
		if risk.Severity == models.SeverityCritical {
			return models.HealthCritical
		}
	}
	return health
}

func riskScore(risks []models.GuardRisk) float64 {
	score := 0.0
	for _, risk := range risks {
		score += severityWeights[risk.Severity]
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
