// Package synthesis merges domain reports into causal chains and a
// final cluster health verdict.
package synthesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/moolen/causeway/internal/causal"
	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/metrics"
	"github.com/moolen/causeway/internal/models"
	"github.com/moolen/causeway/internal/provider"
)

// Synthesizer runs the three synthesis stages.
type Synthesizer struct {
	llm    provider.Provider
	logger *logging.Logger
}

// New creates a synthesizer.
func New(llm provider.Provider) *Synthesizer {
	return &Synthesizer{llm: llm, logger: logging.GetLogger("synthesis")}
}

// Input carries everything synthesis reasons over.
type Input struct {
	Reports     []models.DomainReport
	Clusters    []models.IssueCluster
	SearchSpace causal.SearchSpace
}

// Result is the synthesis outcome with re-dispatch advice for the
// graph runtime.
type Result struct {
	Report            models.ClusterHealthReport
	ReDispatchNeeded  bool
	ReDispatchDomains []models.Domain
}

// MergeAnomalies is stage 1: union anomalies across reports,
// deduplicating on case- and whitespace-normalized description.
func MergeAnomalies(reports []models.DomainReport) []models.DomainAnomaly {
	seen := make(map[string]bool)
	var merged []models.DomainAnomaly
	for _, report := range reports {
		for _, anomaly := range report.Anomalies {
			key := normalizeDescription(anomaly.Description)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, anomaly)
		}
	}
	return merged
}

func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// DataCompleteness is the fraction of non-skipped domains that
// produced usable data.
func DataCompleteness(reports []models.DomainReport) float64 {
	usable, considered := 0, 0
	for _, report := range reports {
		if report.Status == models.StatusSkipped {
			continue
		}
		considered++
		if report.Status == models.StatusSuccess || report.Status == models.StatusPartial {
			usable++
		}
	}
	if considered == 0 {
		return 0
	}
	return float64(usable) / float64(considered)
}

// causalResponse is the stage-2 strict JSON shape.
type causalResponse struct {
	CausalChains         []models.CausalChain   `json:"causal_chains"`
	UncorrelatedFindings []models.DomainAnomaly `json:"uncorrelated_findings"`
}

// verdictResponse is the stage-3 strict JSON shape.
type verdictResponse struct {
	PlatformHealth    models.PlatformHealth  `json:"platform_health"`
	BlastRadius       models.BlastRadius     `json:"blast_radius"`
	Remediation       models.RemediationPlan `json:"remediation"`
	ReDispatchNeeded  bool                   `json:"re_dispatch_needed"`
	ReDispatchDomains []models.Domain        `json:"re_dispatch_domains"`
}

// Run executes stages 1-3 and assembles the final report. Model
// failures in stage 2 or 3 degrade to an UNKNOWN verdict carrying the
// merged anomalies as uncorrelated findings.
func (s *Synthesizer) Run(ctx context.Context, in Input) Result {
	merged := MergeAnomalies(in.Reports)

	result := Result{Report: models.ClusterHealthReport{
		PlatformHealth:   models.HealthUnknown,
		DataCompleteness: DataCompleteness(in.Reports),
		Reports:          in.Reports,
		GeneratedAt:      time.Now().UTC(),
	}}

	if len(merged) == 0 {
		result.Report.PlatformHealth = models.HealthHealthy
		return result
	}

	chains, uncorrelated, err := s.reason(ctx, merged, in)
	if err != nil {
		s.logger.Warn("causal reasoning failed: %v", err)
		result.Report.UncorrelatedFindings = merged
		return result
	}
	result.Report.CausalChains = chains
	result.Report.UncorrelatedFindings = uncorrelated

	verdict, err := s.verdict(ctx, merged, chains, in)
	if err != nil {
		s.logger.Warn("verdict synthesis failed: %v", err)
		return result
	}
	result.Report.PlatformHealth = verdict.PlatformHealth
	result.Report.BlastRadius = verdict.BlastRadius
	result.Report.Remediation = verdict.Remediation
	result.ReDispatchNeeded = verdict.ReDispatchNeeded
	result.ReDispatchDomains = verdict.ReDispatchDomains
	return result
}

// reason is stage 2: causal chain construction.
func (s *Synthesizer) reason(ctx context.Context, merged []models.DomainAnomaly, in Input) ([]models.CausalChain, []models.DomainAnomaly, error) {
	doc := map[string]any{
		"anomalies":        merged,
		"report_summaries": reportSummaries(in.Reports),
		"root_candidates":  rootCandidates(in.Clusters),
		"annotated_links":  in.SearchSpace.AnnotatedLinks,
		// Blocked links stay out of the prompt; only the count crosses.
		"blocked_link_count": len(in.SearchSpace.BlockedLinks),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, err
	}

	started := time.Now()
	var parsed causalResponse
	_, err = provider.ChatJSON(ctx, s.llm,
		causalPrompt(len(in.SearchSpace.BlockedLinks)), string(body), &parsed)
	metrics.LLMRequestDuration.WithLabelValues("synthesis_causal").Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues("synthesis_causal", "failure").Inc()
		return nil, nil, err
	}
	metrics.LLMRequests.WithLabelValues("synthesis_causal", "success").Inc()

	// Weakest link: recompute chain confidence from its links so the
	// model cannot overstate a chain.
	for i := range parsed.CausalChains {
		parsed.CausalChains[i].Confidence = minLinkConfidence(parsed.CausalChains[i])
	}
	return parsed.CausalChains, parsed.UncorrelatedFindings, nil
}

// verdict is stage 3: overall health, blast radius, remediation.
func (s *Synthesizer) verdict(ctx context.Context, merged []models.DomainAnomaly, chains []models.CausalChain, in Input) (*verdictResponse, error) {
	doc := map[string]any{
		"anomalies":         merged,
		"causal_chains":     chains,
		"report_statuses":   reportSummaries(in.Reports),
		"data_completeness": DataCompleteness(in.Reports),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var parsed verdictResponse
	_, err = provider.ChatJSON(ctx, s.llm, verdictPrompt, string(body), &parsed)
	metrics.LLMRequestDuration.WithLabelValues("synthesis_verdict").Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.LLMRequests.WithLabelValues("synthesis_verdict", "failure").Inc()
		return nil, err
	}
	metrics.LLMRequests.WithLabelValues("synthesis_verdict", "success").Inc()

	switch parsed.PlatformHealth {
	case models.HealthHealthy, models.HealthDegraded, models.HealthCritical, models.HealthUnknown:
	default:
		parsed.PlatformHealth = models.HealthUnknown
	}
	return &parsed, nil
}

func minLinkConfidence(chain models.CausalChain) float64 {
	if len(chain.Links) == 0 {
		return chain.Confidence
	}
	min := chain.Links[0].Confidence
	for _, link := range chain.Links[1:] {
		if link.Confidence < min {
			min = link.Confidence
		}
	}
	return min
}

func reportSummaries(reports []models.DomainReport) []string {
	out := make([]string, 0, len(reports))
	for _, r := range reports {
		out = append(out, fmt.Sprintf("%s: status=%s confidence=%d anomalies=%d ruled_out=%d",
			r.Domain, r.Status, r.Confidence, len(r.Anomalies), len(r.RuledOut)))
	}
	return out
}

func rootCandidates(clusters []models.IssueCluster) []models.RootCandidate {
	var out []models.RootCandidate
	for _, c := range clusters {
		out = append(out, c.RootCandidates...)
	}
	return out
}
