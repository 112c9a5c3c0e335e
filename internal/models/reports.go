package models

import "time"

// DomainStatus is the lifecycle state of one domain agent's run.
type DomainStatus string

const (
	StatusPending DomainStatus = "PENDING"
	StatusRunning DomainStatus = "RUNNING"
	StatusSuccess DomainStatus = "SUCCESS"
	StatusPartial DomainStatus = "PARTIAL"
	StatusFailed  DomainStatus = "FAILED"
	StatusSkipped DomainStatus = "SKIPPED"
)

// FailureReason explains why a domain agent run failed.
type FailureReason string

const (
	FailureTimeout        FailureReason = "TIMEOUT"
	FailureRBACDenied     FailureReason = "RBAC_DENIED"
	FailureAPIUnreachable FailureReason = "API_UNREACHABLE"
	FailureLLMParse       FailureReason = "LLM_PARSE_ERROR"
	FailureException      FailureReason = "EXCEPTION"
)

// DomainAnomaly is one anomaly reported by a domain agent.
type DomainAnomaly struct {
	Domain      Domain   `json:"domain"`
	AnomalyID   string   `json:"anomaly_id"`
	Description string   `json:"description"`
	EvidenceRef string   `json:"evidence_ref,omitempty"`
	Severity    Severity `json:"severity"`
}

// TruncationFlags records which per-namespace fetches hit their caps.
type TruncationFlags struct {
	Events       bool `json:"events,omitempty"`
	Pods         bool `json:"pods,omitempty"`
	LogLines     bool `json:"log_lines,omitempty"`
	MetricPoints bool `json:"metric_points,omitempty"`
	Nodes        bool `json:"nodes,omitempty"`
	PVCs         bool `json:"pvcs,omitempty"`
}

// DomainReport is the outcome of one domain agent's scoped analysis.
type DomainReport struct {
	Domain        Domain          `json:"domain"`
	Status        DomainStatus    `json:"status"`
	FailureReason FailureReason   `json:"failure_reason,omitempty"`
	Confidence    int             `json:"confidence"` // 0-100
	Anomalies     []DomainAnomaly `json:"anomalies,omitempty"`
	RuledOut      []string        `json:"ruled_out,omitempty"`
	EvidenceRefs  []string        `json:"evidence_refs,omitempty"`
	Truncation    TruncationFlags `json:"truncation,omitempty"`
	DurationMs    int64           `json:"duration_ms"`
}

// CausalLink is one mechanism-typed edge in a causal chain.
type CausalLink struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	LinkType   string  `json:"link_type"`
	Mechanism  string  `json:"mechanism,omitempty"`
	Confidence float64 `json:"confidence"`
}

// CausalChain is a single-root chain of causally linked anomalies.
// Its confidence is the minimum of its link confidences.
type CausalChain struct {
	Root       string       `json:"root"`
	Links      []CausalLink `json:"links"`
	Confidence float64      `json:"confidence"`
	Summary    string       `json:"summary,omitempty"`
}

// PlatformHealth is the synthesizer's overall verdict.
type PlatformHealth string

const (
	HealthHealthy  PlatformHealth = "HEALTHY"
	HealthDegraded PlatformHealth = "DEGRADED"
	HealthCritical PlatformHealth = "CRITICAL"
	HealthUnknown  PlatformHealth = "UNKNOWN"
)

// BlastRadius counts the resources affected by the incident.
type BlastRadius struct {
	Namespaces int    `json:"namespaces"`
	Pods       int    `json:"pods"`
	Nodes      int    `json:"nodes"`
	Summary    string `json:"summary,omitempty"`
}

// RemediationPlan groups proposed remediation steps by urgency.
type RemediationPlan struct {
	Immediate []string `json:"immediate,omitempty"`
	LongTerm  []string `json:"long_term,omitempty"`
}

// ClusterHealthReport is the final output of a diagnostic graph run.
type ClusterHealthReport struct {
	PlatformHealth       PlatformHealth  `json:"platform_health"`
	BlastRadius          BlastRadius     `json:"blast_radius"`
	CausalChains         []CausalChain   `json:"causal_chains,omitempty"`
	UncorrelatedFindings []DomainAnomaly `json:"uncorrelated_findings,omitempty"`
	Remediation          RemediationPlan `json:"remediation"`
	DataCompleteness     float64         `json:"data_completeness"`
	Reports              []DomainReport  `json:"reports"`
	GeneratedAt          time.Time       `json:"generated_at"`
}

// GuardRisk is one risk entry in a guard scan layer.
type GuardRisk struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
	ResourceKey string   `json:"resource_key,omitempty"`
}

// GuardScanResult is the guard-mode formatter output: current risks,
// predictive risks, and the delta against the previous scan.
type GuardScanResult struct {
	OverallHealth   PlatformHealth `json:"overall_health"`
	RiskScore       float64        `json:"risk_score"`
	CurrentRisks    []GuardRisk    `json:"current_risks,omitempty"`
	PredictiveRisks []GuardRisk    `json:"predictive_risks,omitempty"`
	NewRisks        []string       `json:"new_risks,omitempty"`
	ResolvedRisks   []string       `json:"resolved_risks,omitempty"`
	ScannedAt       time.Time      `json:"scanned_at"`
}

// NodeTrace records the traced-decorator outcome for one graph node.
type NodeTrace struct {
	Node       string        `json:"node"`
	Status     DomainStatus  `json:"status"`
	Reason     FailureReason `json:"reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	DurationMs int64         `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
}
